package fiskaly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/fiskal/internal/clock"
	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/observability/metrics"
	"go.uber.org/zap"
)

// The sandbox and production hosts are currently identical; the split is
// kept so they can diverge without a code change.
const (
	sandboxBaseURL    = "https://kassensichv-middleware.fiskaly.com/api/v2"
	productionBaseURL = "https://kassensichv-middleware.fiskaly.com/api/v2"

	tokenLifetime     = time.Hour
	tokenSafetyMargin = 5 * time.Minute

	defaultHTTPTimeout  = 15 * time.Second
	defaultPollInterval = time.Second
	defaultPollAttempts = 30
)

// Config binds a client to one TSS/client-id pair.
type Config struct {
	OrgID       int64
	APIKey      string
	APISecret   string
	TssID       string
	ClientID    string
	Environment string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides endpoint selection, used by tests and the
// FISCAL_BASE_URL escape hatch.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithPolling tunes the bounded wait for remote state transitions.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client drives the remote TSS state machine and transaction signing.
// One instance per (org, TSS, client-id); the bearer token cache is
// owned by the instance and never shared across tenants.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	pollInterval time.Duration
	pollAttempts int

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config, log *zap.Logger, opts ...Option) *Client {
	baseURL := sandboxBaseURL
	if strings.EqualFold(strings.TrimSpace(cfg.Environment), domain.EnvironmentProduction) {
		baseURL = productionBaseURL
	}

	c := &Client{
		cfg:          cfg,
		baseURL:      baseURL,
		http:         &http.Client{Timeout: defaultHTTPTimeout},
		clock:        clock.NewSystemClock(),
		log:          log.Named("fiskaly.client"),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("fiskaly: status %d: %s", e.Status, e.Body)
}

func statusCode(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type authRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

// Token returns a bearer token, reusing the cached one while it is
// fresh enough. Authentication failures are not retried here.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp authResponse
	err := c.send(ctx, http.MethodPost, "/auth", "auth", authRequest{
		APIKey:    c.cfg.APIKey,
		APISecret: c.cfg.APISecret,
	}, &resp, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", domain.ErrAuthenticationFailed
	}

	c.token = resp.AccessToken
	c.tokenExpiry = now.Add(tokenLifetime - tokenSafetyMargin)
	return c.token, nil
}

type tssResponse struct {
	ID    string `json:"_id"`
	State string `json:"state"`
}

// TssState fetches the authoritative remote state.
func (c *Client) TssState(ctx context.Context) (string, error) {
	var resp tssResponse
	if err := c.do(ctx, http.MethodGet, "/tss/"+c.cfg.TssID, "tss_state", nil, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTssStateTransitionFailed, err)
	}
	return resp.State, nil
}

// SetTssState requests a state transition on the remote TSS.
func (c *Client) SetTssState(ctx context.Context, state string) error {
	body := map[string]string{"state": state}
	if err := c.do(ctx, http.MethodPatch, "/tss/"+c.cfg.TssID, "tss_transition", body, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTssStateTransitionFailed, err)
	}
	return nil
}

// InitializeTss moves a freshly created TSS to UNINITIALIZED. Any other
// current state is left alone, so the call is safe on every manager
// initialization.
func (c *Client) InitializeTss(ctx context.Context) error {
	state, err := c.TssState(ctx)
	if err != nil {
		return err
	}
	if state != domain.TssStateCreated {
		return nil
	}
	return c.SetTssState(ctx, domain.TssStateUninitialized)
}

// AdminAuth opens the short-lived elevated session required for the
// UNINITIALIZED to INITIALIZED and INITIALIZED to DISABLED edges.
func (c *Client) AdminAuth(ctx context.Context, adminPIN string) error {
	body := map[string]string{"admin_pin": adminPIN}
	if err := c.do(ctx, http.MethodPost, "/tss/"+c.cfg.TssID+"/admin/auth", "admin_auth", body, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAdminAuthFailed, err)
	}
	return nil
}

// WaitForTssState polls until the remote TSS reaches the wanted state
// or the bounded attempt count runs out. A timeout never corrupts
// remote state; re-polling later is safe.
func (c *Client) WaitForTssState(ctx context.Context, want string) error {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		state, err := c.TssState(ctx)
		if err == nil && state == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return domain.ErrInitializationTimeout
}

// EnsureClientRegistered upserts this client id as a serial number under
// the TSS. A conflict for an already-registered client is success.
func (c *Client) EnsureClientRegistered(ctx context.Context) error {
	body := map[string]string{"serial_number": c.cfg.ClientID}
	err := c.do(ctx, http.MethodPut, "/tss/"+c.cfg.TssID+"/client/"+c.cfg.ClientID, "client_register", body, nil)
	if err != nil {
		if statusCode(err) == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrClientRegistrationFailed, err)
	}
	return nil
}

type transactionRequest struct {
	State    string         `json:"state"`
	ClientID string         `json:"client_id"`
	Schema   *receiptSchema `json:"schema,omitempty"`
}

type transactionResponse struct {
	Number    int64  `json:"number"`
	TimeStart int64  `json:"time_start"`
	TimeEnd   int64  `json:"time_end"`
	Signature struct {
		Value     string `json:"value"`
		Algorithm string `json:"algorithm"`
		Counter   int64  `json:"counter"`
	} `json:"signature"`
	QRCodeData string `json:"qr_code_data"`
}

// StartTransaction activates a remote transaction keyed by the locally
// generated id. Callers must not proceed to finish on failure.
func (c *Client) StartTransaction(ctx context.Context, localID string) error {
	body := transactionRequest{State: "ACTIVE", ClientID: c.cfg.ClientID}
	if err := c.do(ctx, http.MethodPut, c.txPath(localID, 0), "tx_start", body, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransactionStartFailed, err)
	}
	return nil
}

// FinishTransaction submits the receipt schema and returns the signature
// bundle assigned by the TSS.
func (c *Client) FinishTransaction(ctx context.Context, localID string, total float64, method string, items []domain.SaleItem) (*domain.SignatureSnapshot, error) {
	schema := buildReceiptSchema(total, method, items)
	body := transactionRequest{State: "FINISHED", ClientID: c.cfg.ClientID, Schema: schema}

	var resp transactionResponse
	if err := c.do(ctx, http.MethodPut, c.txPath(localID, 2), "tx_finish", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransactionFinishFailed, err)
	}

	return &domain.SignatureSnapshot{
		TransactionNumber:  resp.Number,
		SignatureValue:     resp.Signature.Value,
		SignatureCounter:   resp.Signature.Counter,
		SignatureAlgorithm: resp.Signature.Algorithm,
		TimeStart:          resp.TimeStart,
		TimeEnd:            resp.TimeEnd,
		QRCodeData:         resp.QRCodeData,
		TssID:              c.cfg.TssID,
		ClientID:           c.cfg.ClientID,
	}, nil
}

// CancelTransaction voids a remote transaction. Callers treat failure as
// non-fatal; a local cancellation is never blocked by the signer.
func (c *Client) CancelTransaction(ctx context.Context, localID string) error {
	body := transactionRequest{State: "CANCELLED", ClientID: c.cfg.ClientID}
	if err := c.do(ctx, http.MethodPut, c.txPath(localID, 2), "tx_cancel", body, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransactionCancelFailed, err)
	}
	return nil
}

type exportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Export requests the bulk compliance export for the inclusive date
// range and returns the raw tar bytes.
func (c *Client) Export(ctx context.Context, start, end time.Time) ([]byte, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}

	body, err := json.Marshal(exportRequest{
		StartDate: start.UTC().Format("2006-01-02"),
		EndDate:   end.UTC().Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tss/"+c.cfg.TssID+"/export", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	begin := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveFiscalCall("export", time.Since(begin))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrExportFailed, resp.StatusCode, string(snippet))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}
	return data, nil
}

// HealthCheck authenticates, fetches the TSS state and verifies client
// registration. Registration is required, so its failure fails the
// check; only a CREATED TSS not yet walked through provisioning does not.
func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	if _, err := c.Token(ctx); err != nil {
		return "", err
	}
	state, err := c.TssState(ctx)
	if err != nil {
		return "", err
	}
	if err := c.EnsureClientRegistered(ctx); err != nil {
		return state, err
	}
	return state, nil
}

func (c *Client) txPath(localID string, revision int) string {
	path := "/tss/" + c.cfg.TssID + "/tx/" + localID
	if revision > 0 {
		path = fmt.Sprintf("%s?tx_revision=%d", path, revision)
	}
	return path
}

// do performs one authenticated API round trip.
func (c *Client) do(ctx context.Context, method, path, operation string, body, out any) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, operation, body, out, token)
}

func (c *Client) send(ctx context.Context, method, path, operation string, body, out any, token string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	begin := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveFiscalCall(operation, time.Since(begin))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
