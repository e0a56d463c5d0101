package manager

import (
	"context"
	"time"

	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/observability/metrics"
	"go.uber.org/zap"
)

// FiscalClient is the slice of the service client the manager drives.
// *fiskaly.Client satisfies it; tests substitute fakes.
type FiscalClient interface {
	HealthCheck(ctx context.Context) (string, error)
	InitializeTss(ctx context.Context) error
	TssState(ctx context.Context) (string, error)
	StartTransaction(ctx context.Context, localID string) error
	FinishTransaction(ctx context.Context, localID string, total float64, method string, items []domain.SaleItem) (*domain.SignatureSnapshot, error)
	CancelTransaction(ctx context.Context, localID string) error
	Export(ctx context.Context, start, end time.Time) ([]byte, error)
}

// Manager wraps one organization's signing client behind a simplified
// sign/cancel/export contract. Signing is always best-effort relative to
// the sale itself: failures collapse to a nil signature at this boundary
// and nowhere else.
type Manager struct {
	orgID   int64
	cfg     domain.Config
	client  FiscalClient
	log     *zap.Logger
	metrics *metrics.Metrics
	enabled bool
}

func newManager(orgID int64, cfg domain.Config, client FiscalClient, log *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		orgID:   orgID,
		cfg:     cfg,
		client:  client,
		log:     log.With(zap.Int64("org_id", orgID)),
		metrics: m,
	}
}

func newDisabledManager(orgID int64, log *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		orgID:   orgID,
		log:     log.With(zap.Int64("org_id", orgID)),
		metrics: m,
	}
}

// Initialize verifies the remote side is usable: authentication, TSS
// status and client registration must all succeed (registration is
// required). Advancing a freshly created TSS to UNINITIALIZED is
// best-effort on top.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.client == nil {
		return domain.ErrNotConfigured
	}

	state, err := m.client.HealthCheck(ctx)
	if err != nil {
		m.enabled = false
		return err
	}

	if state == domain.TssStateCreated {
		if err := m.client.InitializeTss(ctx); err != nil {
			m.log.Warn("tss initialization deferred", zap.Error(err))
		}
	}

	m.enabled = true
	return nil
}

// IsEnabled reports whether initialization completed with a live client.
func (m *Manager) IsEnabled() bool {
	return m.enabled
}

// Config exposes the loaded configuration for display. Masking is the
// consuming layer's job.
func (m *Manager) Config() domain.Config {
	return m.cfg
}

// TssState queries the remote state for the settings page.
func (m *Manager) TssState(ctx context.Context) (string, error) {
	if !m.enabled {
		return "", domain.ErrNotEnabled
	}
	return m.client.TssState(ctx)
}

// SignTransaction wraps the sale in a signed start/finish pair and
// returns nil when signing is unavailable or fails. Callers persist the
// sale either way.
func (m *Manager) SignTransaction(ctx context.Context, localID string, total float64, method string, items []domain.SaleItem) *domain.SignatureSnapshot {
	if !m.enabled {
		m.metrics.RecordSignAttempt("skipped")
		return nil
	}

	if err := m.client.StartTransaction(ctx, localID); err != nil {
		m.metrics.RecordSignAttempt("failed")
		m.metrics.RecordSignFailure("start")
		m.log.Error("fiscal transaction start failed",
			zap.String("tx_id", localID),
			zap.Error(err),
		)
		return nil
	}

	snapshot, err := m.client.FinishTransaction(ctx, localID, total, method, items)
	if err != nil {
		m.metrics.RecordSignAttempt("failed")
		m.metrics.RecordSignFailure("finish")
		m.log.Error("fiscal transaction finish failed",
			zap.String("tx_id", localID),
			zap.Error(err),
		)
		return nil
	}

	m.metrics.RecordSignAttempt("signed")
	return snapshot
}

// CancelTransaction voids the remote transaction, best-effort.
func (m *Manager) CancelTransaction(ctx context.Context, localID string) {
	if !m.enabled {
		return
	}
	if err := m.client.CancelTransaction(ctx, localID); err != nil {
		m.log.Warn("fiscal transaction cancel failed",
			zap.String("tx_id", localID),
			zap.Error(err),
		)
	}
}

// Export returns the compliance export, propagating failures: this is an
// explicit administrator action with no silent-fallback semantics.
func (m *Manager) Export(ctx context.Context, start, end time.Time) ([]byte, error) {
	if !m.enabled {
		return nil, domain.ErrNotEnabled
	}
	return m.client.Export(ctx, start, end)
}
