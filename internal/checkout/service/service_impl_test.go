package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fiskal/internal/checkout/domain"
	checkoutrepo "github.com/smallbiznis/fiskal/internal/checkout/repository"
	checkoutservice "github.com/smallbiznis/fiskal/internal/checkout/service"
	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/fiscal/manager"
	fiscalrepo "github.com/smallbiznis/fiskal/internal/fiscal/repository"
	"github.com/smallbiznis/fiskal/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testConfigSecret = "test-config-secret"

// scriptedClient lets each test decide how signing behaves.
type scriptedClient struct {
	startErr    error
	finishErr   error
	startCalls  int
	finishCalls int
	cancelCalls int
	cancelledID string
}

func (s *scriptedClient) HealthCheck(ctx context.Context) (string, error) {
	return fiscaldomain.TssStateInitialized, nil
}

func (s *scriptedClient) InitializeTss(ctx context.Context) error { return nil }

func (s *scriptedClient) TssState(ctx context.Context) (string, error) {
	return fiscaldomain.TssStateInitialized, nil
}

func (s *scriptedClient) StartTransaction(ctx context.Context, localID string) error {
	s.startCalls++
	return s.startErr
}

func (s *scriptedClient) FinishTransaction(ctx context.Context, localID string, total float64, method string, items []fiscaldomain.SaleItem) (*fiscaldomain.SignatureSnapshot, error) {
	s.finishCalls++
	if s.finishErr != nil {
		return nil, s.finishErr
	}
	return &fiscaldomain.SignatureSnapshot{
		TransactionNumber:  9,
		SignatureValue:     "sig-value",
		SignatureCounter:   3,
		SignatureAlgorithm: "ecdsa-plain-SHA256",
		TssID:              "tss-abc",
		ClientID:           "pos-terminal-1",
	}, nil
}

func (s *scriptedClient) CancelTransaction(ctx context.Context, localID string) error {
	s.cancelCalls++
	s.cancelledID = localID
	return nil
}

func (s *scriptedClient) Export(ctx context.Context, start, end time.Time) ([]byte, error) {
	return nil, fiscaldomain.ErrNotEnabled
}

type fixture struct {
	db           *gorm.DB
	svc          domain.Service
	client       *scriptedClient
	factoryCalls *int
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE fiscal_configs (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			tss_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			environment TEXT NOT NULL DEFAULT 'sandbox',
			credentials TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_fiscal_configs_org ON fiscal_configs(org_id)`,
		`CREATE TABLE sales (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			fiscal_tx_id TEXT NOT NULL,
			total_amount REAL NOT NULL,
			payment_method TEXT NOT NULL,
			items TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			tse_data TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX ix_sales_org ON sales(org_id)`,
		`CREATE UNIQUE INDEX ux_sales_fiscal_tx ON sales(fiscal_tx_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func setupCheckout(t *testing.T) fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(12)
	require.NoError(t, err)

	client := &scriptedClient{}
	factoryCalls := 0
	factory := func(cfg fiscaldomain.Config) manager.FiscalClient {
		factoryCalls++
		return client
	}
	registry := manager.NewRegistry(db, fiscalrepo.Provide(), fiscaldomain.DeriveKey(testConfigSecret), factory, zap.NewNop(), nil)

	svc := checkoutservice.New(checkoutservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     checkoutrepo.Provide(),
		Registry: registry,
	})

	return fixture{db: db, svc: svc, client: client, factoryCalls: &factoryCalls}
}

func seedFiscalConfig(t *testing.T, db *gorm.DB, orgID int64) {
	t.Helper()

	sealed, err := fiscaldomain.EncryptCredentials(fiscaldomain.DeriveKey(testConfigSecret), fiscaldomain.Credentials{
		APIKey:    "api-key",
		APISecret: "api-secret",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	err = db.Exec(
		`INSERT INTO fiscal_configs (id, org_id, tss_id, client_id, environment, credentials, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orgID, orgID, "tss-abc", "pos-terminal-1", "sandbox", sealed, true, now, now,
	).Error
	require.NoError(t, err)
}

func orgContext(orgID int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID)
}

func saleRequest() domain.CreateSaleRequest {
	return domain.CreateSaleRequest{
		TotalAmount:   6.00,
		PaymentMethod: fiscaldomain.PaymentMethodCash,
		Items: []fiscaldomain.SaleItem{
			{Name: "Coffee", Price: 3.00, Quantity: 2},
		},
	}
}

func TestCreateSaleAttachesSignature(t *testing.T) {
	f := setupCheckout(t)
	seedFiscalConfig(t, f.db, 200)

	sale, err := f.svc.CreateSale(orgContext(200), saleRequest())
	require.NoError(t, err)

	require.NotNil(t, sale.TseData)
	var snapshot fiscaldomain.SignatureSnapshot
	require.NoError(t, json.Unmarshal(sale.TseData, &snapshot))
	assert.Equal(t, "sig-value", snapshot.SignatureValue)
	assert.Equal(t, int64(9), snapshot.TransactionNumber)

	// The signature is persisted, not only present on the returned value.
	stored, err := f.svc.GetSale(orgContext(200), sale.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.TseData)
}

func TestCreateSalePersistsWhenSigningFails(t *testing.T) {
	f := setupCheckout(t)
	seedFiscalConfig(t, f.db, 200)
	f.client.startErr = fiscaldomain.ErrTransactionStartFailed

	sale, err := f.svc.CreateSale(orgContext(200), saleRequest())
	require.NoError(t, err)

	assert.Empty(t, sale.TseData)
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)
	assert.Equal(t, 1, f.client.startCalls)
	assert.Equal(t, 0, f.client.finishCalls)

	stored, err := f.svc.GetSale(orgContext(200), sale.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.TseData)
}

func TestCreateSaleWithoutFiscalConfig(t *testing.T) {
	f := setupCheckout(t)

	sale, err := f.svc.CreateSale(orgContext(200), saleRequest())
	require.NoError(t, err)

	assert.Empty(t, sale.TseData)
	assert.Equal(t, 0, *f.factoryCalls)
}

func TestCreateSaleValidation(t *testing.T) {
	f := setupCheckout(t)
	ctx := orgContext(200)

	req := saleRequest()
	req.TotalAmount = 0
	_, err := f.svc.CreateSale(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	req = saleRequest()
	req.PaymentMethod = "bitcoin"
	_, err = f.svc.CreateSale(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidPaymentMethod)

	req = saleRequest()
	req.Items = nil
	_, err = f.svc.CreateSale(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidItems)

	_, err = f.svc.CreateSale(context.Background(), saleRequest())
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestCancelSaleVoidsFiscalTransaction(t *testing.T) {
	f := setupCheckout(t)
	seedFiscalConfig(t, f.db, 200)
	ctx := orgContext(200)

	sale, err := f.svc.CreateSale(ctx, saleRequest())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, f.client.cancelCalls)
	assert.Equal(t, sale.FiscalTxID, f.client.cancelledID)
}

func TestCancelSaleTwice(t *testing.T) {
	f := setupCheckout(t)
	ctx := orgContext(200)

	sale, err := f.svc.CreateSale(ctx, saleRequest())
	require.NoError(t, err)

	_, err = f.svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelSale(ctx, sale.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestCancelSaleUnknownID(t *testing.T) {
	f := setupCheckout(t)

	_, err := f.svc.CancelSale(orgContext(200), 424242)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetSaleScopedToOrg(t *testing.T) {
	f := setupCheckout(t)

	sale, err := f.svc.CreateSale(orgContext(200), saleRequest())
	require.NoError(t, err)

	_, err = f.svc.GetSale(orgContext(300), sale.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListSalesNewestFirst(t *testing.T) {
	f := setupCheckout(t)
	ctx := orgContext(200)

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateSale(ctx, saleRequest())
		require.NoError(t, err)
	}
	_, err := f.svc.CreateSale(orgContext(300), saleRequest())
	require.NoError(t, err)

	sales, err := f.svc.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 3)
	for _, sale := range sales {
		assert.Equal(t, int64(200), sale.OrgID)
	}
}
