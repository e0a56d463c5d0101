package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fiskal/internal/config"
	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/fiscal/manager"
	"github.com/smallbiznis/fiskal/internal/fiscal/repository"
	fiscalservice "github.com/smallbiznis/fiskal/internal/fiscal/service"
	"github.com/smallbiznis/fiskal/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testConfigSecret = "test-config-secret"

// stubClient reports a healthy INITIALIZED TSS for every org.
type stubClient struct {
	healthCalls int
	stateCalls  int
}

func (s *stubClient) HealthCheck(ctx context.Context) (string, error) {
	s.healthCalls++
	return domain.TssStateInitialized, nil
}

func (s *stubClient) InitializeTss(ctx context.Context) error { return nil }

func (s *stubClient) TssState(ctx context.Context) (string, error) {
	s.stateCalls++
	return domain.TssStateInitialized, nil
}

func (s *stubClient) StartTransaction(ctx context.Context, localID string) error { return nil }

func (s *stubClient) FinishTransaction(ctx context.Context, localID string, total float64, method string, items []domain.SaleItem) (*domain.SignatureSnapshot, error) {
	return &domain.SignatureSnapshot{SignatureValue: "sig"}, nil
}

func (s *stubClient) CancelTransaction(ctx context.Context, localID string) error { return nil }

func (s *stubClient) Export(ctx context.Context, start, end time.Time) ([]byte, error) {
	return []byte("tar"), nil
}

type fixture struct {
	db           *gorm.DB
	svc          domain.Service
	client       *stubClient
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
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func setupService(t *testing.T) fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(11)
	require.NoError(t, err)

	client := &stubClient{}
	factoryCalls := 0
	factory := func(cfg domain.Config) manager.FiscalClient {
		factoryCalls++
		return client
	}

	repo := repository.Provide()
	registry := manager.NewRegistry(db, repo, domain.DeriveKey(testConfigSecret), factory, zap.NewNop(), nil)

	svc := fiscalservice.New(fiscalservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Registry: registry,
		Cfg:      config.Config{FiscalConfigSecret: testConfigSecret},
	})

	return fixture{db: db, svc: svc, client: client, factoryCalls: &factoryCalls}
}

func orgContext(orgID int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID)
}

func validUpsert() domain.UpsertRequest {
	return domain.UpsertRequest{
		APIKey:      "live_api_key_9876",
		APISecret:   "live_api_secret",
		TssID:       "tss-abc",
		ClientID:    "pos-terminal-1",
		AdminPIN:    "123456",
		Environment: domain.EnvironmentSandbox,
	}
}

func TestUpsertConfigStoresEncryptedCredentials(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	summary, err := f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	assert.True(t, summary.Configured)
	assert.True(t, summary.IsActive)
	assert.Equal(t, "tss-abc", summary.TssID)
	assert.Equal(t, "****9876", summary.APIKeyHint)

	var stored string
	require.NoError(t, f.db.Raw(`SELECT credentials FROM fiscal_configs WHERE org_id = ?`, int64(100)).Scan(&stored).Error)
	assert.NotContains(t, stored, "live_api_key_9876")
	assert.NotContains(t, stored, "live_api_secret")
	assert.NotContains(t, stored, "123456")
}

func TestUpsertConfigValidation(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	req := validUpsert()
	req.APIKey = ""
	_, err := f.svc.UpsertConfig(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	req = validUpsert()
	req.Environment = "staging"
	_, err = f.svc.UpsertConfig(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidEnvironment)

	_, err = f.svc.UpsertConfig(context.Background(), validUpsert())
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestUpsertConfigDefaultsToSandbox(t *testing.T) {
	f := setupService(t)

	req := validUpsert()
	req.Environment = ""
	summary, err := f.svc.UpsertConfig(orgContext(100), req)
	require.NoError(t, err)
	assert.Equal(t, domain.EnvironmentSandbox, summary.Environment)
}

func TestUpsertConfigPreservesActiveFlag(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	_, err := f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	_, err = f.svc.SetActive(ctx, false)
	require.NoError(t, err)

	req := validUpsert()
	req.TssID = "tss-new"
	summary, err := f.svc.UpsertConfig(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "tss-new", summary.TssID)
	assert.False(t, summary.IsActive)
}

func TestGetConfigUnconfigured(t *testing.T) {
	f := setupService(t)

	summary, err := f.svc.GetConfig(orgContext(100))
	require.NoError(t, err)
	assert.False(t, summary.Configured)
}

func TestSetActiveWithoutConfig(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.SetActive(orgContext(100), false)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusUnconfiguredIsDisabled(t *testing.T) {
	f := setupService(t)

	status, err := f.svc.Status(orgContext(100))
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.False(t, status.Healthy)
	assert.Equal(t, 0, *f.factoryCalls)
}

func TestStatusReportsHealthyInitializedTss(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	_, err := f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.True(t, status.Healthy)
	assert.Equal(t, domain.TssStateInitialized, status.TssState)
}

func TestUpsertInvalidatesCachedManager(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	_, err := f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	_, err = f.svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, *f.factoryCalls)

	// Cached manager serves repeated calls.
	_, err = f.svc.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, *f.factoryCalls)

	// Saving configuration drops the cache and forces re-initialization.
	_, err = f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	_, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, *f.factoryCalls)
}

func TestDeactivationDisablesSigning(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	_, err := f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	status, err := f.svc.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Enabled)

	_, err = f.svc.SetActive(ctx, false)
	require.NoError(t, err)

	status, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
}

func TestExportValidatesDateRange(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Export(ctx, start, end)
	require.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestExportRequiresEnabledSigning(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Export(ctx, start, end)
	require.ErrorIs(t, err, domain.ErrNotEnabled)
}

func TestExportReturnsArchive(t *testing.T) {
	f := setupService(t)
	ctx := orgContext(100)

	_, err := f.svc.UpsertConfig(ctx, validUpsert())
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	data, err := f.svc.Export(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, []byte("tar"), data)
}
