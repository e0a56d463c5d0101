package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fiskal/internal/cache"
	"github.com/smallbiznis/fiskal/internal/config"
	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/fiscal/manager"
	"github.com/smallbiznis/fiskal/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Registry *manager.Registry
	Cfg      config.Config
}

// statusCacheTTL bounds how stale the settings-page health view may be.
// The settings UI polls, and every poll would otherwise hit the remote
// TSS endpoint.
const statusCacheTTL = 10 * time.Second

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	registry    *manager.Registry
	encKey      []byte
	statusCache cache.Cache[int64, *domain.StatusResponse]
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("fiscal.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		registry:    p.Registry,
		encKey:      domain.DeriveKey(p.Cfg.FiscalConfigSecret),
		statusCache: cache.NewTTLCache[int64, *domain.StatusResponse](),
	}
}

func (s *Service) GetConfig(ctx context.Context) (*domain.ConfigSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	record, err := s.repo.FindConfig(ctx, s.db, int64(orgID))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &domain.ConfigSummary{Configured: false}, nil
	}
	return s.summary(record), nil
}

func (s *Service) UpsertConfig(ctx context.Context, req domain.UpsertRequest) (*domain.ConfigSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	orgIDValue := int64(orgID)

	apiKey := strings.TrimSpace(req.APIKey)
	apiSecret := strings.TrimSpace(req.APISecret)
	tssID := strings.TrimSpace(req.TssID)
	clientID := strings.TrimSpace(req.ClientID)
	if apiKey == "" || apiSecret == "" || tssID == "" || clientID == "" {
		return nil, domain.ErrInvalidConfig
	}

	environment := strings.ToLower(strings.TrimSpace(req.Environment))
	switch environment {
	case "":
		environment = domain.EnvironmentSandbox
	case domain.EnvironmentSandbox, domain.EnvironmentProduction:
	default:
		return nil, domain.ErrInvalidEnvironment
	}

	sealed, err := domain.EncryptCredentials(s.encKey, domain.Credentials{
		APIKey:    apiKey,
		APISecret: apiSecret,
		AdminPIN:  strings.TrimSpace(req.AdminPIN),
	})
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindConfig(ctx, s.db, orgIDValue)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := domain.FiscalConfig{
		ID:          s.genID.Generate().Int64(),
		OrgID:       orgIDValue,
		TssID:       tssID,
		ClientID:    clientID,
		Environment: environment,
		Credentials: sealed,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		record.ID = existing.ID
		record.IsActive = existing.IsActive
		record.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.UpsertConfig(ctx, s.db, &record); err != nil {
		return nil, err
	}

	s.registry.Invalidate(orgIDValue)
	s.statusCache.Delete(orgIDValue)
	s.log.Info("fiscal config saved",
		zap.Int64("org_id", orgIDValue),
		zap.String("tss_id", tssID),
		zap.String("environment", environment),
	)
	return s.summary(&record), nil
}

func (s *Service) SetActive(ctx context.Context, isActive bool) (*domain.ConfigSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	orgIDValue := int64(orgID)

	updated, err := s.repo.UpdateStatus(ctx, s.db, orgIDValue, isActive, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrNotFound
	}

	s.registry.Invalidate(orgIDValue)
	s.statusCache.Delete(orgIDValue)

	record, err := s.repo.FindConfig(ctx, s.db, orgIDValue)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return s.summary(record), nil
}

// Status reports live signing health for the settings page, cached
// briefly per org. A tenant without configuration is simply disabled,
// not erroring.
func (s *Service) Status(ctx context.Context) (*domain.StatusResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	orgIDValue := int64(orgID)

	if cached, ok := s.statusCache.Get(orgIDValue); ok {
		return cached, nil
	}

	mgr, err := s.registry.Get(ctx, orgIDValue)
	if err != nil {
		return nil, err
	}

	status := &domain.StatusResponse{}
	if mgr.IsEnabled() {
		status.Enabled = true
		if state, err := mgr.TssState(ctx); err == nil {
			status.TssState = state
			status.Healthy = state == domain.TssStateInitialized
		}
	}

	s.statusCache.Set(orgIDValue, status, statusCacheTTL)
	return status, nil
}

// Export propagates failures: the administrator who requested the
// export sees the concrete error.
func (s *Service) Export(ctx context.Context, start, end time.Time) ([]byte, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if end.Before(start) {
		return nil, domain.ErrInvalidDateRange
	}

	mgr, err := s.registry.Get(ctx, int64(orgID))
	if err != nil {
		return nil, err
	}
	return mgr.Export(ctx, start, end)
}

func (s *Service) summary(record *domain.FiscalConfig) *domain.ConfigSummary {
	return &domain.ConfigSummary{
		TssID:       record.TssID,
		ClientID:    record.ClientID,
		Environment: record.Environment,
		APIKeyHint:  s.apiKeyHint(record),
		IsActive:    record.IsActive,
		Configured:  true,
	}
}

// apiKeyHint exposes the tail of the stored api key so an administrator
// can recognize which key is configured without seeing the secret.
func (s *Service) apiKeyHint(record *domain.FiscalConfig) string {
	creds, err := domain.DecryptCredentials(s.encKey, record.Credentials)
	if err != nil {
		return ""
	}
	key := creds.APIKey
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
