package manager

import (
	"context"
	"sync"

	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClientFactory builds a service client bound to one configuration.
type ClientFactory func(cfg domain.Config) FiscalClient

// Registry caches initialized managers per organization so repeated
// signing calls skip re-authentication and re-registration. It is an
// explicit process-scoped service: no ambient singleton, invalidated
// only on configuration change.
type Registry struct {
	db      *gorm.DB
	repo    domain.Repository
	encKey  []byte
	factory ClientFactory
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	managers map[int64]*Manager
}

func NewRegistry(db *gorm.DB, repo domain.Repository, encKey []byte, factory ClientFactory, log *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		db:       db,
		repo:     repo,
		encKey:   encKey,
		factory:  factory,
		log:      log.Named("fiscal.registry"),
		metrics:  m,
		managers: make(map[int64]*Manager),
	}
}

// Get returns the cached enabled manager for the org, or constructs and
// initializes a fresh one. Only enabled managers are cached, so a tenant
// in degraded mode retries initialization on the next call. Concurrent
// callers may race to initialize; duplicate initialization is idempotent
// and the last write wins.
func (r *Registry) Get(ctx context.Context, orgID int64) (*Manager, error) {
	r.mu.Lock()
	cached := r.managers[orgID]
	r.mu.Unlock()

	if cached != nil && cached.IsEnabled() {
		return cached, nil
	}

	m, err := r.initialize(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if m.IsEnabled() {
		r.mu.Lock()
		r.managers[orgID] = m
		r.mu.Unlock()
	}
	return m, nil
}

// Invalidate drops the cached manager so the next Get re-reads
// configuration and re-initializes. Called on every configuration
// create, update or deactivation.
func (r *Registry) Invalidate(orgID int64) {
	r.mu.Lock()
	delete(r.managers, orgID)
	r.mu.Unlock()
}

// initialize loads configuration and brings up a manager. Absence of
// configuration is not an error: it yields a disabled manager whose
// signing calls return nil without any network traffic. Remote failures
// likewise degrade to a disabled manager; only local infrastructure
// errors propagate.
func (r *Registry) initialize(ctx context.Context, orgID int64) (*Manager, error) {
	record, err := r.repo.FindConfig(ctx, r.db, orgID)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.IsActive {
		return newDisabledManager(orgID, r.log, r.metrics), nil
	}

	creds, err := domain.DecryptCredentials(r.encKey, record.Credentials)
	if err != nil {
		r.log.Error("fiscal credentials unreadable",
			zap.Int64("org_id", orgID),
			zap.Error(err),
		)
		return newDisabledManager(orgID, r.log, r.metrics), nil
	}

	cfg := domain.Config{
		OrgID:       orgID,
		APIKey:      creds.APIKey,
		APISecret:   creds.APISecret,
		AdminPIN:    creds.AdminPIN,
		TssID:       record.TssID,
		ClientID:    record.ClientID,
		Environment: record.Environment,
		IsActive:    record.IsActive,
	}

	m := newManager(orgID, cfg, r.factory(cfg), r.log, r.metrics)
	if err := m.Initialize(ctx); err != nil {
		r.log.Warn("fiscal manager initialization failed, signing disabled",
			zap.Int64("org_id", orgID),
			zap.Error(err),
		)
	}
	return m, nil
}
