package fiscal

import (
	"github.com/smallbiznis/fiskal/internal/config"
	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/fiscal/fiskaly"
	"github.com/smallbiznis/fiskal/internal/fiscal/manager"
	"github.com/smallbiznis/fiskal/internal/fiscal/repository"
	"github.com/smallbiznis/fiskal/internal/fiscal/service"
	"github.com/smallbiznis/fiskal/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("fiscal.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewClientFactory),
	fx.Provide(NewRegistry),
	fx.Provide(service.New),
)

// NewClientFactory builds Fiskaly clients bound to a tenant config,
// honoring the global endpoint override.
func NewClientFactory(cfg config.Config, log *zap.Logger, m *metrics.Metrics) manager.ClientFactory {
	return func(fiscalCfg domain.Config) manager.FiscalClient {
		opts := []fiskaly.Option{fiskaly.WithMetrics(m)}
		if cfg.FiscalBaseURL != "" {
			opts = append(opts, fiskaly.WithBaseURL(cfg.FiscalBaseURL))
		}
		return fiskaly.New(fiskaly.Config{
			OrgID:       fiscalCfg.OrgID,
			APIKey:      fiscalCfg.APIKey,
			APISecret:   fiscalCfg.APISecret,
			TssID:       fiscalCfg.TssID,
			ClientID:    fiscalCfg.ClientID,
			Environment: fiscalCfg.Environment,
		}, log, opts...)
	}
}

func NewRegistry(db *gorm.DB, repo domain.Repository, cfg config.Config, factory manager.ClientFactory, log *zap.Logger, m *metrics.Metrics) *manager.Registry {
	return manager.NewRegistry(db, repo, domain.DeriveKey(cfg.FiscalConfigSecret), factory, log, m)
}
