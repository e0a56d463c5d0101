package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutdomain "github.com/smallbiznis/fiskal/internal/checkout/domain"
	"github.com/smallbiznis/fiskal/internal/config"
	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"github.com/smallbiznis/fiskal/internal/observability"
	obsmiddleware "github.com/smallbiznis/fiskal/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fiskal/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server holds the handler dependencies.
type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	fiscalSvc   fiscaldomain.Service
	checkoutSvc checkoutdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	FiscalSvc   fiscaldomain.Service
	CheckoutSvc checkoutdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		fiscalSvc:   p.FiscalSvc,
		checkoutSvc: p.CheckoutSvc,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")
	v1.Use(OrgMiddleware(s.cfg))

	v1.GET("/fiscal/config", s.GetFiscalConfig)
	v1.POST("/fiscal/config", s.UpsertFiscalConfig)
	v1.PATCH("/fiscal/config/status", s.UpdateFiscalConfigStatus)
	v1.GET("/fiscal/status", s.FiscalStatus)
	v1.POST("/fiscal/export", s.FiscalExport)

	v1.POST("/sales", s.CreateSale)
	v1.GET("/sales", s.ListSales)
	v1.GET("/sales/:id", s.GetSale)
	v1.POST("/sales/:id/cancel", s.CancelSale)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
