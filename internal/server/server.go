// Package server exposes the HTTP API: instant estimates, verified orders
// and the cost dashboard.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rooflens/internal/config"
	"github.com/smallbiznis/rooflens/internal/estimator"
	"github.com/smallbiznis/rooflens/internal/observability"
	obslogger "github.com/smallbiznis/rooflens/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/rooflens/internal/observability/metrics"
	obstracing "github.com/smallbiznis/rooflens/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	quotadomain "github.com/smallbiznis/rooflens/internal/quota/domain"
	"github.com/smallbiznis/rooflens/internal/reconciler"
	usagedomain "github.com/smallbiznis/rooflens/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obstracing.GinMiddleware())
	r.Use(obslogger.GinMiddleware(obsCfg.Debug()))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
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

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	estimator *estimator.Service
	orderSvc  orderdomain.Service
	usageSvc  usagedomain.Service
	gate      quotadomain.Gate
	checker   *reconciler.Reconciler
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Estimator *estimator.Service
	OrderSvc  orderdomain.Service
	UsageSvc  usagedomain.Service
	Gate      quotadomain.Gate
	Checker   *reconciler.Reconciler
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		estimator: p.Estimator,
		orderSvc:  p.OrderSvc,
		usageSvc:  p.UsageSvc,
		gate:      p.Gate,
		checker:   p.Checker,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/api/v1")

	v1.GET("/measurements/estimate", s.GetEstimate)
	v1.POST("/measurements/estimate", s.PostEstimate)

	v1.POST("/orders", s.CreateOrder)
	v1.GET("/orders", s.ListOrders)
	v1.GET("/orders/:id", s.GetOrder)
	v1.POST("/orders/:id/check", s.CheckOrder)

	v1.GET("/costs", s.GetCosts)
}
