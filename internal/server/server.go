package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/commissionhub/internal/audit"
	auditdomain "github.com/smallbiznis/commissionhub/internal/audit/domain"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"github.com/smallbiznis/commissionhub/internal/catalog"
	"github.com/smallbiznis/commissionhub/internal/catalog/classifier"
	"github.com/smallbiznis/commissionhub/internal/commission"
	commissiondomain "github.com/smallbiznis/commissionhub/internal/commission/domain"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/customer"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	"github.com/smallbiznis/commissionhub/internal/observability"
	obslogger "github.com/smallbiznis/commissionhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/commissionhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/commissionhub/internal/observability/tracing"
	"github.com/smallbiznis/commissionhub/internal/order"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
	"github.com/smallbiznis/commissionhub/internal/rule"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"github.com/smallbiznis/commissionhub/internal/scheduler"
	"github.com/smallbiznis/commissionhub/internal/syncjob"
	"github.com/smallbiznis/commissionhub/internal/syncrun"
	syncrundomain "github.com/smallbiznis/commissionhub/internal/syncrun/domain"
	"github.com/smallbiznis/commissionhub/internal/upstream"
	"github.com/smallbiznis/commissionhub/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	customer.Module,
	catalog.Module,
	rule.Module,
	commission.Module,
	order.Module,
	syncrun.Module,
	upstream.Module,
	jobqueue.Module,
	syncjob.Module,
	webhook.Module,
	scheduler.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Logger:          log.Named("http"),
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// SyncTrigger starts a sync run and schedules its job.
type SyncTrigger interface {
	Trigger(ctx context.Context, typ syncrundomain.Type) (snowflake.ID, error)
}

// WebhookReceiver accepts raw order deliveries.
type WebhookReceiver interface {
	Receive(ctx context.Context, d webhook.Delivery) (webhook.Result, error)
}

// Recalculator schedules a recalculation pass.
type Recalculator interface {
	Enqueue(job jobqueue.Job) error
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	commissionSvc commissiondomain.Service
	orderSvc      orderdomain.Service
	syncRunSvc    syncrundomain.Service
	syncTrigger   SyncTrigger
	webhooks      WebhookReceiver
	queue         Recalculator
	rules         ruledomain.Loader
	classifier    *classifier.Classifier
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	CommissionSvc commissiondomain.Service
	OrderSvc      orderdomain.Service
	SyncRunSvc    syncrundomain.Service
	SyncTrigger   *syncjob.Runner
	Webhooks      *webhook.Service
	Queue         *jobqueue.Queue
	Rules         ruledomain.Loader
	Classifier    *classifier.Classifier
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		commissionSvc: p.CommissionSvc,
		orderSvc:      p.OrderSvc,
		syncRunSvc:    p.SyncRunSvc,
		syncTrigger:   p.SyncTrigger,
		webhooks:      p.Webhooks,
		queue:         p.Queue,
		rules:         p.Rules,
		classifier:    p.Classifier,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")
	hooks.POST("/orders", s.HandleOrderWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	// -------- Sync runs --------
	api.POST("/sync-runs", s.ActorRequired(), s.StartSyncRun)
	api.GET("/sync-runs/:id", s.GetSyncRun)

	// -------- Commissions --------
	api.GET("/commissions", s.ListCommissions)
	api.GET("/commissions/:id", s.GetCommission)
	api.POST("/commissions/bulk-approve", s.ActorRequired(), s.BulkApproveCommissions)
	api.POST("/commissions/bulk-mark-paid", s.ActorRequired(), s.BulkMarkCommissionsPaid)
	api.POST("/commissions/recalculate", s.ActorRequired(), s.RecalculateCommissions)
	api.POST("/commissions/:id/approve", s.ActorRequired(), s.ApproveCommission)
	api.POST("/commissions/:id/adjust", s.ActorRequired(), s.AdjustCommission)
	api.POST("/commissions/:id/mark-paid", s.ActorRequired(), s.MarkCommissionPaid)
	api.DELETE("/commissions/:id", s.ActorRequired(), s.DeleteCommission)

	// -------- Rules --------
	api.POST("/rules/resolve", s.ResolveRule)

	// -------- Orders --------
	api.GET("/orders/:external_id", s.GetOrder)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

var (
	_ SyncTrigger     = (*syncjob.Runner)(nil)
	_ WebhookReceiver = (*webhook.Service)(nil)
)
