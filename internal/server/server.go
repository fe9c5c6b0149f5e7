package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/freightdesk/internal/audit"
	auditdomain "github.com/smallbiznis/freightdesk/internal/audit/domain"
	"github.com/smallbiznis/freightdesk/internal/authorization"
	"github.com/smallbiznis/freightdesk/internal/config"
	"github.com/smallbiznis/freightdesk/internal/lock"
	"github.com/smallbiznis/freightdesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/freightdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/freightdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/freightdesk/internal/observability/tracing"
	"github.com/smallbiznis/freightdesk/internal/payables"
	payablesdomain "github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/wizard"
	"github.com/smallbiznis/freightdesk/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	lock.Module,
	payables.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	log = log.Named("http.server")
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
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

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	payablesSvc   payablesdomain.Service
	wizards       *wizard.Manager
	payables      *config.PayablesConfigHolder
	obsMetrics    *obsmetrics.Metrics
	wizardMetrics *obsmetrics.WizardMetrics
	limiter       *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	PayablesSvc   payablesdomain.Service
	Wizards       *wizard.Manager
	Payables      *config.PayablesConfigHolder
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	WizardMetrics *obsmetrics.WizardMetrics `optional:"true"`
	Limiter       *ratelimit.WriteLimiter   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.handler"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		payablesSvc:   p.PayablesSvc,
		wizards:       p.Wizards,
		payables:      p.Payables,
		obsMetrics:    p.ObsMetrics,
		wizardMetrics: p.WizardMetrics,
		limiter:       p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OrgContext())
	api.Use(s.ActorContext())

	// -------- AP Records --------
	records := api.Group("/ap-records")
	records.POST("", s.authorizeOrgAction(authorization.ObjectAPRecord, authorization.ActionAPRecordCreate), s.limitWrites(), s.CreateAPRecord)
	records.GET("", s.authorizeOrgAction(authorization.ObjectAPRecord, authorization.ActionAPRecordView), s.ListAPRecords)
	records.GET("/:id", s.authorizeOrgAction(authorization.ObjectAPRecord, authorization.ActionAPRecordView), s.GetAPRecord)
	records.PUT("/:id", s.authorizeOrgAction(authorization.ObjectAPRecord, authorization.ActionAPRecordUpdate), s.limitWrites(), s.UpdateAPRecord)
	records.GET("/:id/review", s.authorizeOrgAction(authorization.ObjectAPRecord, authorization.ActionAPRecordView), s.ReviewAPRecord)
	records.POST("/:id/wizard", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardOpen), s.OpenWizard)

	// -------- Derivation --------
	api.POST("/ap/derive", s.authorizeOrgAction(authorization.ObjectAPRecord, authorization.ActionAPRecordPreview), s.DerivePreview)

	// -------- Wizard Sessions --------
	sessions := api.Group("/wizard/:session_id")
	sessions.GET("", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardOpen), s.GetWizard)
	sessions.PATCH("/fields", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardEdit), s.EditWizardFields)
	sessions.POST("/next", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardEdit), s.NextWizardStep)
	sessions.POST("/previous", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardEdit), s.PreviousWizardStep)
	sessions.POST("/submit", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardSubmit), s.limitWrites(), s.SubmitWizard)
	sessions.GET("/review", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardOpen), s.ReviewWizard)
	sessions.DELETE("", s.authorizeOrgAction(authorization.ObjectAPWizard, authorization.ActionAPWizardEdit), s.CancelWizard)

	// -------- Audit Logs --------
	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
