package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/packhub/internal/audit"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	"github.com/smallbiznis/packhub/internal/auth"
	authdomain "github.com/smallbiznis/packhub/internal/auth/domain"
	"github.com/smallbiznis/packhub/internal/authorization"
	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/dependency"
	"github.com/smallbiznis/packhub/internal/observability"
	obslogger "github.com/smallbiznis/packhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/packhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/packhub/internal/observability/tracing"
	"github.com/smallbiznis/packhub/internal/organization"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
	"github.com/smallbiznis/packhub/internal/pack"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	"github.com/smallbiznis/packhub/internal/publish"
	"github.com/smallbiznis/packhub/internal/ratelimit"
	"github.com/smallbiznis/packhub/internal/release"
	"github.com/smallbiznis/packhub/internal/version"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	"github.com/smallbiznis/packhub/internal/webhook"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	blobstore.Module,
	ratelimit.Module,
	organization.Module,
	authorization.Module,
	auth.Module,
	audit.Module,
	pack.Module,
	version.Module,
	dependency.Module,
	webhook.Module,
	publish.Module,
	release.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	// Scoped names arrive as @org%2Fname and must match a single :name segment.
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine          *gin.Engine
	cfg             config.Config
	authSvc         authdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	packSvc         packdomain.Service
	versionSvc      versiondomain.Service
	dependencySvc   *dependency.Service
	organizationSvc orgdomain.Service
	webhookSvc      webhookdomain.Service
	publishSvc      *publish.Service
	releaseSvc      *release.Service
	blobs           blobstore.Store
	publishLimiter  ratelimit.Limiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthSvc         authdomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	PackSvc         packdomain.Service
	VersionSvc      versiondomain.Service
	DependencySvc   *dependency.Service
	OrganizationSvc orgdomain.Service
	WebhookSvc      webhookdomain.Service
	PublishSvc      *publish.Service
	ReleaseSvc      *release.Service
	Blobs           blobstore.Store
	PublishLimiter  ratelimit.Limiter   `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authSvc:         p.AuthSvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		packSvc:         p.PackSvc,
		versionSvc:      p.VersionSvc,
		dependencySvc:   p.DependencySvc,
		organizationSvc: p.OrganizationSvc,
		webhookSvc:      p.WebhookSvc,
		publishSvc:      p.PublishSvc,
		releaseSvc:      p.ReleaseSvc,
		blobs:           p.Blobs,
		publishLimiter:  p.PublishLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerPackRoutes()
	svc.registerOrganizationRoutes()
	svc.registerWebhookRoutes()
	svc.registerTokenRoutes()
	svc.registerAuditRoutes()
	svc.registerReleaseRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPackRoutes() {
	api := s.engine.Group("/api")

	api.GET("/packs", s.ListPacks)
	api.POST("/packs", s.PublishRateLimit(), s.AuthRequired(), s.PublishPack)
	api.GET("/packs/:name", s.GetPack)
	api.PATCH("/packs/:name", s.AuthRequired(), s.UpdatePack)
	api.DELETE("/packs/:name", s.AuthRequired(), s.DeletePack)

	api.GET("/packs/:name/versions", s.ListVersions)
	api.GET("/packs/:name/versions/:version", s.GetVersion)
	api.GET("/packs/:name/versions/:version/tarball", s.DownloadTarball)

	api.GET("/packs/:name/graph", s.GetDependencyGraph)
	api.GET("/packs/:name/dependents", s.ListDependents)
}

func (s *Server) registerOrganizationRoutes() {
	api := s.engine.Group("/api")

	api.POST("/orgs", s.AuthRequired(), s.CreateOrganization)
	api.GET("/orgs/:org", s.GetOrganization)
	api.PATCH("/orgs/:org", s.AuthRequired(), s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationUpdate), s.UpdateOrganization)
	api.DELETE("/orgs/:org", s.AuthRequired(), s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationDelete), s.DeleteOrganization)

	api.GET("/orgs/:org/members", s.AuthRequired(), s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	api.POST("/orgs/:org/members", s.AuthRequired(), s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberAdd), s.AddMember)
	api.DELETE("/orgs/:org/members/:username", s.AuthRequired(), s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMember)

	api.GET("/user/orgs", s.AuthRequired(), s.ListUserOrgs)
}

func (s *Server) registerWebhookRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	api.POST("/packs/:name/webhooks", s.CreateWebhook)
	api.GET("/packs/:name/webhooks", s.ListWebhooks)

	api.GET("/webhooks/:id", s.GetWebhook)
	api.PATCH("/webhooks/:id", s.UpdateWebhook)
	api.DELETE("/webhooks/:id", s.DeleteWebhook)
	api.GET("/webhooks/:id/deliveries", s.ListWebhookDeliveries)
}

func (s *Server) registerTokenRoutes() {
	tokens := s.engine.Group("/api/tokens", s.AuthRequired())

	tokens.GET("", s.ListTokens)
	tokens.POST("", s.CreateToken)
	tokens.DELETE("/:id", s.RevokeToken)
}

func (s *Server) registerAuditRoutes() {
	s.engine.GET("/api/audit", s.AuthRequired(), s.ListAuditLogs)
}

func (s *Server) registerReleaseRoutes() {
	s.engine.POST("/api/releases/github", s.HandleGitHubRelease)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
