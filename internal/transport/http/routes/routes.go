package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/transport/http/handlers"
	"github.com/xf00889/alumnisystem-sub000/internal/transport/http/middleware"
	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// FlowSet groups the flows the HTTP layer depends on.
type FlowSet struct {
	Signup        *usecase.SignupFlow
	Login         *usecase.LoginFlow
	PasswordReset *usecase.PasswordResetFlow
	Social        *usecase.SocialReconciliation
	Lockout       *usecase.LockoutService
}

// Sessions issues and validates session tokens.
type Sessions interface {
	handlers.SessionIssuer
	middleware.SessionParser
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Flows    FlowSet
	Sessions Sessions
	Metrics  *middleware.HTTPMetrics
	Gatherer prometheus.Gatherer
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	var sessions handlers.SessionIssuer
	var parser middleware.SessionParser
	if deps.Sessions != nil {
		sessions = deps.Sessions
		parser = deps.Sessions
	}

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		if deps.Flows.Signup != nil {
			handlers.NewSignupHandler(deps.Flows.Signup, sessions).RegisterRoutes(authGroup)
		}
		if deps.Flows.Login != nil {
			handlers.NewAuthHandler(deps.Flows.Login, sessions).RegisterRoutes(authGroup)
		}
		if deps.Flows.PasswordReset != nil {
			handlers.NewPasswordResetHandler(deps.Flows.PasswordReset, sessions, resetTokenTTL(deps.Config)).RegisterRoutes(authGroup)
		}
		if deps.Flows.Social != nil {
			handlers.NewSocialHandler(deps.Flows.Social, sessions, socialSecret(deps.Config)).RegisterRoutes(authGroup)
		}

		if deps.Flows.Lockout != nil {
			adminGroup := api.Group("/admin")
			adminGroup.Use(middleware.RequireSession(parser), middleware.RequireStaff())
			handlers.NewLockoutHandler(deps.Flows.Lockout).RegisterRoutes(adminGroup)
		}
	}

	return r
}
