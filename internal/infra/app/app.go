package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/mail"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/security"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/telemetry"
	"github.com/xf00889/alumnisystem-sub000/internal/transport/http/middleware"
	"github.com/xf00889/alumnisystem-sub000/internal/transport/http/routes"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	infra  *Infra
	mailer *mail.AsyncMailer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	infra, err := OpenInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log := infra.Logger

	authMetrics, err := telemetry.NewAuthMetrics(telemetry.AuthMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	mailer, err := infra.NewMailer()
	if err != nil {
		infra.Close()
		return nil, err
	}

	core, err := BuildCore(cfg, CoreDeps{
		Users:   infra.Repos.Users,
		Store:   infra.Store,
		Mailer:  mailer,
		Sink:    infra.Sink,
		Metrics: authMetrics,
		Logger:  log,
	})
	if err != nil {
		mailer.Close()
		infra.Close()
		return nil, fmt.Errorf("init auth core: %w", err)
	}

	var sessions routes.Sessions
	manager, err := security.NewSessionManager(cfg.Session.Secret, sessionIssuer(cfg), cfg.Session.TTL)
	switch {
	case err == nil:
		sessions = manager
	case errors.Is(err, security.ErrSessionSecretMissing) && cfg.App.Env != "production":
		log.Warn("session secret not configured, flows return users without tokens")
	default:
		mailer.Close()
		infra.Close()
		return nil, fmt.Errorf("init session manager: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Sessions: sessions,
		Metrics:  httpMetrics,
		Database: infra.Pool,
		Cache:    infra.Redis,
		Flows: routes.FlowSet{
			Signup:        core.Signup,
			Login:         core.Login,
			PasswordReset: core.PasswordReset,
			Social:        core.Social,
			Lockout:       core.Lockout,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		infra:  infra,
		mailer: mailer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer a.infra.Close()
	defer a.mailer.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting alumni auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func sessionIssuer(cfg *config.AppConfig) string {
	if cfg.Session.Issuer != "" {
		return cfg.Session.Issuer
	}
	return cfg.App.Name
}
