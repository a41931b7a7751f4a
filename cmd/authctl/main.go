package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/xf00889/alumnisystem-sub000/internal/infra/app"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/database"
	"github.com/xf00889/alumnisystem-sub000/internal/repository/postgres"
	"github.com/xf00889/alumnisystem-sub000/internal/transport/cli"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(openRuntime).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func openRuntime(ctx context.Context) (*cli.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	infra, err := app.OpenInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	core, err := app.BuildCore(cfg, app.CoreDeps{
		Users:  infra.Repos.Users,
		Store:  infra.Store,
		Sink:   infra.Sink,
		Logger: infra.Logger,
	})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("build auth core: %w", err)
	}

	return &cli.Runtime{
		Lockout: core.Lockout,
		Migrate: func(ctx context.Context) error {
			return postgres.EnsureSchema(ctx, infra.Pool, database.Schema(cfg.Postgres))
		},
		Close: infra.Close,
	}, nil
}
