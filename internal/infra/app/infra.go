package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/audit"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/database"
	kafkainfra "github.com/xf00889/alumnisystem-sub000/internal/infra/kafka"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/mail"
	redisinfra "github.com/xf00889/alumnisystem-sub000/internal/infra/redis"
	postgresrepo "github.com/xf00889/alumnisystem-sub000/internal/repository/postgres"
	redisrepo "github.com/xf00889/alumnisystem-sub000/internal/repository/redis"
)

// Infra holds the connections shared by the API process and the CLI.
type Infra struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Redis    *redisinfra.Client
	Repos    *postgresrepo.Repositories
	Store    *redisrepo.KVStore
	Producer *kafkainfra.Producer
	Sink     *audit.FanoutSink
}

// OpenInfra connects Postgres and Redis and assembles the audit fan-out:
// structured log, security_events table and, with brokers configured, Kafka.
func OpenInfra(ctx context.Context, cfg *config.AppConfig) (*Infra, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	infra := &Infra{
		Config: cfg,
		Logger: log,
		Pool:   pool,
		Redis:  redisClient,
		Repos:  postgresrepo.NewRepositories(pool, database.Schema(cfg.Postgres)),
		Store:  redisrepo.NewKVStore(redisClient.Client(), redisClient.KeyPrefix()),
	}

	sinks := []port.AuditSink{audit.NewLogSink(log), infra.Repos.SecurityEvents}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("kafka producer unavailable, security events stay local", zap.Error(err))
		} else {
			infra.Producer = producer
			sinks = append(sinks, audit.NewPublisherSink(kafkainfra.NewEventPublisher(producer, cfg.App, log)))
		}
	} else {
		log.Info("kafka brokers not configured, security events stay local")
	}
	infra.Sink = audit.NewFanoutSink(sinks...)

	return infra, nil
}

// NewMailer builds the provider chain behind a worker queue.
func (i *Infra) NewMailer() (*mail.AsyncMailer, error) {
	chain, err := mail.NewFromConfig(i.Config.Mail, i.Logger)
	if err != nil {
		return nil, fmt.Errorf("init mail providers: %w", err)
	}
	i.Logger.Info("mail providers configured", zap.Strings("providers", chain.Providers()))
	return mail.NewAsyncMailer(chain, mail.AsyncConfig{
		Workers:   i.Config.Mail.Workers,
		QueueSize: i.Config.Mail.QueueSize,
	}, i.Logger), nil
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() {
	if i.Producer != nil {
		if err := i.Producer.Close(); err != nil {
			i.Logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
	_ = i.Logger.Sync()
}
