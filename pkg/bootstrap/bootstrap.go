// Package bootstrap opens the stores and brokers shared by the giftshop
// binaries. Optional backends that are disabled in config fall back to
// no-op or in-memory implementations.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/example/giftshop/pkg/cart"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/events"
	"github.com/example/giftshop/pkg/metrics"
	"github.com/example/giftshop/pkg/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Infra struct {
	DB        *gorm.DB
	Redis     *repository.RedisRepository
	Auditor   repository.Auditor
	Publisher events.Publisher
	Metrics   *metrics.Metrics

	closers []func(ctx context.Context) error
	logger  *zap.Logger
}

func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	infra := &Infra{
		Auditor:   repository.NoopAuditor{},
		Publisher: events.Noop{},
		logger:    logger,
	}

	db, err := repository.OpenDB(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	infra.closers = append(infra.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if cfg.Redis.Enabled {
		infra.Redis = repository.NewRedisRepository(&cfg.Redis)
		infra.closers = append(infra.closers, func(context.Context) error { return infra.Redis.Close() })
		if err := ping(ctx, infra.Redis.Ping); err != nil {
			logger.Warn("Redis connection failed", zap.Error(err))
		} else {
			logger.Info("Redis connected successfully")
		}
	}

	if cfg.MongoDB.Enabled {
		mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
		if err != nil {
			infra.Close(ctx)
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		infra.Auditor = mongoRepo
		infra.closers = append(infra.closers, mongoRepo.Close)
		if err := ping(ctx, mongoRepo.Ping); err != nil {
			logger.Warn("MongoDB connection failed, audit entries will be dropped", zap.Error(err))
		}
	}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			infra.Close(ctx)
			return nil, err
		}
		infra.Publisher = publisher
		infra.closers = append(infra.closers, func(context.Context) error { return publisher.Close() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		infra.Close(ctx)
		return nil, err
	}
	infra.Metrics = m

	return infra, nil
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return fn(ctx)
}

// CartStorage prefers redis and falls back to process memory.
func (i *Infra) CartStorage() cart.Storage {
	if i.Redis != nil {
		return i.Redis
	}
	i.logger.Warn("Redis disabled, carts are kept in memory")
	return cart.NewMemoryStorage()
}

// Close releases everything Open acquired, newest first.
func (i *Infra) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](ctx); err != nil {
			i.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	i.closers = nil
}

// SessionKey returns the configured key, or a random one that invalidates
// every session on restart.
func SessionKey(cfg config.SessionConfig, logger *zap.Logger) (string, error) {
	if cfg.Key != "" {
		return cfg.Key, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	logger.Warn("session.key is empty, generated a random key")
	return hex.EncodeToString(buf), nil
}
