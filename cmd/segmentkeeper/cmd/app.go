package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/solatis/segmentkeeper/internal/analytics"
	"github.com/solatis/segmentkeeper/internal/core/config"
	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/instances"
	"github.com/solatis/segmentkeeper/internal/layout"
	"github.com/solatis/segmentkeeper/internal/rules"
	"github.com/solatis/segmentkeeper/internal/rules/visited"
)

// app holds the components shared by every command that touches rules.
type app struct {
	db        *sqlx.DB
	queries   *db.Queries
	redis     *redis.Client
	metrics   *rules.Metrics
	registry  *rules.Registry
	layouts   *layout.Store
	instances *instances.Service
}

// newApp opens storage and registers the built-in rules. reg may be nil
// when no metrics are exported.
func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	database, queries, err := openQueries(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: database, queries: queries}

	if reg != nil {
		a.metrics, err = rules.NewMetrics(reg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	var counter analytics.Counter = analytics.NewStore(queries)
	if cfg.Redis.URL != "" {
		a.redis, err = analytics.ConnectRedis(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		counter = analytics.NewCachedCounter(counter, a.redis, cfg.Redis.CountTTL, logger)
		logger.Info("analytics counts cached in redis", "ttl", cfg.Redis.CountTTL)
	}

	a.layouts = layout.NewStore(queries)
	a.registry = rules.NewRegistry(logger, a.metrics)
	err = a.registry.RegisterAll(
		visited.New(counter, a.layouts,
			visited.WithTrackingPageEnabled(cfg.Rules.TrackingPageEnabled),
			visited.WithLogger(logger),
		),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register rules: %w", err)
	}

	a.instances = instances.NewService(queries, a.registry, logger)
	return a, nil
}

// Close deactivates the rules and releases connections.
func (a *app) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}
