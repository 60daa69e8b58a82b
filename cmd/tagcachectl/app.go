package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitaliisemenov/tagcache/internal/backend"
	"github.com/vitaliisemenov/tagcache/internal/config"
	"github.com/vitaliisemenov/tagcache/pkg/logger"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/affinity"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/locks"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/relations"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/tagcache"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/tagmetrics"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/txn"
)

// app bundles the constructed cache stack a single CLI invocation needs.
// Every invocation is its own affinity owner — tagcachectl runs one
// command per process, so there's exactly one logical "thread" using
// the relation/transaction managers.
type app struct {
	cfg     *config.Config
	cache   cacheport.Cache
	wrapper *tagcache.Wrapper
	owner   affinity.Token
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	sanitized := config.NewDefaultConfigSanitizer().Sanitize(cfg)
	log.Debug("loaded config",
		"backend", sanitized.Cache.Backend,
		"isolation", sanitized.Cache.Isolation,
		"redis_addr", sanitized.Redis.Addr,
		"postgres_host", sanitized.Postgres.Host,
	)

	cache, err := backend.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("construct backend: %w", err)
	}

	isolation, err := cfg.IsolationLevel()
	if err != nil {
		return nil, err
	}
	lock, err := locks.Make(isolation, cfg.Lock.Delay, log)
	if err != nil {
		return nil, fmt.Errorf("construct lock strategy: %w", err)
	}

	owner := affinity.NewToken()
	rel := relations.New(owner)
	txns := txn.New(lock, owner)

	var metrics *tagmetrics.Metrics
	if cfg.Cache.EnableMetrics {
		metrics = tagmetrics.New(prometheus.DefaultRegisterer)
	}

	wrapper := tagcache.New(cache, owner, rel, txns,
		tagcache.WithLogger(log),
		tagcache.WithMetrics(metrics),
		tagcache.WithBackendName(string(cfg.Cache.Backend)),
		tagcache.WithPrefix(cfg.Cache.KeyPrefix),
	)

	return &app{cfg: cfg, cache: cache, wrapper: wrapper, owner: owner}, nil
}

func (a *app) Close() error {
	return a.cache.Close()
}
