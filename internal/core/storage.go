package core

import (
	"context"
	"errors"
	"expvar"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"cargohold/internal/adapters"
	"cargohold/internal/blob"
	"cargohold/internal/config"
	"cargohold/internal/infra/graph/memory"
	"cargohold/internal/infra/graph/postgres"
	"cargohold/internal/infra/graph/sqlite"
	"cargohold/internal/lock"
	"cargohold/pkg/graph"
)

// OpenGraphStore opens the graph engine cfg selects with DefaultConstraints
// installed. The close func releases the engine.
func OpenGraphStore(ctx context.Context, cfg config.Storage) (graph.Store, func() error, error) {
	constraints := DefaultConstraints()
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(memory.WithConstraints(constraints...)), func() error { return nil }, nil
	case config.StorageSQLite, "":
		st, err := sqlite.NewStore(ctx, cfg.SQLitePath, constraints...)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.StoragePostgres:
		st, err := postgres.NewStore(ctx, cfg.PostgresDSN, constraints...)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// NewMetricsRecorder builds the exporter cfg.Metrics names. Prometheus
// collectors are registered with reg. None yields a nil recorder, which
// services replace with a no-op.
func NewMetricsRecorder(cfg config.Observability, reg prometheus.Registerer) (MetricsRecorder, error) {
	switch cfg.Metrics {
	case config.MetricsNone, "":
		return nil, nil
	case config.MetricsExpvar:
		if cfg.ExpvarName != "" && expvar.Get(cfg.ExpvarName) != nil {
			return nil, fmt.Errorf("expvar name %s already published", cfg.ExpvarName)
		}
		return NewExpvarMetricsRecorder(cfg.ExpvarName), nil
	case config.MetricsPrometheus:
		rec, err := NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.Metrics)
	}
}

// Open assembles a Service from cfg: graph store, blob content store, lock
// timeout, hierarchy depth and metrics exporter. Extra options are applied
// last.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Service, func() error, error) {
	wired, err := adapters.New(adapters.Options{MaxHierarchyDepth: cfg.MaxHierarchyDepth})
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := OpenGraphStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, nil, errors.Join(err, closeStore())
	}
	metrics, err := NewMetricsRecorder(cfg.Observability, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, errors.Join(err, closeStore())
	}
	base := []Option{
		WithAdapters(wired),
		WithLocks(lock.New(cfg.LockTimeout)),
		WithContentStore(NewContentStore(blobs)),
		WithMetricsRecorder(metrics),
	}
	svc, err := NewService(store, append(base, opts...)...)
	if err != nil {
		return nil, nil, errors.Join(err, closeStore())
	}
	return svc, closeStore, nil
}
