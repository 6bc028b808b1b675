package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rgehrsitz/opcap/internal/calculation"
	"github.com/rgehrsitz/opcap/internal/group"
	"github.com/rgehrsitz/opcap/internal/lineage"
	"github.com/rgehrsitz/opcap/internal/metrics"
	"github.com/rgehrsitz/opcap/internal/params"
	"github.com/rgehrsitz/opcap/internal/store"
	"github.com/rgehrsitz/opcap/internal/supervisor"
)

// app wires the store, registries and engine for one command invocation
type app struct {
	store       *store.SQLiteStore
	registry    *params.Registry
	supervisor  *supervisor.Registry
	engine      *calculation.Engine
	consolidate *group.Consolidator
	metrics     *metrics.Metrics
	promReg     *prometheus.Registry
	logger      *zap.Logger
}

func openApp(ctx context.Context) (*app, error) {
	logger := zap.L()

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	reg := params.NewRegistry(
		params.WithRepository(st),
		params.WithLogger(logger),
		params.WithMetrics(m),
	)
	if err := reg.Restore(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	sup := supervisor.NewRegistry(
		supervisor.WithRepository(st),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(m),
	)
	if err := sup.Restore(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	rec := lineage.NewRecorder(st, lineage.WithLogger(logger), lineage.WithMetrics(m))
	engine := calculation.NewEngine(reg, st, rec)
	engine.SetLogger(logger)
	engine.SetMetrics(m)
	engine.BatchLimit = cfg.Batch.MaxConcurrency
	engine.Supervisor = sup

	cons := group.NewConsolidator(engine, st)
	cons.Logger = logger
	cons.Metrics = m
	cons.Limit = cfg.Batch.MaxConcurrency

	return &app{
		store:       st,
		registry:    reg,
		supervisor:  sup,
		engine:      engine,
		consolidate: cons,
		metrics:     m,
		promReg:     promReg,
		logger:      logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp opens the app for the duration of fn
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	return fn(a)
}

const dateLayout = "2006-01-02"

// parseAsOf parses a YYYY-MM-DD date; empty means today
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// parseInstant accepts RFC 3339 or a plain date
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return parseAsOf(s)
}

// defaultActor is the OS user, used when --by is not given
func defaultActor() string {
	for _, key := range []string{"OPCAP_ACTOR", "USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "cli"
}
