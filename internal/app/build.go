package app

import (
	"context"
	"fmt"

	"github.com/waypointhq/waypoint/internal/action"
	"github.com/waypointhq/waypoint/internal/breakdown"
	"github.com/waypointhq/waypoint/internal/config"
	"github.com/waypointhq/waypoint/internal/goals"
	"github.com/waypointhq/waypoint/internal/httpapi"
	"github.com/waypointhq/waypoint/internal/lifecycle"
	"github.com/waypointhq/waypoint/internal/maintainer"
	"github.com/waypointhq/waypoint/internal/merge"
	"github.com/waypointhq/waypoint/internal/observability"
	"github.com/waypointhq/waypoint/internal/oracle"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Registry   *goals.Registry
	Actions    *action.Router
	Maintainer *maintainer.Maintainer
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := goals.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("goal store init failed: %w", err)
	}

	registry := goals.NewRegistry()
	registry.SetStore(store)

	oracleCfg := oracle.Config{
		Mode:          cfg.OracleMode,
		GenerativeURL: cfg.GenerativeURL,
		SchedulerURL:  cfg.SchedulerURL,
		Timeout:       cfg.OracleTimeout,
		MaxAttempts:   cfg.OracleRetries,
		OnError: func(oracleName, code string) {
			metrics.OracleErrors.WithLabelValues(oracleName, code).Inc()
		},
	}
	generator, err := oracle.NewGenerative(oracleCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("generative oracle init failed: %w", err)
	}
	scheduler, err := oracle.NewScheduler(oracleCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("scheduler oracle init failed: %w", err)
	}

	controller := lifecycle.NewController(registry, generator, scheduler,
		lifecycle.WithSessionTarget(cfg.MinUpcoming),
		lifecycle.WithHorizon(cfg.ScheduleHorizon),
	)
	builder := breakdown.NewBuilder(registry)
	reconciler := merge.NewReconciler(registry)
	actions := action.NewRouter(registry, controller, builder, reconciler, generator, metrics)

	maint := maintainer.New(registry, scheduler,
		maintainer.WithMinUpcoming(cfg.MinUpcoming),
		maintainer.WithHorizon(cfg.ScheduleHorizon),
		maintainer.WithMetrics(metrics),
	)
	metrics.ActiveGoals.Set(float64(len(registry.ActiveGoals())))

	api := httpapi.New(cfg, registry, actions, metrics)

	cleanup := func() error {
		return store.Close()
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Registry:   registry,
		Actions:    actions,
		Maintainer: maint,
		Metrics:    metrics,
		Cleanup:    cleanup,
	}, nil
}
