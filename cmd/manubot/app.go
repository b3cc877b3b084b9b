package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agitter/manubot/internal/cache"
	"github.com/agitter/manubot/internal/config"
	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/observability"
	"github.com/agitter/manubot/internal/overlay"
	"github.com/agitter/manubot/internal/providers/builtin"
	"github.com/agitter/manubot/internal/resolver"
)

// app holds what every command needs: configuration, a logger whose
// error-level events are counted, and the metrics registry.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	errors   *observability.ErrorCounter
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

// newApp loads configuration with the persistent flags and overrides on
// top. Configuration problems are returned as config errors.
func newApp(cmd *cobra.Command, overrides map[string]any) (*app, error) {
	if overrides == nil {
		overrides = map[string]any{}
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides["logging.level"] = logLevel
	}
	if flags.Changed("log-format") {
		overrides["logging.format"] = logFormat
	}
	if flags.Changed("metrics-file") {
		overrides["metrics.file"] = metricsFile
	}

	cfg, err := config.Load(config.Options{ConfigFile: configFile, Overrides: overrides})
	if err != nil {
		return nil, asConfigError(fmt.Errorf("load config: %w", err))
	}

	counter := &observability.ErrorCounter{}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	}).Hook(counter)

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   observability.WithRunContext(logger, observability.NewRunID(), cmd.Name()),
		errors:   counter,
		registry: registry,
		metrics:  observability.NewMetrics(cfg.Metrics.Namespace, registry),
	}, nil
}

// openCache opens the configured cache, clearing it first when asked to.
func (a *app) openCache(ctx context.Context) *cache.Cache {
	c := cache.Open(ctx, a.cfg.Cache.Location, cache.OpenOptions{
		Database: &a.cfg.Database,
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
	if a.cfg.Cache.Clear {
		if err := c.Clear(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("could not clear request cache")
		}
	}
	return c
}

// loadOverlay reads manual references from path. Problems are warnings.
func (a *app) loadOverlay(path string) *overlay.Set {
	set, err := overlay.Load(path, overlay.Options{Logger: a.logger, Metrics: a.metrics})
	if err != nil {
		a.logger.Warn().Err(err).Msg("ignoring manual references")
	}
	return set
}

// newResolver wires the provider registry, cache, overlay and validator.
func (a *app) newResolver(c *cache.Cache, set *overlay.Set, tags identifier.Tags) (*resolver.Resolver, error) {
	mode, err := csl.ParseMode(a.cfg.Resolver.Validation)
	if err != nil {
		return nil, asConfigError(err)
	}
	registry := builtin.Registry(a.cfg.Providers, builtin.Options{Metrics: a.metrics})
	a.logger.Debug().Interface("providers", registry.Providers()).Msg("providers registered")

	return resolver.New(registry, resolver.Config{
		Concurrency: a.cfg.Resolver.Concurrency,
		KeyStyle:    a.cfg.Resolver.KeyStyle,
	},
		resolver.WithCache(c),
		resolver.WithOverlay(set),
		resolver.WithTags(tags),
		resolver.WithValidator(csl.NewValidator(mode, a.logger)),
		resolver.WithLogger(a.logger),
		resolver.WithMetrics(a.metrics),
	), nil
}

// runContext bounds ctx by the configured run timeout.
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Resolver.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Resolver.Timeout)
	}
	return context.WithCancel(ctx)
}

// finish writes the metrics file and folds logged errors into the result.
func (a *app) finish(err error) error {
	if path := a.cfg.Metrics.File; path != "" {
		if werr := prometheus.WriteToTextfile(path, a.registry); werr != nil {
			a.logger.Warn().Err(werr).Str("path", path).Msg("could not write metrics file")
		}
	}
	if err == nil && a.errors.Count() > 0 {
		return errLoggedFailures
	}
	return err
}

// createFile opens path for writing, or returns stdout for "" and "-".
func createFile(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
