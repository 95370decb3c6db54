package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/jsdealy/bmdb/internal/config"
	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/logger"
	"github.com/jsdealy/bmdb/internal/metrics"
	"github.com/jsdealy/bmdb/internal/metrics/datadog"
	"github.com/jsdealy/bmdb/internal/storage"
)

type envKey struct{}

// env is what every command works with once setup has run.
type env struct {
	cfg   config.Config
	store storage.Store

	closeMetrics func()
}

func fromContext(c *cli.Context) (*env, error) {
	e, ok := c.Context.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, fmt.Errorf("bmdb: command ran without setup")
	}
	return e, nil
}

// Flag name -> config key, grouped by flag type.
var (
	stringFlagKeys = map[string]string{
		"data-dir":        config.KeyDataDir,
		"store":           config.KeyStore,
		"dsn":             config.KeyDSN,
		"skip-forward":    config.KeySkipForward,
		"log-level":       config.KeyLogLevel,
		"metrics-backend": config.KeyMetricsBackend,
		"awards":          config.KeyAwards,
		"selector":        config.KeyAwardsSelector,
		"output":          config.KeyOutput,
	}
	intFlagKeys = map[string]string{
		"workers":    config.KeyWorkers,
		"batch-size": config.KeyBatchSize,
	}
	boolFlagKeys = map[string]string{
		"verbose": config.KeyVerbose,
	}
)

// applyFlags copies every flag the user set onto v so it wins over the
// environment and defaults. Empty strings count as unset.
func applyFlags(c *cli.Context, v *viper.Viper) {
	for name, key := range stringFlagKeys {
		if c.IsSet(name) && c.String(name) != "" {
			v.Set(key, c.String(name))
		}
	}
	for name, key := range intFlagKeys {
		if c.IsSet(name) {
			v.Set(key, c.Int(name))
		}
	}
	for name, key := range boolFlagKeys {
		if c.IsSet(name) {
			v.Set(key, c.Bool(name))
		}
	}
}

// loadConfig resolves the configuration for c without side effects.
func loadConfig(c *cli.Context) (config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, fmt.Errorf("working directory: %w", err)
	}
	v := config.New()
	applyFlags(c, v)
	cfg, err := config.FromViper(v, cwd)
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// setup resolves configuration, then configures logging and metrics, opens
// the store and ensures the schema.
func setup(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.Setup(os.Stderr, cfg.LogLevel, cfg.Verbose)

	e := &env{cfg: cfg, closeMetrics: setupMetrics(c.Context, cfg)}

	logger.Log.Debug().
		Str("store", cfg.Store.Kind).
		Str("data_dir", cfg.DataDir).
		Int("workers", cfg.Workers).
		Int("batch_size", cfg.BatchSize).
		Str("skip_forward", cfg.SkipForward.String()).
		Msg("configuration")

	start := time.Now()
	st, err := storage.Open(c.Context, cfg.Store)
	if err != nil {
		e.closeMetrics()
		return fmt.Errorf("open %s store: %w", cfg.Store.Kind, err)
	}
	e.store = st

	if err := st.EnsureTables(c.Context, storage.Catalog()); err != nil {
		st.Close()
		e.closeMetrics()
		return fmt.Errorf("ensure tables: %w", err)
	}
	logger.Log.Info().Msgf("stage=schema store=%s duration=%s", cfg.Store.Kind, time.Since(start).Truncate(time.Millisecond))

	c.Context = context.WithValue(c.Context, envKey{}, e)
	return nil
}

func teardown(c *cli.Context) error {
	e, err := fromContext(c)
	if err != nil {
		// setup failed and already released what it opened.
		return nil
	}
	if e.store != nil {
		e.store.Close()
	}
	e.closeMetrics()
	return nil
}

// setupMetrics installs the configured backend and returns its shutdown func.
// A backend that fails to start leaves the discarding backend in place.
func setupMetrics(ctx context.Context, cfg config.Config) func() {
	switch cfg.MetricsBackend {
	case "datadog":
		tags := datadog.ParseTagsCSV(cfg.MetricsTags)
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    "bmdb",
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			logger.Log.Warn().Err(err).Msg("metrics: failed to init datadog backend; using nop")
			return func() {}
		}
		logger.Log.Info().Strs("tags", tags).Msg("metrics: backend=datadog")
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logger.Log.Warn().Err(err).Msg("metrics: datadog close/flush error")
			}
			metrics.SetBackend(nil)
		}

	default:
		logger.Log.Debug().Str("backend", cfg.MetricsBackend).Msg("metrics: disabled")
		return func() {}
	}
}

// newLoader builds a loader from the run configuration.
func (e *env) newLoader() *loader.Loader {
	return &loader.Loader{
		Store:            e.store,
		Logger:           logger.Infof(),
		Workers:          e.cfg.Workers,
		BatchSize:        e.cfg.BatchSize,
		SkipForward:      e.cfg.SkipForward,
		ConcurrentWrites: e.cfg.ConcurrentWrites,
		Verbose:          e.cfg.Verbose,
	}
}
