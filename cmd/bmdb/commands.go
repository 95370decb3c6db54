package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jsdealy/bmdb/internal/awards"
	"github.com/jsdealy/bmdb/internal/datasets"
	"github.com/jsdealy/bmdb/internal/export"
	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/logger"
	"github.com/jsdealy/bmdb/internal/resolver"
)

func runLoad(c *cli.Context) error {
	e, err := fromContext(c)
	if err != nil {
		return err
	}
	inputs, err := datasets.Select(c.StringSlice("only"))
	if err != nil {
		return err
	}
	return e.load(c.Context, inputs)
}

func runCannes(c *cli.Context) error {
	e, err := fromContext(c)
	if err != nil {
		return err
	}
	return e.cannes(c.Context)
}

func runExport(c *cli.Context) error {
	e, err := fromContext(c)
	if err != nil {
		return err
	}
	return e.export(c.Context)
}

func runAll(c *cli.Context) error {
	e, err := fromContext(c)
	if err != nil {
		return err
	}
	if err := e.load(c.Context, datasets.Inputs()); err != nil {
		return err
	}
	if awards.Available(e.cfg.Awards) {
		if err := e.cannes(c.Context); err != nil {
			return err
		}
	} else {
		logger.Log.Info().Str("awards", e.cfg.Awards).Msg("award list not found, skipping cannes")
	}
	return e.export(c.Context)
}

// load runs inputs in order and optimizes the store afterwards. The first
// fatal error stops the run; earlier datasets stay loaded.
func (e *env) load(ctx context.Context, inputs []datasets.Input) error {
	l := e.newLoader()
	for _, in := range inputs {
		path := e.cfg.InputPath(in.File)
		st, err := runFile(ctx, l, in.Dataset, path)
		if err != nil {
			return err
		}
		logSummary(in.Dataset.Name, st)
	}

	start := time.Now()
	if err := e.store.Optimize(ctx); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	logger.Log.Info().Msgf("stage=optimize store=%s duration=%s", e.store.Kind(), time.Since(start).Truncate(time.Millisecond))
	return nil
}

func runFile(ctx context.Context, l *loader.Loader, ds loader.Dataset, path string) (loader.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return loader.Stats{}, fmt.Errorf("%s: %w", ds.Name, err)
	}
	defer f.Close()

	logger.Log.Info().Str("dataset", ds.Name).Str("file", path).Msg("loading")
	st, err := l.RunReader(ctx, ds, f)
	if err != nil {
		logSummary(ds.Name, st)
		return st, err
	}
	return st, nil
}

func (e *env) cannes(ctx context.Context) error {
	r := resolver.New(e.store)
	ds := datasets.Cannes(r)

	logger.Log.Info().Str("dataset", ds.Name).Str("awards", e.cfg.Awards).Msg("resolving award list")
	st, err := awards.Load(ctx, e.newLoader(), ds, e.cfg.Awards, awards.Options{Selector: e.cfg.AwardsSelector})
	logSummary(ds.Name, st)
	return err
}

func (e *env) export(ctx context.Context) error {
	start := time.Now()
	n, err := export.WriteFile(ctx, e.cfg.Output, e.store)
	if err != nil {
		return fmt.Errorf("export %s: %w", e.cfg.Output, err)
	}
	logger.Log.Info().
		Str("output", e.cfg.Output).
		Int("films", n).
		Msgf("stage=export duration=%s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

func logSummary(dataset string, st loader.Stats) {
	logger.Log.Info().
		Str("dataset", dataset).
		Int64("processed", st.Processed).
		Int64("loaded", st.Loaded).
		Int("filtered", st.Filtered).
		Int("short", st.Short).
		Int64("ignored", st.Ignored).
		Int64("missing", st.Missing).
		Int64("conflicts", st.Conflicts).
		Int64("skipped", st.Skipped).
		Dur("elapsed", st.Elapsed).
		Msg("dataset summary")
}
