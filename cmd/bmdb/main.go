// Command bmdb loads the IMDb TSV dumps into a relational store, resolves an
// award list against the loaded films and exports a flat per-film summary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/jsdealy/bmdb/internal/config"
	"github.com/jsdealy/bmdb/internal/logger"

	// register all backends with the storage factory.
	_ "github.com/jsdealy/bmdb/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Log.Warn().Err(err).Msg("could not load .env file")
	}

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Log.Error().Stack().Err(err).Msg("bmdb failed")
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "bmdb",
		Usage: "Load IMDb datasets into a relational store and export a film summary",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:  "load",
				Usage: "Create the schema and load the TSV datasets",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "only",
						Usage: "Load only these datasets (basics, ratings, languages, names, principals)",
					},
				},
				Before: setup,
				After:  teardown,
				Action: runLoad,
			},
			{
				Name:   "cannes",
				Usage:  "Resolve the award list against the loaded films",
				Flags:  awardFlags(),
				Before: setup,
				After:  teardown,
				Action: runCannes,
			},
			{
				Name:   "export",
				Usage:  "Write the flat per-film summary file",
				Flags:  []cli.Flag{outputFlag()},
				Before: setup,
				After:  teardown,
				Action: runExport,
			},
			{
				Name:   "all",
				Usage:  "Load, resolve the award list if present, then export",
				Flags:  append(awardFlags(), outputFlag()),
				Before: setup,
				After:  teardown,
				Action: runAll,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Directory holding the TSV datasets and the SQLite file",
			EnvVars: []string{config.Env(config.KeyDataDir)},
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Storage backend (sqlite, postgres, mssql)",
			EnvVars: []string{config.Env(config.KeyStore)},
		},
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "Backend connection string; defaults to <data-dir>/moviedatabase.db for sqlite",
			EnvVars: []string{config.Env(config.KeyDSN)},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Load workers per batch",
			EnvVars: []string{config.Env(config.KeyWorkers)},
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Rows read per batch",
			EnvVars: []string{config.Env(config.KeyBatchSize)},
		},
		&cli.StringFlag{
			Name:    "skip-forward",
			Usage:   "Skip rows sharing a conflicting key (off, missing, any)",
			EnvVars: []string{config.Env(config.KeySkipForward)},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log every dropped row and debug output",
			EnvVars: []string{config.Env(config.KeyVerbose)},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{config.Env(config.KeyLogLevel)},
		},
		&cli.StringFlag{
			Name:    "metrics-backend",
			Usage:   "Metrics backend (none, datadog)",
			EnvVars: []string{config.Env(config.KeyMetricsBackend)},
		},
	}
}

func awardFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "awards",
			Usage:   "Award list: a .tsv file, a saved .html page or an http(s) URL",
			EnvVars: []string{config.Env(config.KeyAwards)},
		},
		&cli.StringFlag{
			Name:    "selector",
			Usage:   "CSS selector of award rows in HTML input",
			EnvVars: []string{config.Env(config.KeyAwardsSelector)},
		},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Summary file path",
		EnvVars: []string{config.Env(config.KeyOutput)},
	}
}
