// Package config resolves bmdb settings from defaults, an optional .env file,
// the environment and command-line overrides, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jsdealy/bmdb/internal/loader"
	"github.com/jsdealy/bmdb/internal/logger"
	"github.com/jsdealy/bmdb/internal/storage"
)

// Keys. Each is bound to the environment variable in envBindings.
const (
	KeyDataDir          = "data_dir"
	KeyOutput           = "output"
	KeyStore            = "store"
	KeyDSN              = "dsn"
	KeyMaxConns         = "max_conns"
	KeyWorkers          = "workers"
	KeyBatchSize        = "batch_size"
	KeySkipForward      = "skip_forward"
	KeyConcurrentWrites = "concurrent_writes"
	KeyVerbose          = "verbose"
	KeyLogLevel         = "log_level"
	KeyAwards           = "awards"
	KeyAwardsSelector   = "awards_selector"
	KeyMetricsBackend   = "metrics_backend"
	KeyMetricsTags      = "metrics_tags"
)

var envBindings = map[string]string{
	KeyDataDir:          "__MOVIE_DATABASE_PATH",
	KeyOutput:           "MOVIES",
	KeyStore:            "BMDB_STORE",
	KeyDSN:              "BMDB_DSN",
	KeyMaxConns:         "BMDB_MAX_CONNS",
	KeyWorkers:          "BMDB_WORKERS",
	KeyBatchSize:        "BMDB_BATCH_SIZE",
	KeySkipForward:      "BMDB_SKIP_FORWARD",
	KeyConcurrentWrites: "BMDB_CONCURRENT_WRITES",
	KeyVerbose:          "BMDB_VERBOSE",
	KeyLogLevel:         "BMDB_LOG_LEVEL",
	KeyAwards:           "BMDB_AWARDS",
	KeyAwardsSelector:   "BMDB_AWARDS_SELECTOR",
	KeyMetricsBackend:   "METRICS_BACKEND",
	KeyMetricsTags:      "METRICS_TAGS",
}

// Env returns the environment variable bound to key.
func Env(key string) string { return envBindings[key] }

// Store kinds accepted by Validate.
var storeKinds = []string{"sqlite", "postgres", "mssql"}

const (
	// DefaultDatabaseFile is the SQLite file created in the data directory.
	DefaultDatabaseFile = "moviedatabase.db"
	// DefaultOutputFile is the summary file written to the working directory.
	DefaultOutputFile = "movies.tsv"
	// DefaultAwardsFile is the award list read from the data directory.
	DefaultAwardsFile = "cannes.tsv"
)

type Config struct {
	DataDir string
	Output  string

	Store storage.Config

	Workers          int
	BatchSize        int
	SkipForward      loader.SkipMode
	ConcurrentWrites bool

	Verbose  bool
	LogLevel string

	Awards         string
	AwardsSelector string

	MetricsBackend string
	MetricsTags    string
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyStore, "sqlite")
	v.SetDefault(KeyWorkers, loader.DefaultWorkers)
	v.SetDefault(KeyBatchSize, loader.DefaultBatchSize)
	v.SetDefault(KeySkipForward, "missing")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMetricsBackend, "none")

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// FromViper builds and validates a Config. Paths left empty default relative
// to the data directory, which itself defaults to cwd.
func FromViper(v *viper.Viper, cwd string) (Config, error) {
	dataDir := strings.TrimSpace(v.GetString(KeyDataDir))
	if dataDir == "" {
		dataDir = cwd
	}

	cfg := Config{
		DataDir: dataDir,
		Output:  v.GetString(KeyOutput),
		Store: storage.Config{
			Kind:     strings.ToLower(strings.TrimSpace(v.GetString(KeyStore))),
			DSN:      v.GetString(KeyDSN),
			MaxConns: v.GetInt(KeyMaxConns),
		},
		Workers:          v.GetInt(KeyWorkers),
		BatchSize:        v.GetInt(KeyBatchSize),
		ConcurrentWrites: v.GetBool(KeyConcurrentWrites),
		Verbose:          v.GetBool(KeyVerbose),
		LogLevel:         v.GetString(KeyLogLevel),
		Awards:           v.GetString(KeyAwards),
		AwardsSelector:   v.GetString(KeyAwardsSelector),
		MetricsBackend:   strings.ToLower(strings.TrimSpace(v.GetString(KeyMetricsBackend))),
		MetricsTags:      v.GetString(KeyMetricsTags),
	}
	if cfg.Output == "" {
		cfg.Output = filepath.Join(cwd, DefaultOutputFile)
	}
	if cfg.Store.Kind == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(dataDir, DefaultDatabaseFile)
	}
	if cfg.Awards == "" {
		cfg.Awards = filepath.Join(dataDir, DefaultAwardsFile)
	}

	var issues []error
	mode, err := loader.ParseSkipMode(v.GetString(KeySkipForward))
	if err != nil {
		issues = append(issues, issue(KeySkipForward, err.Error()))
	}
	cfg.SkipForward = mode

	issues = append(issues, cfg.Validate()...)
	return cfg, errors.Join(issues...)
}

type Issue struct {
	Key     string
	Message string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s (%s): %s", i.Key, Env(i.Key), i.Message)
}

func issue(key, msg string) error { return Issue{Key: key, Message: msg} }

// Validate reports every problem with cfg.
func (c Config) Validate() []error {
	var issues []error
	if !slices.Contains(storeKinds, c.Store.Kind) {
		issues = append(issues, issue(KeyStore, fmt.Sprintf("unknown store %q (want one of %v)", c.Store.Kind, storeKinds)))
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		issues = append(issues, issue(KeyDSN, "required for store "+c.Store.Kind))
	}
	if c.Store.MaxConns < 0 {
		issues = append(issues, issue(KeyMaxConns, "must not be negative"))
	}
	if c.Workers < 1 {
		issues = append(issues, issue(KeyWorkers, fmt.Sprintf("must be at least 1, got %d", c.Workers)))
	}
	if c.BatchSize < 1 {
		issues = append(issues, issue(KeyBatchSize, fmt.Sprintf("must be at least 1, got %d", c.BatchSize)))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, issue(KeyLogLevel, err.Error()))
	}
	switch c.MetricsBackend {
	case "", "none", "datadog":
	default:
		issues = append(issues, issue(KeyMetricsBackend, fmt.Sprintf("unknown backend %q (want none or datadog)", c.MetricsBackend)))
	}
	return issues
}

// InputPath is the location of a dataset file in the data directory.
func (c Config) InputPath(file string) string {
	return filepath.Join(c.DataDir, file)
}
