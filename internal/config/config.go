// Package config loads cargohold settings from an optional YAML file and
// CARGOHOLD_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cargohold/internal/blob"
	"cargohold/internal/lock"
)

// StorageDriver identifies a graph storage engine.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Storage selects the graph engine.
type Storage struct {
	Driver      StorageDriver `yaml:"driver"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// Log configures the process logger.
type Log struct {
	// Format is text or json.
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Metrics exporters.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Observability selects where operation metrics and traces go.
type Observability struct {
	// Metrics is none, expvar or prometheus.
	Metrics string `yaml:"metrics"`
	// ExpvarName is the expvar export name; empty generates a unique one.
	ExpvarName string `yaml:"expvar_name"`
	// Trace writes one JSON line per finished operation next to the log.
	Trace bool `yaml:"trace"`
}

// Config is the full process configuration.
type Config struct {
	Storage           Storage       `yaml:"storage"`
	Blob              blob.Config   `yaml:"blob"`
	MaxHierarchyDepth int           `yaml:"max_hierarchy_depth"`
	LockTimeout       time.Duration `yaml:"lock_timeout"`
	Log               Log           `yaml:"log"`
	Observability     Observability `yaml:"observability"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage:       Storage{Driver: StorageSQLite},
		Blob:          blob.Config{Driver: blob.DriverFilesystem},
		LockTimeout:   lock.DefaultTimeout,
		Log:           Log{Format: "text", Level: "info"},
		Observability: Observability{Metrics: MetricsNone},
	}
}

// Load reads path (skipped when empty) over the defaults and applies the
// process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(bytes.NewReader(raw), &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode strictly decodes YAML from r into cfg. Unknown keys are errors.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate reports settings no engine accepts.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob driver s3 requires a bucket")
	}
	if c.MaxHierarchyDepth < 0 {
		return fmt.Errorf("max hierarchy depth must not be negative, got %d", c.MaxHierarchyDepth)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	switch c.Observability.Metrics {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("unknown metrics exporter %q", c.Observability.Metrics)
	}
	return nil
}

// Logger builds the slog logger described by Log, writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// applyEnv overlays the CARGOHOLD_* variables:
//
//	CARGOHOLD_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CARGOHOLD_SQLITE_PATH: path to sqlite file (default ./cargohold.db)
//	CARGOHOLD_POSTGRES_DSN: postgres DSN when driver=postgres
//	CARGOHOLD_BLOB_DRIVER: fs|s3|memory (default fs)
//	CARGOHOLD_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	CARGOHOLD_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE,
//	_ACCESS_KEY_ID, _SECRET_ACCESS_KEY, _SESSION_TOKEN
//	CARGOHOLD_MAX_HIERARCHY_DEPTH: hop bound of hierarchy walks
//	CARGOHOLD_LOCK_TIMEOUT: write lock wait, e.g. 5s
//	CARGOHOLD_LOG_FORMAT: text|json
//	CARGOHOLD_LOG_LEVEL: debug|info|warn|error
//	CARGOHOLD_METRICS: none|expvar|prometheus
//	CARGOHOLD_TRACE: true|false
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var driver, blobDriver string
	str("CARGOHOLD_STORAGE_DRIVER", &driver)
	if driver != "" {
		cfg.Storage.Driver = StorageDriver(strings.ToLower(driver))
	}
	str("CARGOHOLD_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("CARGOHOLD_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	str("CARGOHOLD_BLOB_DRIVER", &blobDriver)
	if blobDriver != "" {
		cfg.Blob.Driver = blob.Driver(strings.ToLower(blobDriver))
	}
	str("CARGOHOLD_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("CARGOHOLD_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("CARGOHOLD_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("CARGOHOLD_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("CARGOHOLD_BLOB_S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	str("CARGOHOLD_BLOB_S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	str("CARGOHOLD_BLOB_S3_SESSION_TOKEN", &cfg.Blob.S3.SessionToken)
	str("CARGOHOLD_LOG_FORMAT", &cfg.Log.Format)
	str("CARGOHOLD_LOG_LEVEL", &cfg.Log.Level)
	str("CARGOHOLD_METRICS", &cfg.Observability.Metrics)

	if v, ok := lookup("CARGOHOLD_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARGOHOLD_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("CARGOHOLD_TRACE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CARGOHOLD_TRACE: %w", err)
		}
		cfg.Observability.Trace = b
	}
	if v, ok := lookup("CARGOHOLD_MAX_HIERARCHY_DEPTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CARGOHOLD_MAX_HIERARCHY_DEPTH: %w", err)
		}
		cfg.MaxHierarchyDepth = n
	}
	if v, ok := lookup("CARGOHOLD_LOCK_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CARGOHOLD_LOCK_TIMEOUT: %w", err)
		}
		cfg.LockTimeout = d
	}
	return nil
}
