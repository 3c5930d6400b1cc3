package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cargohold/internal/blob"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch:\n%s", diff)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Blob.Driver != blob.DriverFilesystem {
		t.Fatalf("unexpected drivers %+v", cfg)
	}
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cargohold.yaml")
	doc := `
storage:
  driver: postgres
  postgres_dsn: postgres://db/cargohold
blob:
  driver: s3
  s3:
    bucket: artifacts
    region: eu-west-1
max_hierarchy_depth: 4
lock_timeout: 2s
log:
  format: json
  level: debug
observability:
  metrics: prometheus
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"CARGOHOLD_BLOB_S3_ENDPOINT":   "http://minio:9000",
		"CARGOHOLD_BLOB_S3_PATH_STYLE": "true",
		"CARGOHOLD_LOCK_TIMEOUT":       "750ms",
		"CARGOHOLD_LOG_LEVEL":          "warn",
		"CARGOHOLD_TRACE":              "true",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Config{
		Storage: Storage{Driver: StoragePostgres, PostgresDSN: "postgres://db/cargohold"},
		Blob: blob.Config{Driver: blob.DriverS3, S3: blob.S3Config{
			Bucket: "artifacts", Region: "eu-west-1", Endpoint: "http://minio:9000", PathStyle: true,
		}},
		MaxHierarchyDepth: 4,
		LockTimeout:       750 * time.Millisecond,
		Log:               Log{Format: "json", Level: "warn"},
		Observability:     Observability{Metrics: MetricsPrometheus, Trace: true},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch:\n%s", diff)
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	var cfg Config
	if err := Decode(strings.NewReader("storage:\n  drvier: memory\n"), &cfg); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if err := Decode(strings.NewReader(""), &cfg); err != nil {
		t.Fatalf("empty document should decode: %v", err)
	}
}

func TestInvalidEnvironment(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":     {"CARGOHOLD_STORAGE_DRIVER": "neo4j"},
		"blob":       {"CARGOHOLD_BLOB_DRIVER": "gcs"},
		"bucket":     {"CARGOHOLD_BLOB_DRIVER": "s3"},
		"depth":      {"CARGOHOLD_MAX_HIERARCHY_DEPTH": "deep"},
		"negative":   {"CARGOHOLD_MAX_HIERARCHY_DEPTH": "-1"},
		"timeout":    {"CARGOHOLD_LOCK_TIMEOUT": "soon"},
		"path style": {"CARGOHOLD_BLOB_S3_PATH_STYLE": "maybe"},
		"level":      {"CARGOHOLD_LOG_LEVEL": "loud"},
		"format":     {"CARGOHOLD_LOG_FORMAT": "xml"},
		"metrics":    {"CARGOHOLD_METRICS": "statsd"},
		"trace":      {"CARGOHOLD_TRACE": "sometimes"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadWithEnv("", env(vars)); err == nil {
				t.Fatalf("expected error for %v", vars)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), env(nil)); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log = Log{Format: "json", Level: "warn"}
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "path", "a/b")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"path":"a/b"`) {
		t.Fatalf("expected json record, got %s", out)
	}
}
