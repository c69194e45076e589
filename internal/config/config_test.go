package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Indexer.Timeout != 30*time.Minute {
		t.Fatalf("expected 30m timeout, got %v", cfg.Indexer.Timeout)
	}
	if cfg.Indexer.LogLines != 200 || cfg.Indexer.DemoMode {
		t.Fatalf("unexpected indexer defaults: %+v", cfg.Indexer)
	}
	if cfg.Upload.MaxBytes != 5<<20 {
		t.Fatalf("expected 5MiB upload limit, got %d", cfg.Upload.MaxBytes)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard origin, got %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  allowed_origins: ["https://a.example", "https://b.example"]
indexer:
  command: /usr/local/bin/indexer
  args: ["--json"]
  timeout: 5m
  demo_mode: true
  demo_delay: 500ms
  log_lines: 50
storage:
  backend: gcs
  bucket: creds-bucket
  prefix: prod
database:
  dsn: postgres://u:p@localhost:5432/indexer
  max_conns: 8
pubsub:
  project_id: proj
  topic_name: indexing-jobs
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Addr() != ":9090" {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Indexer.Command != "/usr/local/bin/indexer" || len(cfg.Indexer.Args) != 1 {
		t.Fatalf("expected indexer overrides to apply: %+v", cfg.Indexer)
	}
	if cfg.Indexer.Timeout != 5*time.Minute || cfg.Indexer.DemoDelay != 500*time.Millisecond {
		t.Fatalf("expected durations to decode: %+v", cfg.Indexer)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.Bucket != "creds-bucket" {
		t.Fatalf("expected storage overrides: %+v", cfg.Storage)
	}
	if cfg.Database.MaxConns != 8 || !cfg.Database.MigrateOnStart {
		t.Fatalf("expected database overrides with default migrate flag: %+v", cfg.Database)
	}
	if !cfg.Logging.Development {
		t.Fatal("expected development logging")
	}
}

func TestLoadDeploymentEnv(t *testing.T) {
	t.Setenv("PORT", "4321")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("ALLOWED_ORIGINS", "https://x.example, https://y.example")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	t.Setenv("INDEXER_INDEXER_DEMO_MODE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4321 {
		t.Fatalf("expected PORT to apply, got %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Fatalf("expected DATABASE_URL to apply, got %q", cfg.Database.DSN)
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 2 || got[1] != "https://y.example" {
		t.Fatalf("expected split origins, got %v", got)
	}
	if cfg.Indexer.InlineCredentialsJSON == "" {
		t.Fatal("expected inline credentials from GOOGLE_SERVICE_ACCOUNT_JSON")
	}
	if !cfg.Indexer.DemoMode {
		t.Fatal("expected prefixed env to enable demo mode")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Indexer: IndexerConfig{Command: "python3", QueueDepth: 1},
		Storage: StorageConfig{Backend: "memory"},
		Upload:  UploadConfig{MaxBytes: 1},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing command", func(c *Config) { c.Indexer.Command = "" }, "indexer.command"},
		{"negative timeout", func(c *Config) { c.Indexer.Timeout = -time.Second }, "indexer.timeout"},
		{"queue depth", func(c *Config) { c.Indexer.QueueDepth = 0 }, "indexer.queue_depth"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.bucket"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub"},
		{"upload limit", func(c *Config) { c.Upload.MaxBytes = 0 }, "upload.max_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
	demo := base
	demo.Indexer.Command = ""
	demo.Indexer.DemoMode = true
	if err := demo.Validate(); err != nil {
		t.Fatalf("expected demo mode without command to validate, got %v", err)
	}
}
