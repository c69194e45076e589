// Package config loads and validates indexer configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ShutdownTimeout bounds graceful shutdown of HTTP and in-flight runs.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IndexerConfig describes the external indexing program and how runs behave.
type IndexerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Dir     string   `mapstructure:"dir"`
	// WorkDir holds per-job hand-off files. Empty uses the OS temp dir.
	WorkDir   string        `mapstructure:"work_dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
	DemoMode  bool          `mapstructure:"demo_mode"`
	DemoDelay time.Duration `mapstructure:"demo_delay"`
	LogLines  int           `mapstructure:"log_lines"`
	// InlineCredentialsJSON is a service-account key used when none has been uploaded.
	InlineCredentialsJSON string `mapstructure:"inline_credentials_json"`
	QueueDepth            int    `mapstructure:"queue_depth"`
}

// StorageConfig selects where uploaded credential payloads live.
type StorageConfig struct {
	// Backend is one of gcs, local, or memory.
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Local   struct {
		BaseDir string `mapstructure:"base_dir"`
	} `mapstructure:"local"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects in-memory stores.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// PubSubConfig holds metadata for job completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LogEnabled    bool `mapstructure:"log_enabled"`
	BufferSize    int  `mapstructure:"buffer_size"`
	SinkTimeoutMs int  `mapstructure:"sink_timeout_ms"`
	Batch         struct {
		MaxEvents int `mapstructure:"max_events"`
		MaxWaitMs int `mapstructure:"max_wait_ms"`
	} `mapstructure:"batch"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// UploadConfig bounds multipart uploads.
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// Load builds a Config from disk/environment. With an empty path the usual
// locations are searched and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindDeploymentEnv(v); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/url-indexer/")
		v.AddConfigPath("$HOME/.url-indexer")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindDeploymentEnv maps the plain variable names a PaaS deployment sets.
func bindDeploymentEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":                     "PORT",
		"server.allowed_origins":          "ALLOWED_ORIGINS",
		"database.dsn":                    "DATABASE_URL",
		"indexer.inline_credentials_json": "GOOGLE_SERVICE_ACCOUNT_JSON",
	}
	for key, env := range bindings {
		prefixed := "INDEXER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("indexer.command", "python3")
	v.SetDefault("indexer.args", []string{"scripts/index_urls.py"})
	v.SetDefault("indexer.timeout", "30m")
	v.SetDefault("indexer.demo_mode", false)
	v.SetDefault("indexer.demo_delay", "2s")
	v.SetDefault("indexer.log_lines", 200)
	v.SetDefault("indexer.queue_depth", 256)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.prefix", "indexer")
	v.SetDefault("storage.local.base_dir", "data/credentials")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 100)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("upload.max_bytes", 5<<20)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Indexer.Command == "" && !c.Indexer.DemoMode {
		return fmt.Errorf("indexer.command is required unless indexer.demo_mode is enabled")
	}
	if c.Indexer.Timeout < 0 {
		return fmt.Errorf("indexer.timeout must be >= 0")
	}
	if c.Indexer.QueueDepth <= 0 {
		return fmt.Errorf("indexer.queue_depth must be > 0")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend %q must be gcs, local, or memory", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be > 0")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// splitOrigins accepts both a YAML list and a comma-separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
