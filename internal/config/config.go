// Package config loads enrollment-sync settings from defaults, an optional
// YAML file, .env files, ENROLLSYNC_* environment variables and bound
// command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/pipeline"
	"enrollment-sync/internal/store"
	"enrollment-sync/internal/transport"
	"enrollment-sync/pkg/errors"
	"enrollment-sync/pkg/logging"
)

// EnvPrefix prefixes every environment variable, e.g. ENROLLSYNC_STORE_BACKEND.
const EnvPrefix = "ENROLLSYNC"

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig          `mapstructure:"server"`
	Store   store.Config          `mapstructure:"store"`
	Ingest  IngestConfig          `mapstructure:"ingest"`
	Fetch   FetchConfig           `mapstructure:"fetch"`
	Retry   transport.RetryConfig `mapstructure:"retry"`
	Log     logging.Config        `mapstructure:"log"`
	Mapping model.FieldMapping    `mapstructure:"mapping"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// IngestConfig tunes dispatch and reconciliation.
type IngestConfig struct {
	pipeline.Config          `mapstructure:",squash"`
	pipeline.ReconcileConfig `mapstructure:",squash"`
}

// FetchConfig configures the CSV fetcher.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// SetDefaults registers every key so environment variables can override it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite.path", "enrollment.db")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.postgres.simple_protocol", false)
	v.SetDefault("store.parse.base_url", store.DefaultParseBaseURL)
	v.SetDefault("store.parse.app_id", "")
	v.SetDefault("store.parse.master_key", "")
	v.SetDefault("store.parse.record_class", store.DefaultParseRecordClass)
	v.SetDefault("store.parse.queue_class", store.DefaultParseQueueClass)
	v.SetDefault("store.parse.rate_limit", 10.0)
	v.SetDefault("store.parse.timeout", transport.DefaultHTTPTimeout)
	setRetryDefaults(v, "store.parse.retry")

	v.SetDefault("ingest.size_threshold", pipeline.DefaultSizeThreshold)
	v.SetDefault("ingest.default_priority", pipeline.DefaultPriority)
	v.SetDefault("ingest.workers", pipeline.DefaultQueueWorkers)
	v.SetDefault("ingest.queue_buffer", pipeline.DefaultQueueBuffer)
	v.SetDefault("ingest.status_limit", pipeline.DefaultStatusLimit)
	v.SetDefault("ingest.chunk_size", pipeline.DefaultChunkSize)
	v.SetDefault("ingest.lookup_limit", store.DefaultLookupLimit)

	v.SetDefault("fetch.timeout", transport.DefaultHTTPTimeout)
	v.SetDefault("fetch.rate_limit", 0.0)
	setRetryDefaults(v, "retry")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.caller", false)

	m := model.DefaultFieldMapping()
	for key, header := range map[string]string{
		"email":            m.Email,
		"first_name":       m.FirstName,
		"last_name":        m.LastName,
		"phone":            m.Phone,
		"department":       m.Department,
		"hiring_manager":   m.HiringManager,
		"course_name":      m.CourseName,
		"prepared_to_pass": m.PreparedToPass,
		"time_spent":       m.TimeSpent,
		"date_enrolled":    m.DateEnrolled,
		"last_login":       m.LastLogin,
		"date_completed":   m.DateCompleted,
		"percent_complete": m.PercentComplete,
		"percent_prep":     m.PercentPrep,
		"percent_sim":      m.PercentSim,
	} {
		v.SetDefault("mapping."+key, header)
	}
}

func setRetryDefaults(v *viper.Viper, prefix string) {
	d := transport.DefaultRetryConfig
	v.SetDefault(prefix+".max_attempts", d.MaxAttempts)
	v.SetDefault(prefix+".initial_delay", d.InitialDelay)
	v.SetDefault(prefix+".max_delay", d.MaxDelay)
	v.SetDefault(prefix+".backoff_multiplier", d.BackoffMultiplier)
	v.SetDefault(prefix+".jitter", d.Jitter)
}

// Load reads configuration into v and decodes it. configFile may be empty,
// in which case ./enrollment-sync.yaml is used when present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	loadEnvFiles()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("enrollment-sync")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.Mapping = cfg.Mapping.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize < 0 {
		return errors.NewValidationError("ingest.chunk_size", "must not be negative")
	}
	if c.Ingest.SizeThreshold < 0 {
		return errors.NewValidationError("ingest.size_threshold", "must not be negative")
	}
	if c.Ingest.Workers < 0 {
		return errors.NewValidationError("ingest.workers", "must not be negative")
	}
	switch strings.ToLower(c.Store.Backend) {
	case "postgres", "pg":
		if c.Store.Postgres.DSN == "" {
			return errors.NewValidationError("store.postgres.dsn", "required for the postgres backend")
		}
	case "parse", "back4app":
		if c.Store.Parse.AppID == "" || c.Store.Parse.MasterKey == "" {
			return errors.NewValidationError("store.parse", "app_id and master_key are required for the parse backend")
		}
	}
	return nil
}

// loadEnvFiles loads .env then .env.local. Existing variables win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
