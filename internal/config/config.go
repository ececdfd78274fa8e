// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Download  DownloadConfig  `mapstructure:"download"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PortalConfig holds the region-templated portal endpoints. Each URL has
// one %s placeholder the region key is spliced into.
type PortalConfig struct {
	LoginURL       string `mapstructure:"login_url"`
	LandingPattern string `mapstructure:"landing_pattern"`
	APIBaseURL     string `mapstructure:"api_base_url"`
	AttachmentPath string `mapstructure:"attachment_path"`
}

// AuthConfig governs the browser-driven SSO login.
type AuthConfig struct {
	SSOButton           string `mapstructure:"sso_button"`
	ButtonWaitSeconds   int    `mapstructure:"button_wait_seconds"`
	LoginTimeoutSeconds int    `mapstructure:"login_timeout_seconds"`
	MaxParallel         int    `mapstructure:"max_parallel"`
	UserAgent           string `mapstructure:"user_agent"`
}

// SchedulerConfig bounds execution concurrency.
type SchedulerConfig struct {
	MaxRegions      int    `mapstructure:"max_regions"`
	MaxPerRegion    int    `mapstructure:"max_per_region"`
	CompletionTopic string `mapstructure:"completion_topic"`
}

// HTTPConfig configures the per-region API clients.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// CaptchaConfig bounds the captcha solve loop and names the solver service.
type CaptchaConfig struct {
	Endpoint          string `mapstructure:"endpoint"`
	APIKey            string `mapstructure:"api_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	BackoffMinSeconds int    `mapstructure:"backoff_min_seconds"`
	BackoffMaxSeconds int    `mapstructure:"backoff_max_seconds"`
}

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	// Provider is one of "minio", "gcs", "local" or "memory".
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// DatabaseConfig selects and configures the process store backend.
type DatabaseConfig struct {
	// Provider is one of "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// DownloadConfig controls the attachment download pipeline.
type DownloadConfig struct {
	ChunkSizeBytes int    `mapstructure:"chunk_size_bytes"`
	TempDir        string `mapstructure:"temp_dir"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PJE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("portal.attachment_path", "/processos/%s/integra")
	v.SetDefault("auth.sso_button", "#btnSsoPdpj")
	v.SetDefault("auth.button_wait_seconds", 25)
	v.SetDefault("auth.login_timeout_seconds", 60)
	v.SetDefault("auth.max_parallel", 4)
	v.SetDefault("scheduler.max_regions", 4)
	v.SetDefault("scheduler.max_per_region", 1)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("captcha.timeout_seconds", 30)
	v.SetDefault("captcha.max_attempts", 15)
	v.SetDefault("captcha.backoff_min_seconds", 3)
	v.SetDefault("captcha.backoff_max_seconds", 7)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("database.provider", "memory")
	v.SetDefault("database.table", "processos")
	v.SetDefault("download.chunk_size_bytes", 8<<20)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Portal.LoginURL == "" || c.Portal.APIBaseURL == "" {
		return fmt.Errorf("portal.login_url and portal.api_base_url are required")
	}
	if c.Scheduler.MaxRegions <= 0 {
		return fmt.Errorf("scheduler.max_regions must be > 0")
	}
	if c.Scheduler.MaxPerRegion <= 0 {
		return fmt.Errorf("scheduler.max_per_region must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Captcha.MaxAttempts <= 0 {
		return fmt.Errorf("captcha.max_attempts must be > 0")
	}
	if c.Captcha.BackoffMaxSeconds < c.Captcha.BackoffMinSeconds {
		return fmt.Errorf("captcha.backoff_max_seconds must be >= captcha.backoff_min_seconds")
	}
	switch c.Storage.Provider {
	case "memory":
	case "minio":
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("storage.endpoint and storage.bucket are required for minio")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for gcs")
		}
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for local")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Database.Provider {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.provider %q", c.Database.Provider)
	}
	if c.Scheduler.CompletionTopic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when scheduler.completion_topic is set")
	}
	return nil
}

// HTTPTimeout returns the API client timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
