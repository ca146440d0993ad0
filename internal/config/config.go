// Package config defines voran's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by VORAN_* environment variables.
type Config struct {
	Signer   SignerConfig   `toml:"signer"`
	Secrets  SecretsConfig  `toml:"secrets"`
	Fetch    FetchConfig    `toml:"fetch"`
	Browser  BrowserConfig  `toml:"browser"`
	Sandbox  SandboxConfig  `toml:"sandbox"`
	Registry RegistryConfig `toml:"registry"`
	Batch    BatchConfig    `toml:"batch"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SignerConfig selects where the resolution signing key comes from. The
// first non-empty of private_key, secret_name and encrypted_key_path wins.
type SignerConfig struct {
	PrivateKey       string `toml:"private_key"`
	SecretName       string `toml:"secret_name"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SecretsConfig controls how $env: header references are resolved.
type SecretsConfig struct {
	EnvPrefix   string   `toml:"env_prefix"`
	DotenvFiles []string `toml:"dotenv_files"`
}

// FetchConfig holds HTTP source parameters.
type FetchConfig struct {
	Timeout      duration `toml:"timeout"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
	UserAgent    string   `toml:"user_agent"`
}

// BrowserConfig holds headless browser parameters.
type BrowserConfig struct {
	ExecPath         string   `toml:"exec_path"`
	Timeout          duration `toml:"timeout"`
	ScreenshotDir    string   `toml:"screenshot_dir"`
	ScreenshotPrefix string   `toml:"screenshot_prefix"`
}

// SandboxConfig bounds script extraction.
type SandboxConfig struct {
	DefineTimeout    duration `toml:"define_timeout"`
	CallTimeout      duration `toml:"call_timeout"`
	MaxCallStackSize int      `toml:"max_call_stack_size"`
}

// RegistryConfig points at the data-source registry. An empty path uses the
// embedded catalog.
type RegistryConfig struct {
	Path string `toml:"path"`
}

// BatchConfig controls template verification.
type BatchConfig struct {
	// Policy is "first" or "all".
	Policy      string `toml:"policy"`
	Concurrency int    `toml:"concurrency"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters plus the lock and API rate
// limit settings that depend on it.
type RedisConfig struct {
	Enabled         bool     `toml:"enabled"`
	Addr            string   `toml:"addr"`
	Password        string   `toml:"password"`
	DB              int      `toml:"db"`
	PoolSize        int      `toml:"pool_size"`
	MaxRetries      int      `toml:"max_retries"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	KeyPrefix       string   `toml:"key_prefix"`
	LockTTL         duration `toml:"lock_ttl"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RawPrefix      string `toml:"raw_prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey enables bearer/X-API-Key auth on every route but health.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPIBase   string   `toml:"telegram_api_base"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values used when no file or
// environment override is present.
func Defaults() Config {
	return Config{
		Signer: SignerConfig{
			SecretName: "VORAN_SIGNER_PRIVATE_KEY",
		},
		Fetch: FetchConfig{
			Timeout:      duration{30 * time.Second},
			MaxBodyBytes: 10 << 20,
			UserAgent:    "voran/1",
		},
		Browser: BrowserConfig{
			Timeout:          duration{60 * time.Second},
			ScreenshotPrefix: "screenshots/",
		},
		Sandbox: SandboxConfig{
			DefineTimeout:    duration{5 * time.Second},
			CallTimeout:      duration{5 * time.Second},
			MaxCallStackSize: 1024,
		},
		Batch: BatchConfig{
			Policy:      "first",
			Concurrency: 4,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "voran",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			KeyPrefix:       "voran:",
			LockTTL:         duration{2 * time.Minute},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "voran",
			ForcePathStyle: true,
			RawPrefix:      "raw/",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			DiscordUsername: "voran",
			Events:          []string{"resolution_signed", "resolution_failed"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"validate": true,
	"expand":   true,
	"resolve":  true,
	"dry-run":  true,
	"batch":    true,
	"verify":   true,
	"server":   true,

	"encrypt-key": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: validate, expand, resolve, dry-run, batch, verify, server, encrypt-key)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Signer: resolve mode cannot run without a key source.
	if c.Mode == "resolve" && c.Signer.PrivateKey == "" && c.Signer.SecretName == "" && c.Signer.EncryptedKeyPath == "" {
		errs = append(errs, "signer: one of private_key, secret_name or encrypted_key_path must be set for mode resolve")
	}
	if c.Mode == "encrypt-key" && c.Signer.KeyPassword == "" {
		errs = append(errs, "signer: key_password is required for mode encrypt-key")
	}
	if c.Signer.EncryptedKeyPath != "" && c.Signer.KeyPassword == "" {
		errs = append(errs, "signer: key_password is required when encrypted_key_path is set")
	}

	if c.Fetch.Timeout.Duration <= 0 {
		errs = append(errs, "fetch: timeout must be > 0")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		errs = append(errs, "fetch: max_body_bytes must be > 0")
	}
	if c.Browser.Timeout.Duration <= 0 {
		errs = append(errs, "browser: timeout must be > 0")
	}

	if c.Sandbox.DefineTimeout.Duration <= 0 {
		errs = append(errs, "sandbox: define_timeout must be > 0")
	}
	if c.Sandbox.CallTimeout.Duration <= 0 {
		errs = append(errs, "sandbox: call_timeout must be > 0")
	}
	if c.Sandbox.MaxCallStackSize < 1 {
		errs = append(errs, "sandbox: max_call_stack_size must be >= 1")
	}

	if c.Batch.Policy != "first" && c.Batch.Policy != "all" {
		errs = append(errs, fmt.Sprintf("batch: policy must be first or all, got %q", c.Batch.Policy))
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, "batch: concurrency must be >= 1")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
		if c.Redis.RateLimit > 0 && c.Redis.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "redis: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Mode == "server" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
