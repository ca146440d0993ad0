package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) over the
// defaults, loads .env if present and applies VORAN_* overrides. The result
// has not been validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from VORAN_* variables that are
// set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "VORAN_SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.SecretName, "VORAN_SIGNER_SECRET_NAME")
	setStr(&cfg.Signer.EncryptedKeyPath, "VORAN_SIGNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "VORAN_SIGNER_KEY_PASSWORD")

	// ── Secrets ──
	setStr(&cfg.Secrets.EnvPrefix, "VORAN_SECRETS_ENV_PREFIX")
	setStringSlice(&cfg.Secrets.DotenvFiles, "VORAN_SECRETS_DOTENV_FILES")

	// ── Fetch / browser / sandbox ──
	setDuration(&cfg.Fetch.Timeout, "VORAN_FETCH_TIMEOUT")
	setInt64(&cfg.Fetch.MaxBodyBytes, "VORAN_FETCH_MAX_BODY_BYTES")
	setStr(&cfg.Fetch.UserAgent, "VORAN_FETCH_USER_AGENT")
	setStr(&cfg.Browser.ExecPath, "VORAN_BROWSER_EXEC_PATH")
	setDuration(&cfg.Browser.Timeout, "VORAN_BROWSER_TIMEOUT")
	setStr(&cfg.Browser.ScreenshotDir, "VORAN_BROWSER_SCREENSHOT_DIR")
	setStr(&cfg.Browser.ScreenshotPrefix, "VORAN_BROWSER_SCREENSHOT_PREFIX")
	setDuration(&cfg.Sandbox.DefineTimeout, "VORAN_SANDBOX_DEFINE_TIMEOUT")
	setDuration(&cfg.Sandbox.CallTimeout, "VORAN_SANDBOX_CALL_TIMEOUT")
	setInt(&cfg.Sandbox.MaxCallStackSize, "VORAN_SANDBOX_MAX_CALL_STACK_SIZE")

	// ── Registry / batch ──
	setStr(&cfg.Registry.Path, "VORAN_REGISTRY_PATH")
	setStr(&cfg.Batch.Policy, "VORAN_BATCH_POLICY")
	setInt(&cfg.Batch.Concurrency, "VORAN_BATCH_CONCURRENCY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "VORAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "VORAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VORAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VORAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VORAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VORAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VORAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VORAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VORAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VORAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VORAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VORAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VORAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VORAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VORAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VORAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VORAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VORAN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "VORAN_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "VORAN_REDIS_LOCK_TTL")
	setInt(&cfg.Redis.RateLimit, "VORAN_REDIS_RATE_LIMIT")
	setDuration(&cfg.Redis.RateLimitWindow, "VORAN_REDIS_RATE_LIMIT_WINDOW")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VORAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VORAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VORAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "VORAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VORAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VORAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VORAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VORAN_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.RawPrefix, "VORAN_S3_RAW_PREFIX")

	// ── Server ──
	setInt(&cfg.Server.Port, "VORAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VORAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VORAN_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VORAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VORAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPIBase, "VORAN_NOTIFY_TELEGRAM_API_BASE")
	setStr(&cfg.Notify.DiscordWebhookURL, "VORAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DiscordUsername, "VORAN_NOTIFY_DISCORD_USERNAME")
	setStringSlice(&cfg.Notify.Events, "VORAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VORAN_MODE")
	setStr(&cfg.LogLevel, "VORAN_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
