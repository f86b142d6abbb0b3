package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BETPAL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BETPAL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "BETPAL_DATABASE_DSN")
	setStr(&cfg.Database.Host, "BETPAL_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BETPAL_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BETPAL_DATABASE_NAME")
	setStr(&cfg.Database.User, "BETPAL_DATABASE_USER")
	setStr(&cfg.Database.Password, "BETPAL_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BETPAL_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "BETPAL_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BETPAL_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BETPAL_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BETPAL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETPAL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETPAL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BETPAL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BETPAL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BETPAL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BETPAL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BETPAL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETPAL_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETPAL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETPAL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETPAL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETPAL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETPAL_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "BETPAL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BETPAL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BETPAL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BETPAL_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSeconds, "BETPAL_SERVER_RATE_WINDOW_SECONDS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BETPAL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BETPAL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BETPAL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BETPAL_NOTIFY_EVENTS")

	// ── Voting ──
	setInt(&cfg.Voting.MinVotes, "BETPAL_VOTING_MIN_VOTES")
	setFloat64(&cfg.Voting.Threshold, "BETPAL_VOTING_THRESHOLD")

	// ── Sweep ──
	setBool(&cfg.Sweep.Enabled, "BETPAL_SWEEP_ENABLED")
	setInt(&cfg.Sweep.IntervalMinutes, "BETPAL_SWEEP_INTERVAL_MINUTES")
	setInt(&cfg.Sweep.BatchSize, "BETPAL_SWEEP_BATCH_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "BETPAL_MODE")
	setStr(&cfg.LogLevel, "BETPAL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
