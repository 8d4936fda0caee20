package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration values.
type Config struct {
	AppPort     string `yaml:"app_port"`
	AppEnv      string `yaml:"app_env"`
	DatabaseURL string `yaml:"database_url"`
	DBLogLevel  string `yaml:"db_log_level"`

	JWTSecret         string        `yaml:"jwt_secret"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `yaml:"refresh_token_ttl"`
	PendingSessionTTL time.Duration `yaml:"pending_session_ttl"`

	OTPTTL         time.Duration `yaml:"otp_ttl"`
	OTPMaxAttempts int           `yaml:"otp_max_attempts"`
	OTPDebug       bool          `yaml:"otp_debug"`

	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3PublicURL    string `yaml:"s3_public_url"`
	UploadMaxBytes int    `yaml:"upload_max_bytes"`

	WhatsAppAPIURL     string        `yaml:"whatsapp_api_url"`
	WhatsAppAPIToken   string        `yaml:"whatsapp_api_token"`
	TelegramBotToken   string        `yaml:"telegram_bot_token"`
	TelegramAdminChat  string        `yaml:"telegram_admin_chat_id"`
	ResendAPIKey       string        `yaml:"resend_api_key"`
	EmailFrom          string        `yaml:"email_from"`
	AuthProviderURL    string        `yaml:"auth_provider_url"`
	AuthProviderPrefix string        `yaml:"auth_provider_token_prefix"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	return &Config{
		AppPort:            "8080",
		AppEnv:             "development",
		DBLogLevel:         "warn",
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		PendingSessionTTL:  30 * time.Minute,
		OTPTTL:             10 * time.Minute,
		OTPMaxAttempts:     5,
		RateLimitWindow:    15 * time.Minute,
		RateLimitMax:       5,
		S3Region:           "us-east-1",
		UploadMaxBytes:     20 * 1024 * 1024,
		EmailFrom:          "Forwardly <no-reply@forwardly.local>",
		AuthProviderPrefix: "pvd_",
		CleanupInterval:    10 * time.Minute,
	}
}

// Load reads the optional YAML file and environment variables and returns a
// populated Config. Environment variables win over the file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			log.Fatalf("config file: %v", err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	return cfg
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("APP_PORT must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.OTPMaxAttempts <= 0 {
		return errors.New("OTP_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.AppPort = getEnv("APP_PORT", cfg.AppPort)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBLogLevel = getEnv("DB_LOG_LEVEL", cfg.DBLogLevel)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL)
	cfg.PendingSessionTTL = getEnvDuration("PENDING_SESSION_TTL", cfg.PendingSessionTTL)

	cfg.OTPTTL = getEnvDuration("OTP_TTL", cfg.OTPTTL)
	cfg.OTPMaxAttempts = getEnvInt("OTP_MAX_ATTEMPTS", cfg.OTPMaxAttempts)
	cfg.OTPDebug = getEnvBool("OTP_DEBUG", cfg.OTPDebug)

	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.RateLimitMax = getEnvInt("RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3PublicURL = getEnv("S3_PUBLIC_URL", cfg.S3PublicURL)
	cfg.UploadMaxBytes = getEnvInt("UPLOAD_MAX_BYTES", cfg.UploadMaxBytes)

	cfg.WhatsAppAPIURL = getEnv("WHATSAPP_API_URL", cfg.WhatsAppAPIURL)
	cfg.WhatsAppAPIToken = getEnv("WHATSAPP_API_TOKEN", cfg.WhatsAppAPIToken)
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.TelegramAdminChat = getEnv("TELEGRAM_ADMIN_CHAT_ID", cfg.TelegramAdminChat)
	cfg.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.ResendAPIKey)
	cfg.EmailFrom = getEnv("EMAIL_FROM", cfg.EmailFrom)
	cfg.AuthProviderURL = getEnv("AUTH_PROVIDER_URL", cfg.AuthProviderURL)
	cfg.AuthProviderPrefix = getEnv("AUTH_PROVIDER_TOKEN_PREFIX", cfg.AuthProviderPrefix)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("15m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
