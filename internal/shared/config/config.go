package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"coach-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBPingTimeout     time.Duration

	LLMProvider  string
	LLMModel     string
	GeminiAPIKey string
	OpenAIAPIKey string
	LLMTimeout   time.Duration

	DefaultLens     string
	SpeakingRateWPM int
	MaxUploadBytes  int64

	AnalysisQueueMode    string
	SQSQueueURL          string
	SQSRegion            string
	SQSVisibilitySeconds int
	WorkerConcurrency    int
	ShutdownTimeout      time.Duration

	QuotaLimit  int
	QuotaWindow time.Duration

	RateLimitEnabled bool

	JWTSecret          string
	TokenTTL           time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	WatchInboxDir    string
	WatchOutboxDir   string
	WatchConcurrency int
}

// Load layers defaults, .env files, an optional COACH_CONFIG file and the environment.
func Load() Config {
	cfg, err := load(newViper(), []string{".env", ".env.local", "cmd/.env"}, os.Getenv("COACH_CONFIG"))
	if err != nil {
		telemetry.Warn("config.load", map[string]any{"error": err.Error()})
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

var defaults = map[string]any{
	"PORT":                           "8080",
	"ENV":                            "dev",
	"LOG_LEVEL":                      "info",
	"CORS_ALLOW_ORIGINS":             "http://localhost:5173",
	"OBJECT_STORE":                   "local",
	"LOCAL_STORE_DIR":                "./data",
	"DB_PING_TIMEOUT":                "5s",
	"LLM_PROVIDER":                   "gemini",
	"LLM_TIMEOUT":                    "90s",
	"COACH_DEFAULT_LENS":             "bridal",
	"COACH_SPEAKING_RATE_WPM":        140,
	"MAX_UPLOAD_BYTES":               5 << 20,
	"ANALYSIS_QUEUE_MODE":            "inline",
	"SQS_REGION":                     "us-east-1",
	"SQS_VISIBILITY_TIMEOUT_SECONDS": 1200,
	"WORKER_CONCURRENCY":             4,
	"SHUTDOWN_TIMEOUT":               "30s",
	"QUOTA_LIMIT":                    10,
	"QUOTA_WINDOW":                   "168h",
	"RATE_LIMIT_ENABLED":             true,
	"TOKEN_TTL":                      "24h",
	"WATCH_CONCURRENCY":              2,
}

// load merges env-style files (missing ones are skipped) and then an explicit config file.
func load(v *viper.Viper, envFiles []string, configPath string) (Config, error) {
	var errs []error
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
		}
	}
	if strings.TrimSpace(configPath) != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType(strings.TrimPrefix(fileExt(configPath), "."))
		if err := v.MergeInConfig(); err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", configPath, err))
		}
	}

	cfg := Config{
		Port:            v.GetString("PORT"),
		Env:             normalizeEnv(v.GetString("ENV")),
		LogLevel:        v.GetString("LOG_LEVEL"),
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),

		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:       v.GetString("AWS_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		SSEKMSKeyID:     v.GetString("SSE_KMS_KEY_ID"),

		DatabaseURL:       v.GetString("DATABASE_URL"),
		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		DBPingTimeout:     v.GetDuration("DB_PING_TIMEOUT"),

		LLMProvider:  strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
		LLMModel:     strings.TrimSpace(v.GetString("LLM_MODEL")),
		GeminiAPIKey: firstNonEmpty(v.GetString("GEMINI_API_KEY"), v.GetString("GOOGLE_API_KEY")),
		OpenAIAPIKey: strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		LLMTimeout:   v.GetDuration("LLM_TIMEOUT"),

		DefaultLens:     strings.ToLower(strings.TrimSpace(v.GetString("COACH_DEFAULT_LENS"))),
		SpeakingRateWPM: v.GetInt("COACH_SPEAKING_RATE_WPM"),
		MaxUploadBytes:  v.GetInt64("MAX_UPLOAD_BYTES"),

		AnalysisQueueMode:    normalizeQueueMode(v.GetString("ANALYSIS_QUEUE_MODE")),
		SQSQueueURL:          strings.TrimSpace(v.GetString("SQS_QUEUE_URL")),
		SQSRegion:            v.GetString("SQS_REGION"),
		SQSVisibilitySeconds: v.GetInt("SQS_VISIBILITY_TIMEOUT_SECONDS"),
		WorkerConcurrency:    v.GetInt("WORKER_CONCURRENCY"),
		ShutdownTimeout:      v.GetDuration("SHUTDOWN_TIMEOUT"),

		QuotaLimit:  v.GetInt("QUOTA_LIMIT"),
		QuotaWindow: v.GetDuration("QUOTA_WINDOW"),

		RateLimitEnabled: v.GetBool("RATE_LIMIT_ENABLED"),

		JWTSecret:          v.GetString("JWT_SECRET"),
		TokenTTL:           v.GetDuration("TOKEN_TTL"),
		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		UIRedirectURL:      v.GetString("UI_REDIRECT_URL"),

		WatchInboxDir:    v.GetString("WATCH_INBOX_DIR"),
		WatchOutboxDir:   v.GetString("WATCH_OUTBOX_DIR"),
		WatchConcurrency: v.GetInt("WATCH_CONCURRENCY"),
	}
	return cfg, errors.Join(errs...)
}

// Validate reports settings that would make a binary unusable.
func (c Config) Validate() error {
	var errs []error
	if c.Env == "production" {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if strings.TrimSpace(c.JWTSecret) == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
	}
	if c.ObjectStoreType == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when OBJECT_STORE=s3"))
	}
	if c.AnalysisQueueMode == "sqs" && c.SQSQueueURL == "" {
		errs = append(errs, errors.New("SQS_QUEUE_URL is required when ANALYSIS_QUEUE_MODE=sqs"))
	}
	switch c.LLMProvider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.SpeakingRateWPM <= 0 {
		errs = append(errs, errors.New("COACH_SPEAKING_RATE_WPM must be positive"))
	}
	return errors.Join(errs...)
}

// LLMAPIKey returns the credential for the configured provider.
func (c Config) LLMAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func fileExt(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return strings.ToLower(path[i:])
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "s3") {
		return "s3"
	}
	return "local"
}

func normalizeQueueMode(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "sqs") {
		return "sqs"
	}
	return "inline"
}
