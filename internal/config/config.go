// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, token signing, rate limiting, circuit
// breaking, object storage, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "imagegen-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines identity-token signing and the bootstrap token endpoint.
type AuthConfig struct {
	Secret        string        // JWT_SECRET (HMAC key, required)
	Issuer        string        // JWT_ISSUER
	DefaultTTL    time.Duration // JWT_DEFAULT_TTL (token lifetime when none requested)
	MaxTTL        time.Duration // JWT_MAX_TTL (cap on client-requested lifetimes)
	TokenEndpoint bool          // AUTH_TOKEN_ENDPOINT_ENABLED (bootstrap/test surface)
}

// RateConfig defines both rate-limiting layers: the per-user fixed window
// enforced against the shared Redis counter store, and the process-local
// per-IP token bucket applied at the edge before authentication.
type RateConfig struct {
	UserLimit  int           // RATE_USER_LIMIT (requests per window per user)
	UserWindow time.Duration // RATE_USER_WINDOW
	FailOpen   bool          // RATE_FAIL_OPEN (admit when the counter store is down)

	EdgeRPS   float64 // RATE_EDGE_RPS (per-IP tokens per second)
	EdgeBurst int     // RATE_EDGE_BURST
}

// RedisConfig defines the shared counter store connection.
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// BreakerConfig defines the circuit breaker guarding backend invocations.
type BreakerConfig struct {
	FailureThreshold int           // BREAKER_FAILURE_THRESHOLD
	ResetTimeout     time.Duration // BREAKER_RESET_TIMEOUT
}

// StorageConfig defines the durable object store layout and URL policy.
type StorageConfig struct {
	Bucket        string        // STORAGE_BUCKET
	Region        string        // AWS_REGION
	InputPrefix   string        // STORAGE_INPUT_PREFIX (job input JSON documents)
	OutputPrefix  string        // STORAGE_OUTPUT_PREFIX (completed artifacts)
	FailurePrefix string        // STORAGE_FAILURE_PREFIX (failure payloads)
	PresignTTL    time.Duration // STORAGE_PRESIGN_TTL (download URL validity)
	ListPageSize  int           // STORAGE_LIST_PAGE_SIZE (scan page bound)
}

// InferenceConfig defines the downstream async compute endpoint.
type InferenceConfig struct {
	EndpointName     string        // INFER_ENDPOINT_NAME
	InvokeTimeout    time.Duration // INFER_INVOKE_TIMEOUT (bound on the submit call)
	EstimatedSeconds int           // INFER_ESTIMATED_SECONDS (reported in descriptors)
	MaxErrorChars    int           // INFER_MAX_ERROR_CHARS (failure message bound)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for authenticated API routes

	// Ledger (submission replay store)
	DBPath string // SQLite path

	// Domain
	Auth      AuthConfig
	Rate      RateConfig
	Redis     RedisConfig
	Breaker   BreakerConfig
	Storage   StorageConfig
	Inference InferenceConfig

	// Prompt bounds
	MaxPromptRunes int // MAX_PROMPT_RUNES

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is replayable

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/auth")),

		// Ledger
		DBPath: getenv("DB_PATH", "gateway.db"),

		// Auth
		Auth: AuthConfig{
			Secret:        getenv("JWT_SECRET", ""),
			Issuer:        getenv("JWT_ISSUER", "imagegen-gateway"),
			DefaultTTL:    getdur("JWT_DEFAULT_TTL", 24*time.Hour),
			MaxTTL:        getdur("JWT_MAX_TTL", 7*24*time.Hour),
			TokenEndpoint: getbool("AUTH_TOKEN_ENDPOINT_ENABLED", true),
		},

		// Rate limiting
		Rate: RateConfig{
			UserLimit:  getint("RATE_USER_LIMIT", 60),
			UserWindow: getdur("RATE_USER_WINDOW", time.Minute),
			FailOpen:   getbool("RATE_FAIL_OPEN", true),
			EdgeRPS:    getfloat("RATE_EDGE_RPS", 10.0),
			EdgeBurst:  getint("RATE_EDGE_BURST", 20),
		},

		// Shared counter store
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Circuit breaker
		Breaker: BreakerConfig{
			FailureThreshold: getint("BREAKER_FAILURE_THRESHOLD", 5),
			ResetTimeout:     getdur("BREAKER_RESET_TIMEOUT", 60*time.Second),
		},

		// Object storage
		Storage: StorageConfig{
			Bucket:        getenv("STORAGE_BUCKET", ""),
			Region:        getenv("AWS_REGION", "us-east-1"),
			InputPrefix:   normalizePrefix(getenv("STORAGE_INPUT_PREFIX", "inputs/")),
			OutputPrefix:  normalizePrefix(getenv("STORAGE_OUTPUT_PREFIX", "outputs/")),
			FailurePrefix: normalizePrefix(getenv("STORAGE_FAILURE_PREFIX", "failures/")),
			PresignTTL:    getdur("STORAGE_PRESIGN_TTL", time.Hour),
			ListPageSize:  getint("STORAGE_LIST_PAGE_SIZE", 1000),
		},

		// Backend
		Inference: InferenceConfig{
			EndpointName:     getenv("INFER_ENDPOINT_NAME", ""),
			InvokeTimeout:    getdur("INFER_INVOKE_TIMEOUT", 30*time.Second),
			EstimatedSeconds: getint("INFER_ESTIMATED_SECONDS", 60),
			MaxErrorChars:    getint("INFER_MAX_ERROR_CHARS", 500),
		},

		// Prompt bounds
		MaxPromptRunes: getint("MAX_PROMPT_RUNES", 1000),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "imagegen-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Auth.DefaultTTL <= 0 || cfg.Auth.MaxTTL <= 0 {
		return cfg, errors.New("JWT_DEFAULT_TTL and JWT_MAX_TTL must be > 0")
	}
	if cfg.Auth.DefaultTTL > cfg.Auth.MaxTTL {
		return cfg, errors.New("JWT_DEFAULT_TTL must not exceed JWT_MAX_TTL")
	}
	if cfg.Rate.UserLimit < 1 {
		return cfg, errors.New("RATE_USER_LIMIT must be >= 1")
	}
	if cfg.Rate.UserWindow <= 0 {
		return cfg, errors.New("RATE_USER_WINDOW must be > 0")
	}
	if cfg.Rate.EdgeRPS < 0 {
		return cfg, errors.New("RATE_EDGE_RPS must be >= 0")
	}
	if cfg.Rate.EdgeBurst < 1 {
		return cfg, errors.New("RATE_EDGE_BURST must be >= 1")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return cfg, errors.New("BREAKER_FAILURE_THRESHOLD must be >= 1")
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		return cfg, errors.New("BREAKER_RESET_TIMEOUT must be > 0")
	}
	if cfg.Storage.PresignTTL <= 0 {
		return cfg, errors.New("STORAGE_PRESIGN_TTL must be > 0")
	}
	if cfg.Storage.ListPageSize < 1 {
		return cfg, errors.New("STORAGE_LIST_PAGE_SIZE must be >= 1")
	}
	if cfg.Inference.InvokeTimeout <= 0 {
		return cfg, errors.New("INFER_INVOKE_TIMEOUT must be > 0")
	}
	if cfg.Inference.EstimatedSeconds < 1 {
		return cfg, errors.New("INFER_ESTIMATED_SECONDS must be >= 1")
	}
	if cfg.Inference.MaxErrorChars < 1 {
		return cfg, errors.New("INFER_MAX_ERROR_CHARS must be >= 1")
	}
	if cfg.MaxPromptRunes < 1 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// normalizePrefix guarantees a trailing '/' so prefixes always delimit a
// storage "directory" and never match sibling keys.
func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
