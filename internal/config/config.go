// Package config loads runtime settings from environment variables.
//
// Every value has a default so the service starts with an empty
// environment; Load rejects combinations that cannot work (unknown driver,
// Redis backend without an address, non-positive sizes). Unparseable
// numbers and durations fall back to their defaults. A .env file is read
// by the entry points, not here.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

// CORSConfig lists allowed browser origins; empty allows any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the Store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file
	URL    string // Postgres DSN
}

// DSN returns the data source for the selected driver.
func (d DBConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// CacheConfig selects the export cache backend.
type CacheConfig struct {
	Backend       string // memory|redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ExportTTL     time.Duration
}

// SeedConfig holds the bulk loader defaults.
type SeedConfig struct {
	Keys    int
	Chunk   int
	Locales []string
	Tags    []string
}

type Config struct {
	Port              string
	Env               string // development|production|test
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	GinMode           string // debug|release|test

	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DB    DBConfig
	Cache CacheConfig
	Seed  SeedConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// MustLoad is Load that panics on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment. Errors wrap domain.ErrConfiguration.
func Load() (Config, error) {
	env := strings.ToLower(getenv("ENV", "development"))
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		Env:               env,
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", env == "development"),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", env != "production"),
		APIBasePath:    normalizeBasePath(getenv("BASE_PATH", getenv("API_BASE_PATH", "/api/v1"))),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "translations.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getenv("CACHE_BACKEND", "memory")),
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			ExportTTL:     getdur("EXPORT_CACHE_TTL", 10*time.Minute),
		},
		Seed: SeedConfig{
			Keys:    getint("SEED_KEYS", 40000),
			Chunk:   getint("SEED_CHUNK", 1000),
			Locales: splitCSV(getenv("SEED_LOCALES", "en,fr,es")),
			Tags:    splitCSV(getenv("SEED_TAGS", "web,mobile,desktop")),
		},

		RateRPS:   getfloat("RATE_RPS", 10.0),
		RateBurst: getint("RATE_BURST", 20),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("SECURITY_ENABLE_HSTS", getbool("ENABLE_HSTS", false)),
			HSTSMaxAge: getdur("SECURITY_HSTS_MAX_AGE", getdur("HSTS_MAX_AGE", 180*24*time.Hour)),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-translation-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	bad := domain.Configuration
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return bad("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return bad("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return bad("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 || cfg.MaxBodyBytes <= 0 {
		return bad("MAX_HEADER_BYTES and MAX_BODY_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return bad("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return bad("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return bad("DB_DRIVER must be sqlite or postgres")
	}

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
			return bad("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	default:
		return bad("CACHE_BACKEND must be memory or redis")
	}
	if cfg.Cache.ExportTTL <= 0 {
		return bad("EXPORT_CACHE_TTL must be > 0")
	}

	if cfg.Seed.Keys <= 0 || cfg.Seed.Chunk <= 0 {
		return bad("SEED_KEYS and SEED_CHUNK must be > 0")
	}
	if len(cfg.Seed.Locales) == 0 || len(cfg.Seed.Tags) == 0 {
		return bad("SEED_LOCALES and SEED_TAGS must not be empty")
	}

	if cfg.RateRPS < 0 {
		return bad("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return bad("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return bad("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return bad("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return bad("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

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
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
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
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
