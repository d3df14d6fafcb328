// Package config loads the service configuration from environment variables.
//
// Every variable has a default. A variable that is set but cannot be parsed
// is a configuration error, as is a parsed value outside its allowed range;
// Load reports all of them at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Environments accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// CORSConfig lists browser origins allowed to call the API; empty allows all.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig controls trace export over OTLP/gRPC.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME, derived from APP_NAME when unset
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0,1]
}

// Config is the full service configuration.
type Config struct {
	AppName string // APP_NAME, echoed by GET /
	AppEnv  string // APP_ENV

	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	LogLevel       string // silent|debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBPath     string
	BcryptCost int

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	// IdempotencyTTL is how long an Idempotency-Key stays replayable.
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool { return c.AppEnv == EnvProduction }

// MustLoad is Load that panics on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads, normalizes and validates the configuration.
func Load() (Config, error) {
	var e env
	appName := strings.TrimSpace(e.get("APP_NAME", "User"))

	cfg := Config{
		AppName: appName,
		AppEnv:  appEnvAlias(strings.ToLower(e.get("APP_ENV", EnvDevelopment))),

		Port:              strings.TrimSpace(e.get("PORT", "3000")),
		ReadTimeout:       e.getDur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.getDur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.getDur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.getDur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.getInt("MAX_HEADER_BYTES", 1<<20),
		GinMode:           e.getGinMode("GIN_MODE", "release"),

		LogLevel:       logLevelAlias(strings.ToLower(e.get("LOG_LEVEL", "info"))),
		LogPretty:      e.getBool("LOG_PRETTY", false),
		SwaggerEnabled: e.getBool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.get("API_BASE_PATH", "/api/v1")),

		DBPath:     strings.TrimSpace(e.get("DB_PATH", "app.db")),
		BcryptCost: e.getInt("BCRYPT_COST", bcrypt.DefaultCost),

		RateRPS:   e.getFloat("RATE_RPS", 5),
		RateBurst: e.getInt("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.get("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.getBool("ENABLE_HSTS", false),
			HSTSMaxAge: e.getDur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.getDur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.getBool("OTEL_ENABLED", false),
			Endpoint:    e.get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.get("OTEL_SERVICE_NAME", serviceName(appName)),
			SampleRatio: e.getFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.AppName != "", "APP_NAME must not be empty")
	check(oneOf(c.AppEnv, EnvDevelopment, EnvTest, EnvProduction),
		"APP_ENV must be one of development, test, production (got %q)", c.AppEnv)
	check(oneOf(c.LogLevel, "silent", "debug", "info", "warn", "error", "fatal", "panic"),
		"LOG_LEVEL must be one of silent, debug, info, warn, error, fatal, panic (got %q)", c.LogLevel)
	check(c.Port != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.DBPath != "", "DB_PATH must not be empty")
	check(c.BcryptCost >= bcrypt.MinCost && c.BcryptCost <= bcrypt.MaxCost,
		"BCRYPT_COST must be between %d and %d (got %d)", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func appEnvAlias(v string) string {
	switch v {
	case "dev":
		return EnvDevelopment
	case "prod":
		return EnvProduction
	}
	return v
}

func logLevelAlias(v string) string {
	switch v {
	case "warning":
		return "warn"
	case "disabled", "off", "none":
		return "silent"
	}
	return v
}

// serviceName derives a tracer service name from the app name,
// e.g. "User Accounts" -> "user-accounts-api".
func serviceName(app string) string {
	s := strings.ToLower(strings.Join(strings.Fields(app), "-"))
	if s == "" {
		return "user-api"
	}
	return s + "-api"
}

// env reads typed variables and records the ones that fail to parse.
type env struct {
	errs []error
}

// lookup returns the trimmed value of k; unset and empty are both "missing".
func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", k, v, kind))
}

func (e *env) get(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func (e *env) getInt(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return n
}

func (e *env) getFloat(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) getDur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func (e *env) getBool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

// getGinMode accepts debug, release or test in any case.
func (e *env) getGinMode(k, def string) string {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	if m := strings.ToLower(v); oneOf(m, "debug", "release", "test") {
		return m
	}
	e.fail(k, v, "gin mode")
	return def
}

// splitCSV splits on commas and drops blank items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
