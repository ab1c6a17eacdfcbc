// Package config loads process settings from the environment. Every key has a
// default; malformed values are reported rather than silently replaced, and
// the assembled Config is checked as a whole before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the browser origins allowed to call the API. Empty means
// any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls Strict-Transport-Security.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures the OTLP/gRPC trace exporter.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE, plaintext gRPC
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG, 0..1
}

// PollConfig is the long-poll cadence. A session re-checks its streams every
// Interval until something is new or its deadline passes.
type PollConfig struct {
	Interval              time.Duration // POLL_INTERVAL
	MessagesDeadline      time.Duration // POLL_MESSAGES_DEADLINE
	NotificationsDeadline time.Duration // POLL_NOTIFICATIONS_DEADLINE
}

// LongestDeadline is the longest a poll request can be held open.
func (p PollConfig) LongestDeadline() time.Duration {
	return max(p.MessagesDeadline, p.NotificationsDeadline)
}

// CheckpointConfig selects where delivery checkpoints live.
type CheckpointConfig struct {
	Backend string        // CHECKPOINT_BACKEND: memory or sqlite
	TTL     time.Duration // CHECKPOINT_TTL, idle key lifetime
	Cleanup time.Duration // CHECKPOINT_CLEANUP, sweep period
}

// Checkpoint backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the full process configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration // must outlive every poll deadline
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug, release or test

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBPath string

	Poll       PollConfig
	Checkpoint CheckpointConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// Load reads the environment. The returned error joins every malformed key
// and every failed constraint so one restart fixes them all.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 45*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", time.Minute),
		ShutdownTimeout:   e.dur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
		GinMode:           ginMode(e.str("GIN_MODE", "release")),

		LogLevel:       logLevel(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.boolean("LOG_PRETTY", false),
		SwaggerEnabled: e.boolean("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DBPath: e.str("DB_PATH", "social.db"),

		Poll: PollConfig{
			Interval:              e.dur("POLL_INTERVAL", 5*time.Second),
			MessagesDeadline:      e.dur("POLL_MESSAGES_DEADLINE", 30*time.Second),
			NotificationsDeadline: e.dur("POLL_NOTIFICATIONS_DEADLINE", 25*time.Second),
		},
		Checkpoint: CheckpointConfig{
			Backend: strings.ToLower(e.str("CHECKPOINT_BACKEND", BackendMemory)),
			TTL:     e.dur("CHECKPOINT_TTL", 24*time.Hour),
			Cleanup: e.dur("CHECKPOINT_CLEANUP", time.Hour),
		},

		RateRPS:   e.float("RATE_RPS", 5),
		RateBurst: e.integer("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.boolean("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.boolean("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-social-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

type check struct {
	ok  bool
	msg string
}

func (c Config) validate() []error {
	checks := []check{
		{validLogLevel(c.LogLevel), "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{c.Port != "", "PORT must not be empty"},
		{c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0, "server timeouts must be positive"},
		{c.ShutdownTimeout > 0, "SHUTDOWN_TIMEOUT must be > 0"},
		{c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0"},
		{c.DBPath != "", "DB_PATH must not be empty"},
		{c.Poll.Interval > 0, "POLL_INTERVAL must be > 0"},
		{c.Poll.MessagesDeadline >= c.Poll.Interval && c.Poll.NotificationsDeadline >= c.Poll.Interval, "POLL_*_DEADLINE must be >= POLL_INTERVAL"},
		{c.WriteTimeout > c.Poll.LongestDeadline(), "WRITE_TIMEOUT must exceed the longest POLL_*_DEADLINE"},
		{c.Checkpoint.Backend == BackendMemory || c.Checkpoint.Backend == BackendSQLite, "CHECKPOINT_BACKEND must be one of: memory, sqlite"},
		{c.Checkpoint.TTL >= 0 && c.Checkpoint.Cleanup >= 0, "CHECKPOINT_TTL and CHECKPOINT_CLEANUP must be >= 0"},
		{c.RateRPS >= 0, "RATE_RPS must be >= 0"},
		{c.RateBurst >= 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0"},
		{c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0"},
		{c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	var errs []error
	for _, ch := range checks {
		if !ch.ok {
			errs = append(errs, errors.New(ch.msg))
		}
	}
	return errs
}

// env reads typed values and remembers which keys failed to parse.
type env struct {
	errs []error
}

// lookup returns the trimmed value; blank counts as unset.
func (e *env) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *env) fail(key, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, val, err))
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(key, v, errors.New("not a boolean"))
	return def
}

func ginMode(m string) string {
	switch m = strings.ToLower(m); m {
	case "debug", "release", "test":
		return m
	}
	return "release"
}

func logLevel(l string) string {
	if l = strings.ToLower(l); l == "warning" {
		return "warn"
	}
	return l
}

func validLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error", "fatal", "panic":
		return true
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// blank means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
