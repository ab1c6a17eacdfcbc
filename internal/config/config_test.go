package config

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

// isolate blanks every key Load reads so the host environment cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"SHUTDOWN_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY",
		"SWAGGER_ENABLED", "API_BASE_PATH", "DB_PATH", "POLL_INTERVAL",
		"POLL_MESSAGES_DEADLINE", "POLL_NOTIFICATIONS_DEADLINE", "CHECKPOINT_BACKEND",
		"CHECKPOINT_TTL", "CHECKPOINT_CLEANUP", "RATE_RPS", "RATE_BURST",
		"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	want := PollConfig{Interval: 5 * time.Second, MessagesDeadline: 30 * time.Second, NotificationsDeadline: 25 * time.Second}
	if cfg.Poll != want {
		t.Fatalf("poll = %+v", cfg.Poll)
	}
	if cfg.WriteTimeout <= cfg.Poll.LongestDeadline() {
		t.Fatalf("write timeout %v does not outlive polls", cfg.WriteTimeout)
	}
	if cfg.Checkpoint.Backend != BackendMemory || cfg.Checkpoint.TTL != 24*time.Hour || cfg.Checkpoint.Cleanup != time.Hour {
		t.Fatalf("checkpoint = %+v", cfg.Checkpoint)
	}
	if cfg.CORS.AllowedOrigins != nil || cfg.OTEL.Enabled || !cfg.OTEL.Insecure {
		t.Fatalf("cors/otel defaults: %+v %+v", cfg.CORS, cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	isolate(t)
	env := map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"READ_HEADER_TIMEOUT":         "1s",
		"WRITE_TIMEOUT":               "3s",
		"IDLE_TIMEOUT":                "4s",
		"SHUTDOWN_TIMEOUT":            "5s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "Weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             " on ",
		"API_BASE_PATH":               "api/v2/",
		"DB_PATH":                     "db.sqlite",
		"POLL_INTERVAL":               "500ms",
		"POLL_MESSAGES_DEADLINE":      "2s",
		"POLL_NOTIFICATIONS_DEADLINE": "1500ms",
		"CHECKPOINT_BACKEND":          " SQLite ",
		"CHECKPOINT_TTL":              "2h",
		"CHECKPOINT_CLEANUP":          "10m",
		"RATE_RPS":                    "2.5",
		"RATE_BURST":                  "4",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		Port:              "8088",
		ReadTimeout:       2 * time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       4 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		MaxHeaderBytes:    8192,
		GinMode:           "release",
		LogLevel:          "warn",
		LogPretty:         true,
		SwaggerEnabled:    true,
		APIBasePath:       "/api/v2",
		DBPath:            "db.sqlite",
		Poll:              PollConfig{Interval: 500 * time.Millisecond, MessagesDeadline: 2 * time.Second, NotificationsDeadline: 1500 * time.Millisecond},
		Checkpoint:        CheckpointConfig{Backend: BackendSQLite, TTL: 2 * time.Hour, Cleanup: 10 * time.Minute},
		RateRPS:           2.5,
		RateBurst:         4,
		CORS:              CORSConfig{AllowedOrigins: []string{"https://a.com", "http://b"}},
		Security:          SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour},
		IdempotencyTTL:    48 * time.Hour,
		OTEL:              OTELConfig{Enabled: true, Endpoint: "otel:4317", ServiceName: "svc", SampleRatio: 0.25},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("Load:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestLoad_MalformedValuesAreReported(t *testing.T) {
	isolate(t)
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	if err == nil {
		t.Fatal("expected parse errors")
	}
	for _, key := range []string{"RATE_RPS", "RATE_BURST", "POLL_INTERVAL", "LOG_PRETTY"} {
		if !strings.Contains(err.Error(), key+"=") {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
	// Bad keys fall back to defaults so the rest of cfg stays usable.
	if cfg.RateRPS != 5 || cfg.RateBurst != 10 || cfg.Poll.Interval != 5*time.Second || cfg.LogPretty {
		t.Fatalf("fallbacks: %+v", cfg)
	}
}

func TestLoad_ConstraintViolations(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"shutdown", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"poll interval", map[string]string{"POLL_INTERVAL": "0s"}, "POLL_INTERVAL must be > 0"},
		{"deadline below interval", map[string]string{"POLL_INTERVAL": "10s", "POLL_NOTIFICATIONS_DEADLINE": "5s"}, "POLL_*_DEADLINE"},
		{"write timeout", map[string]string{"WRITE_TIMEOUT": "20s"}, "WRITE_TIMEOUT"},
		{"backend", map[string]string{"CHECKPOINT_BACKEND": "redis"}, "CHECKPOINT_BACKEND"},
		{"checkpoint ttl", map[string]string{"CHECKPOINT_TTL": "-1m"}, "CHECKPOINT_TTL"},
		{"rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoad_JoinsAllFailures(t *testing.T) {
	isolate(t)
	t.Setenv("RATE_BURST", "0")
	t.Setenv("IDEMPOTENCY_TTL", "0s")
	_, err := Load()
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Fatalf("expected two joined errors, got %v", err)
	}
}

func TestValidate_EmptyStrings(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Port, cfg.DBPath = "", ""
	msgs := ""
	for _, e := range cfg.validate() {
		msgs += e.Error() + "\n"
	}
	if !strings.Contains(msgs, "PORT") || !strings.Contains(msgs, "DB_PATH") {
		t.Fatalf("validate = %q", msgs)
	}
}

func TestEnvBoolean(t *testing.T) {
	for v, want := range map[string]bool{
		"1": true, "TRUE": true, " yes ": true, "Y": true, "On": true,
		"0": false, "false": false, "No": false, "n": false, "OFF": false,
	} {
		t.Setenv("B", v)
		var e env
		if got := e.boolean("B", !want); got != want || e.errs != nil {
			t.Errorf("boolean(%q) = %v (errs %v), want %v", v, got, e.errs, want)
		}
	}
}

func TestPollConfig_LongestDeadline(t *testing.T) {
	p := PollConfig{MessagesDeadline: time.Second, NotificationsDeadline: 2 * time.Second}
	if p.LongestDeadline() != 2*time.Second {
		t.Fatal(p.LongestDeadline())
	}
	p.MessagesDeadline = 3 * time.Second
	if p.LongestDeadline() != 3*time.Second {
		t.Fatal(p.LongestDeadline())
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Fatalf("splitCSV(\"\") = %#v", got)
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", " / ": "/", "v1": "/v1", "/v1/": "/v1", "//a/b//": "/a/b"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
