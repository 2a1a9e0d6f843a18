package app

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"sigrelay/cmd/security/wrap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"RELAY_HTTP_ADDR", "RELAY_LOG_FORMAT", "RELAY_DATABASE_URL",
		"RELAY_AUDIT_SQLITE_PATH", "RELAY_WS_ALLOWED_ORIGINS", "RELAY_WRAP_MIN_RSA_BITS",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:5000" {
		t.Fatalf("HTTPAddr=%q want=0.0.0.0:5000", cfg.HTTPAddr)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat=%q want=json", cfg.LogFormat)
	}
	if cfg.DatabaseURL != "" || cfg.AuditSQLitePath != "" {
		t.Fatalf("unexpected audit backend: db=%q sqlite=%q", cfg.DatabaseURL, cfg.AuditSQLitePath)
	}
	if cfg.WrapMinRSABits != wrap.DefaultMinRSABits {
		t.Fatalf("WrapMinRSABits=%d want=%d", cfg.WrapMinRSABits, wrap.DefaultMinRSABits)
	}
	if !cfg.WS.OriginRequired || len(cfg.WS.AllowedOrigins) != 2 {
		t.Fatalf("WS=%+v", cfg.WS)
	}
	if cfg.ReadTimeout != 0 || cfg.WriteTimeout != 0 {
		t.Fatalf("server read/write timeouts should default off: %v %v", cfg.ReadTimeout, cfg.WriteTimeout)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("RELAY_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("RELAY_WS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example ")
	t.Setenv("RELAY_WS_RATE_EVENTS", "5")
	t.Setenv("RELAY_WS_RATE_WINDOW", "2s")
	t.Setenv("RELAY_WS_DEV_INSECURE", "true")
	t.Setenv("RELAY_METRICS_ENABLED", "false")
	t.Setenv("RELAY_WRAP_MIN_RSA_BITS", "3072")
	t.Setenv("RELAY_AUDIT_QUEUE", "not-a-number")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if want := []string{"https://a.example", "https://b.example"}; !slices.Equal(cfg.WS.AllowedOrigins, want) {
		t.Fatalf("AllowedOrigins=%v want=%v", cfg.WS.AllowedOrigins, want)
	}
	if cfg.WS.RateEvents != 5 || cfg.WS.RateWindow != 2*time.Second {
		t.Fatalf("rate=%d/%v", cfg.WS.RateEvents, cfg.WS.RateWindow)
	}
	if !cfg.WS.DevInsecure {
		t.Fatalf("DevInsecure=false want=true")
	}
	if cfg.MetricsEnabled {
		t.Fatalf("MetricsEnabled=true want=false")
	}
	if cfg.WrapMinRSABits != 3072 {
		t.Fatalf("WrapMinRSABits=%d want=3072", cfg.WrapMinRSABits)
	}
	if cfg.AuditQueue != 1024 {
		t.Fatalf("AuditQueue=%d want default 1024", cfg.AuditQueue)
	}
}

func TestEnvCSV(t *testing.T) {
	def := []string{"x"}

	t.Setenv("RELAY_TEST_CSV", "")
	if got := EnvCSV("RELAY_TEST_CSV", def); !slices.Equal(got, def) {
		t.Fatalf("unset: got=%v", got)
	}

	t.Setenv("RELAY_TEST_CSV", " , ,")
	if got := EnvCSV("RELAY_TEST_CSV", def); !slices.Equal(got, def) {
		t.Fatalf("all empty: got=%v", got)
	}

	t.Setenv("RELAY_TEST_CSV", "a,b")
	if got := EnvCSV("RELAY_TEST_CSV", def); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("list: got=%v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "RELAY_DOTENV_NEW=from-file\nRELAY_DOTENV_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("RELAY_DOTENV_SET", "from-env")
	t.Setenv("RELAY_DOTENV_NEW", "")
	_ = os.Unsetenv("RELAY_DOTENV_NEW")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("RELAY_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("RELAY_DOTENV_NEW=%q want=from-file", got)
	}
	if got := os.Getenv("RELAY_DOTENV_SET"); got != "from-env" {
		t.Fatalf("RELAY_DOTENV_SET=%q want=from-env", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := LoadDotEnv(""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}
