package app

import (
	"time"

	"sigrelay/cmd/internal/signal"
	"sigrelay/cmd/security/wrap"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | pretty
	LogColor  bool

	ReadHeaderTimeout time.Duration
	// Zero disables the timeout; websocket connections are long-lived.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Audit trail: Postgres when DatabaseURL is set, else SQLite when
	// AuditSQLitePath is set, else disabled.
	AuditSQLitePath string
	AuditSchema     string
	AuditQueue      int

	// If true, /readyz returns 503 unless a DB is configured and reachable.
	ReadinessRequireDB bool

	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	WrapMinRSABits int

	WS signal.GatewayConfig
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	ws := signal.DefaultGatewayConfig()
	ws.DevInsecure = EnvBool("RELAY_WS_DEV_INSECURE", false)
	ws.OriginRequired = EnvBool("RELAY_WS_ORIGIN_REQUIRED", ws.OriginRequired)
	ws.AllowedOrigins = EnvCSV("RELAY_WS_ALLOWED_ORIGINS", ws.AllowedOrigins)
	ws.WriteTimeout = EnvDuration("RELAY_WS_WRITE_TIMEOUT", ws.WriteTimeout)
	ws.ReadIdleTimeout = EnvDuration("RELAY_WS_READ_IDLE_TIMEOUT", ws.ReadIdleTimeout)
	ws.SendQueueSize = EnvInt("RELAY_WS_SEND_QUEUE", ws.SendQueueSize)
	ws.HeartbeatEvery = EnvDuration("RELAY_WS_HEARTBEAT_INTERVAL", ws.HeartbeatEvery)
	ws.HeartbeatTimeout = EnvDuration("RELAY_WS_HEARTBEAT_TIMEOUT", ws.HeartbeatTimeout)
	ws.RateEvents = EnvInt("RELAY_WS_RATE_EVENTS", ws.RateEvents)
	ws.RateWindow = EnvDuration("RELAY_WS_RATE_WINDOW", ws.RateWindow)

	return Config{
		HTTPAddr:  EnvString("RELAY_HTTP_ADDR", "0.0.0.0:5000"),
		LogLevel:  EnvString("RELAY_LOG_LEVEL", "info"),
		LogFormat: EnvString("RELAY_LOG_FORMAT", "json"),
		LogColor:  EnvBool("RELAY_LOG_COLOR", true),

		ReadHeaderTimeout: EnvDuration("RELAY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RELAY_HTTP_READ_TIMEOUT", 0),
		WriteTimeout:      EnvDuration("RELAY_HTTP_WRITE_TIMEOUT", 0),
		IdleTimeout:       EnvDuration("RELAY_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("RELAY_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("RELAY_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("RELAY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("RELAY_DB_MIN_CONNS", 0),

		AuditSQLitePath: EnvString("RELAY_AUDIT_SQLITE_PATH", ""),
		AuditSchema:     EnvString("RELAY_AUDIT_SCHEMA", "sigrelay"),
		AuditQueue:      EnvInt("RELAY_AUDIT_QUEUE", 1024),

		ReadinessRequireDB: EnvBool("RELAY_READINESS_REQUIRE_DB", false),

		MetricsEnabled: EnvBool("RELAY_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvCSV("RELAY_CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		CORSAllowCredentials: EnvBool("RELAY_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("RELAY_CORS_MAX_AGE_SECONDS", 600),

		WrapMinRSABits: EnvInt("RELAY_WRAP_MIN_RSA_BITS", wrap.DefaultMinRSABits),

		WS: ws,
	}
}
