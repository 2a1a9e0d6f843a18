package app

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"sigrelay/cmd/internal/signal"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type httpDeps struct {
	dbPool   *pgxpool.Pool
	registry *prometheus.Registry // nil when metrics are disabled
	coord    *signal.Coordinator
	ws       *signal.WSGateway
}

// newHTTPHandler builds the full route tree. /ws sits outside the CORS layer;
// the gateway enforces its own origin policy during the upgrade.
func newHTTPHandler(log Logger, cfg Config, d httpDeps) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	api.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && d.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if d.dbPool != nil {
			if err := PingDB(r.Context(), d.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	api.HandleFunc("GET /v1/presence", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.coord.Presence()); err != nil {
			log.Warn("http.presence.encode.fail", "err", err)
		}
	})

	if d.registry != nil {
		api.Handle("GET /metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{
			Registry: d.registry,
		}))
	}

	root := http.NewServeMux()
	root.Handle("/ws", d.ws)
	root.Handle("/", WithSecurityHeaders(WithCORS(api, cfg, log)))

	return WithRequestLogging(root, log)
}

// runtimeBaseURL turns a listen address into a dialable http base URL.
// Wildcard binds are reported as loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
