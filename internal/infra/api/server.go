package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sri-invoice-subscription/internal/config"
)

// Pinger is any dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler serves /healthz and /metrics. Checks are keyed by name and run
// with a short timeout; any failure turns the response into a 503.
func OpsHandler(checks map[string]Pinger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": http.StatusText(status), "checks": report})
	})
	return mux
}

// NewHTTPServer applies the configured read/write timeouts to handler.
func NewHTTPServer(port int, cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * cfg.ReadTimeout,
	}
}
