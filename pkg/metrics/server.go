package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/websift/dedup-engine/pkg/health"
	"github.com/websift/dedup-engine/pkg/middleware"
)

// StartServer runs the operational HTTP server: Prometheus scrape endpoint
// plus liveness/readiness probes. The returned function shuts it down.
func StartServer(port int, checker *health.Checker) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	if checker != nil {
		mux.HandleFunc("/healthz", checker.LiveHandler())
		mux.HandleFunc("/readyz", checker.ReadyHandler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>Dedup Engine</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      middleware.Timeout(10 * time.Second)(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
