// Package debughttp exposes a read-only HTTP surface over a running
// overlay.Core for operational inspection (SPEC_FULL.md §4.11), adapted
// from gebunden-src/http_server.go's http.Server + ServeMux + CORS
// middleware pattern; this surface has no TLS or write endpoints, since
// spec.md's Non-goals exclude any external RPC/control-plane surface.
package debughttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Inspector is the subset of overlay.Core this handler needs; defined here
// rather than importing overlay.Core directly so tests can stub it.
type Inspector interface {
	AuthenticatedAddresses() []string
	ReportedAddresses() []string
	AuthenticatedCount() int
	ReportedCount() int
}

// Handler serves read-only peer-table snapshots and Prometheus metrics.
type Handler struct {
	log       *slog.Logger
	inspector Inspector
	server    *http.Server
}

// New builds a Handler bound to addr, not yet started. metrics is mounted
// at /metrics; pass nil to omit the route entirely (e.g. a Core built
// without SPEC_FULL.md §4.10 wiring).
func New(log *slog.Logger, addr string, inspector Inspector, metrics http.Handler) *Handler {
	h := &Handler{log: log.With("component", "debughttp"), inspector: inspector}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/peers", h.handlePeers)
	mux.HandleFunc("/healthz", h.handleHealthz)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	h.server = &http.Server{
		Addr:    addr,
		Handler: h.corsMiddleware(mux),
	}
	return h
}

// Start listens and serves in its own goroutine, returning immediately.
func (h *Handler) Start() {
	go func() {
		h.log.Info("debug http server listening", "addr", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error("debug http server error", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests up to ctx's deadline.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

type peersResponse struct {
	Authenticated      []string `json:"authenticated"`
	Reported           []string `json:"reported"`
	AuthenticatedCount int      `json:"authenticated_count"`
	ReportedCount      int      `json:"reported_count"`
}

func (h *Handler) handlePeers(w http.ResponseWriter, r *http.Request) {
	resp := peersResponse{
		Authenticated:      h.inspector.AuthenticatedAddresses(),
		Reported:           h.inspector.ReportedAddresses(),
		AuthenticatedCount: h.inspector.AuthenticatedCount(),
		ReportedCount:      h.inspector.ReportedCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("failed to encode peers response", "error", err)
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
