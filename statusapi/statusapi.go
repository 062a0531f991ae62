// Package statusapi serves the synchronous status probe.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nfcbridge/reader"
)

// ReaderStater reports the current reader state.
type ReaderStater interface {
	ReaderState() reader.State
}

// Counter reports the number of connected subscribers.
type Counter interface {
	Count() int
}

// Status is the body of GET /status.
type Status struct {
	Status           string  `json:"status"`
	NFCAvailable     bool    `json:"nfc_available"`
	ConnectedClients int     `json:"connected_clients"`
	ReaderConnected  bool    `json:"reader_connected"`
	ReaderName       *string `json:"reader_name"`
}

// Snapshot builds a Status from live state.
func Snapshot(st reader.State, clients int) Status {
	s := Status{
		Status:           "running",
		NFCAvailable:     st.Available,
		ConnectedClients: clients,
		ReaderConnected:  st.Attached,
	}
	if st.Name != "" {
		name := st.Name
		s.ReaderName = &name
	}
	return s
}

// NewMux returns the status router. GET /status is the only route; every
// other path or method is 404, and OPTIONS on any path is a 200 preflight.
func NewMux(rs ReaderStater, subs Counter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(preflight)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(Snapshot(rs.ReaderState(), subs.Count())); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	return r
}

// MetricsMux serves the Prometheus registry at /metrics.
func MetricsMux() http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
	})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSONError(w, http.StatusNotFound, "not found")
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
		"code":  status,
	})
}
