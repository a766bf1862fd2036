package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"commute-annotator/address"
	"commute-annotator/internal/types"
	"commute-annotator/metrics"
)

// Resolver is satisfied by Service
type Resolver interface {
	Resolve(ctx context.Context, apartmentAddress string) (*types.ResolveResponse, error)
}

// Handler serves the resolver API
type Handler struct {
	resolver Resolver
	logger   types.Logger
	timeout  time.Duration
}

// NewHandler creates the API handler
func NewHandler(resolver Resolver, logger types.Logger, timeout time.Duration) *Handler {
	return &Handler{
		resolver: resolver,
		logger:   logger,
		timeout:  timeout,
	}
}

// Router returns the chi router with all endpoints mounted
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))
	r.Use(Metrics)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Post("/commute", h.handleCommute)
		r.Options("/commute", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/health", h.handleHealth)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// InvalidAddressMessage is returned for text that does not look like an address
const InvalidAddressMessage = "Could not detect address"

// handleCommute resolves one apartment address
func (h *Handler) handleCommute(w http.ResponseWriter, r *http.Request) {
	var req types.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	addr := strings.TrimSpace(req.ApartmentAddress)
	if !address.IsValid(addr) {
		h.send(w, &types.ResolveResponse{Error: InvalidAddressMessage}, http.StatusOK)
		return
	}

	h.logger.Infof("Commute request received for %s", addr)

	resp, err := h.resolver.Resolve(r.Context(), addr)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"address":    addr,
		}).Warnf("Resolution failed: %v", err)
		h.sendError(w, "Commute service unavailable", http.StatusBadGateway)
		return
	}

	h.send(w, resp, http.StatusOK)
}

// handleHealth handles the health check endpoint
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (h *Handler) send(w http.ResponseWriter, resp *types.ResolveResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.send(w, &types.ResolveResponse{Error: message}, statusCode)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics records request counts and latencies by route pattern
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := strconv.Itoa(rw.statusCode)
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}
