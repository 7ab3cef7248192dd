// Package ops serves the operator listener: health, Prometheus metrics and
// manual settlement.
package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/yogev77/tophuman-sub001/internal/pkg/metrics"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

// AdminKeyHeader authenticates mutating operator calls.
const AdminKeyHeader = "X-Admin-Key"

// Settler is implemented by service.SettlementService.
type Settler interface {
	RunSettlement(ctx context.Context, day string) (*service.Report, error)
	PoolStatus(ctx context.Context, day, kind string) (*service.PoolView, error)
}

// Sweeper is implemented by service.TurnService.
type Sweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Pinger reports storage health. Implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the operator endpoints.
type Handler struct {
	settler  Settler
	sweeper  Sweeper
	db       Pinger
	adminKey string
}

// NewHandler creates a Handler. An empty adminKey disables the mutating
// endpoints.
func NewHandler(settler Settler, sweeper Sweeper, db Pinger, adminKey string) *Handler {
	return &Handler{settler: settler, sweeper: sweeper, db: db, adminKey: adminKey}
}

// Router builds the operator mux.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/pools/{day}/{kind}", h.PoolStatus).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/settlements/{day}", h.RunSettlement).Methods(http.MethodPost)
	admin.HandleFunc("/sweep", h.Sweep).Methods(http.MethodPost)
	return r
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PoolStatus describes one pool.
func (h *Handler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := h.settler.PoolStatus(r.Context(), vars["day"], vars["kind"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// RunSettlement settles every kind of a day.
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	day := mux.Vars(r)["day"]
	report, err := h.settler.RunSettlement(r.Context(), day)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	log.Info().
		Str("day", day).
		Int("settled", report.Settled).
		Int("failed", report.Failed).
		Msg("Manual settlement run")
	respondJSON(w, http.StatusOK, report)
}

// Sweep times out overdue turns.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.ExpireStale(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"expired": n})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequests.WithLabelValues("ops", r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPLatency.WithLabelValues("ops", r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDay), errors.Is(err, service.ErrInvalidKind):
		respondError(w, http.StatusBadRequest, service.Code(err))
	case errors.Is(err, service.ErrSettlementInProgress):
		respondError(w, http.StatusConflict, service.Code(err))
	default:
		log.Error().Err(err).Msg("Operator request failed")
		respondError(w, http.StatusInternalServerError, service.CodeInternal)
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
