// Package http exposes the service's operational surface: health, readiness,
// metrics, an immediate "check now" trigger, and the subscription edge used
// by the UI collaborator.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/aurora-alert-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// EvaluationTrigger runs an immediate evaluation pass. Implemented by
// engine.Scheduler.
type EvaluationTrigger interface {
	TriggerNow(ctx context.Context) error
}

// SubscriptionStore is the slice of the store the HTTP edge needs.
type SubscriptionStore interface {
	Upsert(ctx context.Context, contact, name string, lat, lon float64, label string, kpThreshold int) (int64, error)
	ListAll(ctx context.Context) ([]domain.Subscription, error)
	Delete(ctx context.Context, id int64) error
}

// Server exposes the ops and subscription HTTP endpoints.
type Server struct {
	httpServer *http.Server
	trigger    EvaluationTrigger
	subs       SubscriptionStore
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, readiness, metrics, check,
// and subscription routes.
func NewServer(addr string, ready ReadinessChecker, trigger EvaluationTrigger, subs SubscriptionStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 70 * time.Second, // must outlive a triggered evaluation pass
			IdleTimeout:  60 * time.Second,
		},
		trigger: trigger,
		subs:    subs,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /check", s.handleCheck)
	mux.HandleFunc("POST /subscriptions", s.handleUpsertSubscription)
	mux.HandleFunc("GET /subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("DELETE /subscriptions/{id}", s.handleDeleteSubscription)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleCheck runs one evaluation pass outside the regular cadence.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	if err := s.trigger.TriggerNow(ctx); err != nil {
		s.logger.Warn("triggered evaluation failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type subscriptionRequest struct {
	Contact       string  `json:"contact"`
	DisplayName   string  `json:"display_name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	LocationLabel string  `json:"location_label"`
	KpThreshold   int     `json:"kp_threshold"`
}

func (r subscriptionRequest) validate() error {
	if r.Contact == "" {
		return errors.New("contact is required")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return errors.New("latitude out of range")
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return errors.New("longitude out of range")
	}
	if _, err := domain.KpToIntensity(r.KpThreshold); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleUpsertSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := s.subs.Upsert(r.Context(), req.Contact, req.DisplayName, req.Latitude, req.Longitude, req.LocationLabel, req.KpThreshold)
	if err != nil {
		s.logger.Error("subscription upsert failed", "error", err, "contact", req.Contact)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

type subscriptionResponse struct {
	ID            int64      `json:"id"`
	Contact       string     `json:"contact"`
	DisplayName   string     `json:"display_name"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	LocationLabel string     `json:"location_label"`
	KpThreshold   int        `json:"kp_threshold"`
	LastAlertAt   *time.Time `json:"last_alert_at,omitempty"`
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subs.ListAll(r.Context())
	if err != nil {
		s.logger.Error("subscription list failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionResponse{
			ID:            sub.ID,
			Contact:       sub.Contact,
			DisplayName:   sub.DisplayName,
			Latitude:      sub.Lat,
			Longitude:     sub.Lon,
			LocationLabel: sub.LocationLabel,
			KpThreshold:   sub.KpThreshold,
			LastAlertAt:   sub.LastAlertAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
		return
	}

	if err := s.subs.Delete(r.Context(), id); err != nil {
		s.logger.Error("subscription delete failed", "error", err, "id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
