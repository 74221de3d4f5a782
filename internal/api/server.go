package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nextslot/internal/audit"
	"nextslot/internal/availability"
	"nextslot/internal/database"
	"nextslot/internal/reminders"
	"nextslot/internal/service"
)

// HTTPServer exposes the appointment write path and the operational
// surface: manual triggers for the sweepers, the delivery-log export,
// and the public next-available read.
type HTTPServer struct {
	db           *database.DB
	appointments *service.AppointmentService
	inv          *availability.Invalidator
	sweeper      *availability.Sweeper
	reminder     *reminders.Sweeper
	logger       *zerolog.Logger

	rdb      *redis.Client
	cacheTTL time.Duration
}

// NewHTTPServer builds the server. Redis is optional; when nil the public
// read goes straight to the store.
func NewHTTPServer(
	db *database.DB,
	appointments *service.AppointmentService,
	inv *availability.Invalidator,
	sweeper *availability.Sweeper,
	reminder *reminders.Sweeper,
	logger *zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		db:           db,
		appointments: appointments,
		inv:          inv,
		sweeper:      sweeper,
		reminder:     reminder,
		logger:       logger,
	}
}

// UseRedisCache configures optional read caching for the public endpoint.
func (s *HTTPServer) UseRedisCache(rdb *redis.Client, ttl time.Duration) {
	s.rdb = rdb
	s.cacheTTL = ttl
}

// Handler returns the route table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/providers/{id}/next-available", s.handleNextAvailable)
	mux.HandleFunc("POST /api/appointments", s.handleCreateAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/confirm", s.handleConfirmAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/cancel", s.handleCancelAppointment)
	mux.HandleFunc("POST /api/appointments/{id}/reschedule", s.handleRescheduleAppointment)
	mux.HandleFunc("DELETE /api/appointments/{id}", s.handleDeleteAppointment)
	mux.HandleFunc("POST /admin/recompute", s.handleRecompute)
	mux.HandleFunc("POST /admin/reminders/run", s.handleReminderRun)
	mux.HandleFunc("GET /admin/report", s.handleReport)
	return mux
}

// NextAvailableResponse is the public availability read.
type NextAvailableResponse struct {
	ProviderID    string  `json:"provider_id"`
	NextAvailable *string `json:"next_available"` // YYYY-MM-DD or null
	CheckedAt     *string `json:"checked_at,omitempty"`
}

// handleNextAvailable returns the cached next-available date for a
// published provider. The cache field is a memoized view: this endpoint
// never recomputes.
func (s *HTTPServer) handleNextAvailable(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")
	cacheKey := "next_available:" + providerID

	var resp NextAvailableResponse
	if s.readCache(r.Context(), cacheKey, &resp) {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	provider, err := s.db.GetProvider(r.Context(), providerID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("provider_id", providerID).Msg("provider read failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !provider.IsPublished {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}

	resp.ProviderID = provider.ID
	if provider.NextAvailableSlot != nil {
		d := provider.NextAvailableSlot.Format("2006-01-02")
		resp.NextAvailable = &d
	}
	if provider.NextAvailableCheck != nil {
		c := provider.NextAvailableCheck.Format(time.RFC3339)
		resp.CheckedAt = &c
	}

	s.writeCache(r.Context(), cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

// handleRecompute forces recomputation for one provider (?provider_id=)
// or a full synchronous sweep pass when no id is given.
func (s *HTTPServer) handleRecompute(w http.ResponseWriter, r *http.Request) {
	providerID := r.URL.Query().Get("provider_id")

	if providerID != "" {
		if err := s.inv.Recompute(r.Context(), providerID); err != nil {
			s.logger.Error().Err(err).Str("provider_id", providerID).Msg("manual recompute failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.invalidateCache(r.Context(), "next_available:"+providerID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider_id": providerID})
		return
	}

	stats, err := s.sweeper.Run(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual sweep failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize())
}

// handleReminderRun forces a synchronous reminder pass.
func (s *HTTPServer) handleReminderRun(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reminder.Run(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual reminder run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize())
}

// handleReport streams the delivery log for the last N days (?days=,
// default 31) as an XLSX workbook.
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	days := 31
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	since := time.Now().AddDate(0, 0, -days)
	filename := fmt.Sprintf("deliveries_%s.xlsx", time.Now().Format("2006-01-02"))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if err := audit.ExportDeliveries(r.Context(), s.db, since, w); err != nil {
		s.logger.Error().Err(err).Msg("delivery export failed")
	}
}

func (s *HTTPServer) readCache(ctx context.Context, key string, out any) bool {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return false
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (s *HTTPServer) writeCache(ctx context.Context, key string, val any) {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (s *HTTPServer) invalidateCache(ctx context.Context, key string) {
	if s.rdb == nil {
		return
	}
	_ = s.rdb.Del(ctx, key).Err()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
