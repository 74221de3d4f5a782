package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nextslot/internal/database"
	"nextslot/internal/models"
)

// CreateAppointmentRequest is the body for POST /api/appointments.
type CreateAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	MemberID   string `json:"member_id"`
	ClientID   string `json:"client_id,omitempty"`
	Status     string `json:"status,omitempty"` // pending (default) or confirmed
	Start      string `json:"start"`            // RFC 3339
	End        string `json:"end"`              // RFC 3339
	Client     struct {
		Name  string `json:"name"`
		Email string `json:"email,omitempty"`
		Phone string `json:"phone,omitempty"`
	} `json:"client"`
}

func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProviderID == "" || req.MemberID == "" {
		writeError(w, http.StatusBadRequest, "provider_id and member_id are required")
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC 3339")
		return
	}

	appt := &models.Appointment{
		ProviderID: req.ProviderID,
		MemberID:   req.MemberID,
		ClientID:   req.ClientID,
		Status:     models.AppointmentStatus(req.Status),
		Start:      start,
		End:        end,
		ClientContact: models.ClientContact{
			Name:  req.Client.Name,
			Email: req.Client.Email,
			Phone: req.Client.Phone,
		},
	}

	if err := s.appointments.Create(r.Context(), appt); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *HTTPServer) handleConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	if err := s.appointments.Confirm(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// CancelAppointmentRequest is the body for POST /api/appointments/{id}/cancel.
type CancelAppointmentRequest struct {
	CancelledBy string `json:"cancelled_by"` // "client" or "provider"
}

func (s *HTTPServer) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	by := models.CancelledBy(req.CancelledBy)
	if by != models.CancelledByClient && by != models.CancelledByProvider {
		writeError(w, http.StatusBadRequest, "cancelled_by must be client or provider")
		return
	}

	if err := s.appointments.Cancel(r.Context(), r.PathValue("id"), by); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RescheduleRequest is the body for POST /api/appointments/{id}/reschedule.
type RescheduleRequest struct {
	Start string `json:"start"` // RFC 3339
	End   string `json:"end"`   // RFC 3339
}

func (s *HTTPServer) handleRescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC 3339")
		return
	}

	if err := s.appointments.Reschedule(r.Context(), r.PathValue("id"), start, end); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rescheduled"})
}

func (s *HTTPServer) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := s.appointments.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, database.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("appointment write failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
