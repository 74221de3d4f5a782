package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nextslot/internal/database"
	"nextslot/internal/events"
	"nextslot/internal/models"
)

// Store is the appointment persistence the service writes through.
type Store interface {
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	UpdateAppointment(ctx context.Context, a *models.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
}

// AppointmentService owns the appointment write path. Every mutation is
// persisted first, then published exactly once; the cache invalidator and
// the notification router consume the same event in parallel.
type AppointmentService struct {
	store  Store
	bus    *events.Bus
	logger *zerolog.Logger
}

// NewAppointmentService builds the write service.
func NewAppointmentService(store Store, bus *events.Bus, logger *zerolog.Logger) *AppointmentService {
	return &AppointmentService{store: store, bus: bus, logger: logger}
}

// Create books a new appointment. Status defaults to pending; creating
// directly as confirmed is allowed (walk-in confirmation).
func (s *AppointmentService) Create(ctx context.Context, a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}
	if !a.Status.IsOccupying() {
		return fmt.Errorf("%w: cannot create appointment as %s", database.ErrInvalidTransition, a.Status)
	}
	if a.End.Before(a.Start) {
		return fmt.Errorf("appointment ends before it starts")
	}

	if err := s.store.CreateAppointment(ctx, a); err != nil {
		return err
	}

	s.bus.Publish(events.Created(*a))
	s.logger.Info().
		Str("appointment_id", a.ID).
		Str("provider_id", a.ProviderID).
		Str("status", string(a.Status)).
		Msg("appointment created")
	return nil
}

// Confirm moves a pending appointment to confirmed.
func (s *AppointmentService) Confirm(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(a *models.Appointment) error {
		if a.Status != models.StatusPending {
			return fmt.Errorf("%w: %s -> confirmed", database.ErrInvalidTransition, a.Status)
		}
		a.Status = models.StatusConfirmed
		return nil
	})
}

// Cancel moves a pending or confirmed appointment to cancelled, tagging
// which side cancelled.
func (s *AppointmentService) Cancel(ctx context.Context, id string, by models.CancelledBy) error {
	return s.transition(ctx, id, func(a *models.Appointment) error {
		if !a.Status.IsOccupying() {
			return fmt.Errorf("%w: %s -> cancelled", database.ErrInvalidTransition, a.Status)
		}
		a.Status = models.StatusCancelled
		a.CancelledBy = by
		return nil
	})
}

// Complete moves a confirmed appointment to completed.
func (s *AppointmentService) Complete(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(a *models.Appointment) error {
		if a.Status != models.StatusConfirmed {
			return fmt.Errorf("%w: %s -> completed", database.ErrInvalidTransition, a.Status)
		}
		a.Status = models.StatusCompleted
		return nil
	})
}

// Reschedule moves the appointment datetime in place while it remains
// pending or confirmed.
func (s *AppointmentService) Reschedule(ctx context.Context, id string, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("appointment ends before it starts")
	}
	return s.transition(ctx, id, func(a *models.Appointment) error {
		if !a.Status.IsOccupying() {
			return fmt.Errorf("%w: cannot reschedule %s appointment", database.ErrInvalidTransition, a.Status)
		}
		a.Start = start
		a.End = end
		return nil
	})
}

// UpdateContact edits the client contact info. Deliberately publishes the
// same Updated event as any other write; downstream consumers short-
// circuit on it because neither status nor start changed.
func (s *AppointmentService) UpdateContact(ctx context.Context, id string, contact models.ClientContact) error {
	return s.transition(ctx, id, func(a *models.Appointment) error {
		a.ClientContact = contact
		return nil
	})
}

// Delete removes an appointment entirely (administrative cleanup).
func (s *AppointmentService) Delete(ctx context.Context, id string) error {
	before, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAppointment(ctx, id); err != nil {
		return err
	}

	s.bus.Publish(events.Deleted(*before))
	s.logger.Info().Str("appointment_id", id).Msg("appointment deleted")
	return nil
}

func (s *AppointmentService) transition(ctx context.Context, id string, mutate func(*models.Appointment) error) error {
	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	before := *current

	if err := mutate(current); err != nil {
		return err
	}

	if err := s.store.UpdateAppointment(ctx, current); err != nil {
		return err
	}

	s.bus.Publish(events.Updated(before, *current))
	s.logger.Info().
		Str("appointment_id", id).
		Str("status", string(current.Status)).
		Msg("appointment updated")
	return nil
}
