package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// IsOccupying reports whether the status counts against availability
// and is eligible for reminders. Cancelled and completed are terminal.
func (s AppointmentStatus) IsOccupying() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CancelledBy identifies which side cancelled an appointment.
type CancelledBy string

const (
	CancelledByClient   CancelledBy = "client"
	CancelledByProvider CancelledBy = "provider"
)

// Provider is a service-business tenant.
type Provider struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	IsPublished        bool       `json:"is_published"`
	NextAvailableSlot  *time.Time `json:"next_available_slot,omitempty"`
	NextAvailableCheck *time.Time `json:"next_available_check,omitempty"` // when the cached value was last written
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Member is a bookable staff resource under a provider.
// Exactly one default member per provider is used when no staff selection exists.
type Member struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	IsDefault  bool   `json:"is_default"`
}

// TimeWindow is an open interval within a day, "HH:MM" inclusive start,
// exclusive end.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Minutes returns the window length in minutes, or an error when either
// bound is malformed.
func (w TimeWindow) Minutes() (int, error) {
	start, err := parseMinuteOfDay(w.Start)
	if err != nil {
		return 0, fmt.Errorf("parse window start: %w", err)
	}
	end, err := parseMinuteOfDay(w.End)
	if err != nil {
		return 0, fmt.Errorf("parse window end: %w", err)
	}
	if end < start {
		return 0, fmt.Errorf("window end %s before start %s", w.End, w.Start)
	}
	return end - start, nil
}

func parseMinuteOfDay(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %s", s)
	}
	return hour*60 + minute, nil
}

// WeeklyAvailability is one record per (member, weekday 0-6, Sunday=0).
// If IsOpen is false or Windows is empty the member is unavailable all day.
type WeeklyAvailability struct {
	MemberID  string       `json:"member_id"`
	DayOfWeek int          `json:"day_of_week"`
	IsOpen    bool         `json:"is_open"`
	Windows   []TimeWindow `json:"windows"`
}

// OpenMinutes returns the total open capacity for the day in minutes.
// Malformed windows contribute nothing.
func (wa WeeklyAvailability) OpenMinutes() int {
	if !wa.IsOpen {
		return 0
	}
	total := 0
	for _, w := range wa.Windows {
		m, err := w.Minutes()
		if err != nil {
			continue
		}
		total += m
	}
	return total
}

// ExceptionRange is a dated blackout override for a member (vacation,
// holiday). Only all-day ranges participate in day skipping; partial-day
// exceptions are not consulted by the availability calculator.
type ExceptionRange struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsAllDay  bool      `json:"is_all_day"`
}

// Covers reports whether the range blacks out the whole given calendar day.
func (e ExceptionRange) Covers(day time.Time) bool {
	if !e.IsAllDay {
		return false
	}
	d := DateOnly(day)
	return !d.Before(DateOnly(e.StartDate)) && !d.After(DateOnly(e.EndDate))
}

// ClientContact is the contact info captured at booking time.
type ClientContact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Appointment belongs to exactly one provider and member.
type Appointment struct {
	ID            string            `json:"id"`
	ProviderID    string            `json:"provider_id"`
	MemberID      string            `json:"member_id"`
	ClientID      string            `json:"client_id,omitempty"`
	Status        AppointmentStatus `json:"status"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	ClientContact ClientContact     `json:"client_contact"`
	CancelledBy   CancelledBy       `json:"cancelled_by,omitempty"`
	RemindersSent []time.Time       `json:"reminders_sent,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// DurationMinutes returns the booked length in whole minutes.
func (a Appointment) DurationMinutes() int {
	if a.End.Before(a.Start) {
		return 0
	}
	return int(a.End.Sub(a.Start) / time.Minute)
}

// ReminderSent reports whether any reminder was ever sent. At most one
// reminder is sent per appointment; a non-empty ledger excludes it from
// all future reminder passes.
func (a Appointment) ReminderSent() bool {
	return len(a.RemindersSent) > 0
}

// StartsOn reports whether the appointment starts on the given calendar day.
func (a Appointment) StartsOn(day time.Time) bool {
	y1, m1, d1 := a.Start.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// NotificationEvent is a per-event-type preference key.
type NotificationEvent string

const (
	EventNewBooking          NotificationEvent = "new_booking"
	EventConfirmed           NotificationEvent = "confirmed"
	EventCancelledByClient   NotificationEvent = "cancelled_by_client"
	EventCancelledByProvider NotificationEvent = "cancelled_by_provider"
	EventRescheduled         NotificationEvent = "rescheduled"
	EventReminder            NotificationEvent = "reminder"
)

// NotificationPreferences is the per-recipient opt-out record. Absence of
// a record means everything enabled.
type NotificationPreferences struct {
	OwnerID     string                     `json:"owner_id"`
	PushEnabled bool                       `json:"push_enabled"`
	Events      map[NotificationEvent]bool `json:"events,omitempty"`
}

// EventEnabled reports whether the given event type passes this record.
// A missing per-event entry defaults to enabled; the master toggle wins.
func (p NotificationPreferences) EventEnabled(ev NotificationEvent) bool {
	if !p.PushEnabled {
		return false
	}
	enabled, ok := p.Events[ev]
	if !ok {
		return true
	}
	return enabled
}

// DateOnly truncates a timestamp to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
