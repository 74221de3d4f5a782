package availability

import (
	"context"
	"fmt"
	"time"

	"nextslot/internal/models"
)

const (
	// DefaultHorizonDays bounds how far ahead the calculator scans.
	DefaultHorizonDays = 60

	// MinServiceMinutes is the smallest bookable service length. A day
	// qualifies when at least this many unbooked minutes remain.
	MinServiceMinutes = 30

	// lastBookableHour: at or past this local hour the scan starts
	// tomorrow. Too late to book today.
	lastBookableHour = 18
)

// Store is the read/write surface the availability engine needs from the
// document store. Reads are scoped to one member; the only writes are the
// provider's cached slot fields.
type Store interface {
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	ListPublishedProviders(ctx context.Context) ([]models.Provider, error)
	DefaultMember(ctx context.Context, providerID string) (*models.Member, error)
	WeeklySchedule(ctx context.Context, memberID string) ([]models.WeeklyAvailability, error)
	FutureExceptions(ctx context.Context, memberID string, from time.Time) ([]models.ExceptionRange, error)
	UpcomingAppointments(ctx context.Context, memberID string, from time.Time) ([]models.Appointment, error)
	SetNextAvailable(ctx context.Context, providerID string, slot *time.Time, checkedAt time.Time) error
}

// NextAvailableDate scans up to horizonDays ahead of now and returns the
// first calendar date with enough remaining capacity, or nil when no day
// qualifies. Deterministic given its inputs; performs no I/O.
//
// The capacity check sums remaining minutes across the whole day rather
// than verifying a contiguous free interval, so a day fragmented into
// short gaps can be reported available even when no single slot fits.
// That matches the shipped product behavior and is kept on purpose.
func NextAvailableDate(
	schedule []models.WeeklyAvailability,
	exceptions []models.ExceptionRange,
	appointments []models.Appointment,
	now time.Time,
	horizonDays int,
) *time.Time {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	byWeekday := make(map[int]models.WeeklyAvailability, len(schedule))
	for _, wa := range schedule {
		byWeekday[wa.DayOfWeek] = wa
	}

	start := models.DateOnly(now)
	if now.Hour() >= lastBookableHour {
		start = start.AddDate(0, 0, 1)
	}

	for offset := 0; offset <= horizonDays; offset++ {
		day := start.AddDate(0, 0, offset)

		wa, ok := byWeekday[int(day.Weekday())]
		if !ok || !wa.IsOpen || len(wa.Windows) == 0 {
			continue
		}

		if coveredByException(exceptions, day) {
			continue
		}

		capacityMinutes := wa.OpenMinutes()
		if capacityMinutes == 0 {
			continue
		}

		bookedMinutes := 0
		for _, appt := range appointments {
			if !appt.Status.IsOccupying() {
				continue
			}
			if appt.StartsOn(day) {
				bookedMinutes += appt.DurationMinutes()
			}
		}

		if capacityMinutes-bookedMinutes >= MinServiceMinutes {
			d := day
			return &d
		}
	}

	return nil
}

func coveredByException(exceptions []models.ExceptionRange, day time.Time) bool {
	for _, e := range exceptions {
		if e.Covers(day) {
			return true
		}
	}
	return false
}

// Calculator loads a member's schedule state and runs the pure scan.
type Calculator struct {
	store       Store
	horizonDays int
}

// NewCalculator builds a calculator over the given store.
func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store, horizonDays: DefaultHorizonDays}
}

// NextAvailable computes the next eligible date for the member, or nil
// when the member has no qualifying day inside the horizon. A member with
// no configured schedule simply has no next date; that is not an error.
func (c *Calculator) NextAvailable(ctx context.Context, memberID string, now time.Time) (*time.Time, error) {
	schedule, err := c.store.WeeklySchedule(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	if len(schedule) == 0 {
		return nil, nil
	}

	exceptions, err := c.store.FutureExceptions(ctx, memberID, now)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}

	appointments, err := c.store.UpcomingAppointments(ctx, memberID, now)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	return NextAvailableDate(schedule, exceptions, appointments, now, c.horizonDays), nil
}
