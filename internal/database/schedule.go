package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nextslot/internal/models"
)

// CreateMember inserts a staff member.
func (db *DB) CreateMember(ctx context.Context, m *models.Member) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO members (id, provider_id, name, is_active, is_default)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProviderID, m.Name, m.IsActive, m.IsDefault)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// DefaultMember resolves the provider's default staff member: the one
// flagged default, or the first active one. Returns nil (no error) when
// the provider has no active member at all.
func (db *DB) DefaultMember(ctx context.Context, providerID string) (*models.Member, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, provider_id, name, is_active, is_default
		 FROM members WHERE provider_id = ? AND is_active = 1
		 ORDER BY is_default DESC, id ASC LIMIT 1`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var m models.Member
	if err := rows.Scan(&m.ID, &m.ProviderID, &m.Name, &m.IsActive, &m.IsDefault); err != nil {
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return &m, nil
}

// UpsertWeeklyAvailability writes one weekday record for a member.
func (db *DB) UpsertWeeklyAvailability(ctx context.Context, wa *models.WeeklyAvailability) error {
	windows, err := json.Marshal(wa.Windows)
	if err != nil {
		return fmt.Errorf("marshal windows: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO weekly_availability (member_id, day_of_week, is_open, windows)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (member_id, day_of_week)
		 DO UPDATE SET is_open = excluded.is_open, windows = excluded.windows`,
		wa.MemberID, wa.DayOfWeek, wa.IsOpen, string(windows))
	if err != nil {
		return fmt.Errorf("upsert weekly availability: %w", err)
	}
	return nil
}

// WeeklySchedule returns the member's weekday records. A member with no
// configured schedule returns an empty slice.
func (db *DB) WeeklySchedule(ctx context.Context, memberID string) ([]models.WeeklyAvailability, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT member_id, day_of_week, is_open, windows
		 FROM weekly_availability WHERE member_id = ? ORDER BY day_of_week`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query weekly availability: %w", err)
	}
	defer rows.Close()

	var schedule []models.WeeklyAvailability
	for rows.Next() {
		var wa models.WeeklyAvailability
		var windows string
		if err := rows.Scan(&wa.MemberID, &wa.DayOfWeek, &wa.IsOpen, &windows); err != nil {
			return nil, fmt.Errorf("scan weekly availability: %w", err)
		}
		if err := json.Unmarshal([]byte(windows), &wa.Windows); err != nil {
			return nil, fmt.Errorf("unmarshal windows: %w", err)
		}
		schedule = append(schedule, wa)
	}
	return schedule, rows.Err()
}

// CreateException inserts a blackout range.
func (db *DB) CreateException(ctx context.Context, e *models.ExceptionRange) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO exception_ranges (id, member_id, start_date, end_date, is_all_day)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.MemberID, e.StartDate, e.EndDate, e.IsAllDay)
	if err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}
	return nil
}

// FutureExceptions returns the member's exception ranges whose end is at
// or after the given moment.
func (db *DB) FutureExceptions(ctx context.Context, memberID string, from time.Time) ([]models.ExceptionRange, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, member_id, start_date, end_date, is_all_day
		 FROM exception_ranges WHERE member_id = ? AND end_date >= ?
		 ORDER BY start_date`, memberID, from)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()

	var exceptions []models.ExceptionRange
	for rows.Next() {
		var e models.ExceptionRange
		if err := rows.Scan(&e.ID, &e.MemberID, &e.StartDate, &e.EndDate, &e.IsAllDay); err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		exceptions = append(exceptions, e)
	}
	return exceptions, rows.Err()
}
