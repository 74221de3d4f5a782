package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nextslot/internal/models"
)

// CreateAppointment inserts an appointment.
func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	ledger, err := json.Marshal(a.RemindersSent)
	if err != nil {
		return fmt.Errorf("marshal reminder ledger: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO appointments
		 (id, provider_id, member_id, client_id, status, start_at, end_at,
		  client_name, client_email, client_phone, cancelled_by, reminders_sent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProviderID, a.MemberID, nullable(a.ClientID), string(a.Status), a.Start, a.End,
		a.ClientContact.Name, a.ClientContact.Email, a.ClientContact.Phone,
		nullable(string(a.CancelledBy)), string(ledger), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// GetAppointment returns an appointment by id, or ErrNotFound.
func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, selectAppointment+` WHERE id = ?`, id)
	return scanAppointment(row)
}

// UpdateAppointment overwrites the mutable fields of an appointment. The
// reminder ledger is deliberately not among them: it is owned exclusively
// by AppendReminderSent, so a write from a stale in-memory copy can never
// erase a concurrently appended entry.
func (db *DB) UpdateAppointment(ctx context.Context, a *models.Appointment) error {
	a.UpdatedAt = time.Now()

	res, err := db.ExecContext(ctx,
		`UPDATE appointments SET
			status = ?, start_at = ?, end_at = ?,
			client_name = ?, client_email = ?, client_phone = ?,
			cancelled_by = ?, updated_at = ?
		 WHERE id = ?`,
		string(a.Status), a.Start, a.End,
		a.ClientContact.Name, a.ClientContact.Email, a.ClientContact.Phone,
		nullable(string(a.CancelledBy)), a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return requireRow(res)
}

// DeleteAppointment removes an appointment.
func (db *DB) DeleteAppointment(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return requireRow(res)
}

// UpcomingAppointments returns the member's occupying appointments
// (pending or confirmed) starting at or after the given moment.
func (db *DB) UpcomingAppointments(ctx context.Context, memberID string, from time.Time) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx,
		selectAppointment+` WHERE member_id = ? AND start_at >= ? AND status IN ('pending', 'confirmed')
		 ORDER BY start_at`, memberID, from)
	if err != nil {
		return nil, fmt.Errorf("query upcoming appointments: %w", err)
	}
	return collectAppointments(rows)
}

// ConfirmedAppointmentsBetween returns confirmed appointments with start
// inside (from, to].
func (db *DB) ConfirmedAppointmentsBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx,
		selectAppointment+` WHERE status = 'confirmed' AND start_at > ? AND start_at <= ?
		 ORDER BY start_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query confirmed appointments: %w", err)
	}
	return collectAppointments(rows)
}

// AppendReminderSent appends a timestamp to the appointment's reminder
// ledger. The ledger is append-only; nothing ever removes entries.
func (db *DB) AppendReminderSent(ctx context.Context, appointmentID string, at time.Time) error {
	appt, err := db.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}

	ledger, err := json.Marshal(append(appt.RemindersSent, at))
	if err != nil {
		return fmt.Errorf("marshal reminder ledger: %w", err)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE appointments SET reminders_sent = ?, updated_at = ? WHERE id = ?`,
		string(ledger), time.Now(), appointmentID)
	if err != nil {
		return fmt.Errorf("update reminder ledger: %w", err)
	}
	return requireRow(res)
}

const selectAppointment = `SELECT id, provider_id, member_id, client_id, status, start_at, end_at,
	client_name, client_email, client_phone, cancelled_by, reminders_sent, created_at, updated_at
	FROM appointments`

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var clientID, cancelledBy sql.NullString
	var ledger string

	err := row.Scan(&a.ID, &a.ProviderID, &a.MemberID, &clientID, &a.Status, &a.Start, &a.End,
		&a.ClientContact.Name, &a.ClientContact.Email, &a.ClientContact.Phone,
		&cancelledBy, &ledger, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}

	a.ClientID = clientID.String
	a.CancelledBy = models.CancelledBy(cancelledBy.String)
	if err := json.Unmarshal([]byte(ledger), &a.RemindersSent); err != nil {
		return nil, fmt.Errorf("unmarshal reminder ledger: %w", err)
	}
	return &a, nil
}

func collectAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, *a)
	}
	return appointments, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
