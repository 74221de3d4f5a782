package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nextslot/internal/models"
	"nextslot/internal/notify"
)

// AddPushToken registers a device token for a recipient. Re-registering
// an existing token is a no-op.
func (db *DB) AddPushToken(ctx context.Context, ownerID, token string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO push_tokens (owner_id, token) VALUES (?, ?)`,
		ownerID, token)
	if err != nil {
		return fmt.Errorf("insert push token: %w", err)
	}
	return nil
}

// PushTokens returns the recipient's registered device tokens.
func (db *DB) PushTokens(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT token FROM push_tokens WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// RemovePushTokens prunes tokens the delivery provider reported invalid.
func (db *DB) RemovePushTokens(ctx context.Context, ownerID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tokens)), ",")
	args := make([]any, 0, len(tokens)+1)
	args = append(args, ownerID)
	for _, t := range tokens {
		args = append(args, t)
	}

	_, err := db.ExecContext(ctx,
		`DELETE FROM push_tokens WHERE owner_id = ? AND token IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete push tokens: %w", err)
	}
	return nil
}

// SetPreferences writes a recipient's notification preference record.
func (db *DB) SetPreferences(ctx context.Context, p *models.NotificationPreferences) error {
	events, err := json.Marshal(p.Events)
	if err != nil {
		return fmt.Errorf("marshal preference events: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO notification_preferences (owner_id, push_enabled, events)
		 VALUES (?, ?, ?)
		 ON CONFLICT (owner_id)
		 DO UPDATE SET push_enabled = excluded.push_enabled, events = excluded.events`,
		p.OwnerID, p.PushEnabled, string(events))
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// GetPreferences returns the recipient's preference record, or nil when
// none exists. Absence means everything enabled.
func (db *DB) GetPreferences(ctx context.Context, ownerID string) (*models.NotificationPreferences, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT owner_id, push_enabled, events FROM notification_preferences WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var p models.NotificationPreferences
	var events string
	if err := rows.Scan(&p.OwnerID, &p.PushEnabled, &events); err != nil {
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(events), &p.Events); err != nil {
		return nil, fmt.Errorf("unmarshal preference events: %w", err)
	}
	return &p, nil
}

// LogDelivery persists one delivery attempt for the ops report.
func (db *DB) LogDelivery(ctx context.Context, rec notify.DeliveryRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notification_log
		 (id, appointment_id, recipient_kind, recipient_id, event, channel, status, detail, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AppointmentID, rec.RecipientKind, rec.RecipientID,
		rec.Event, rec.Channel, rec.Status, rec.Detail, rec.SentAt)
	if err != nil {
		return fmt.Errorf("insert delivery record: %w", err)
	}
	return nil
}

// ListDeliveries returns delivery records at or after the given moment,
// oldest first.
func (db *DB) ListDeliveries(ctx context.Context, since time.Time) ([]notify.DeliveryRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, appointment_id, recipient_kind, recipient_id, event, channel, status, detail, sent_at
		 FROM notification_log WHERE sent_at >= ? ORDER BY sent_at`, since)
	if err != nil {
		return nil, fmt.Errorf("query delivery log: %w", err)
	}
	defer rows.Close()

	var records []notify.DeliveryRecord
	for rows.Next() {
		var rec notify.DeliveryRecord
		if err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.RecipientKind, &rec.RecipientID,
			&rec.Event, &rec.Channel, &rec.Status, &rec.Detail, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
