package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nextslot/internal/models"
)

// CreateProvider inserts a provider.
func (db *DB) CreateProvider(ctx context.Context, p *models.Provider) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := db.ExecContext(ctx,
		`INSERT INTO providers (id, name, is_published, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.IsPublished, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

// GetProvider returns a provider by id, or ErrNotFound.
func (db *DB) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, is_published, next_available_slot, next_available_check, created_at, updated_at
		 FROM providers WHERE id = ?`, id)
	return scanProvider(row)
}

// ListPublishedProviders returns every published provider.
func (db *DB) ListPublishedProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, is_published, next_available_slot, next_available_check, created_at, updated_at
		 FROM providers WHERE is_published = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// SetPublished flips the published flag.
func (db *DB) SetPublished(ctx context.Context, id string, published bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE providers SET is_published = ?, updated_at = ? WHERE id = ?`,
		published, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	return requireRow(res)
}

// SetNextAvailable overwrites the cached next-available slot and its
// check timestamp. A nil slot clears the cache (no eligible date).
func (db *DB) SetNextAvailable(ctx context.Context, providerID string, slot *time.Time, checkedAt time.Time) error {
	var slotVal any
	if slot != nil {
		slotVal = *slot
	}
	res, err := db.ExecContext(ctx,
		`UPDATE providers SET next_available_slot = ?, next_available_check = ?, updated_at = ? WHERE id = ?`,
		slotVal, checkedAt, time.Now(), providerID)
	if err != nil {
		return fmt.Errorf("update cached slot: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	var slot, check sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.IsPublished, &slot, &check, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	if slot.Valid {
		p.NextAvailableSlot = &slot.Time
	}
	if check.Valid {
		p.NextAvailableCheck = &check.Time
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
