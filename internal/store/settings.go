package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/terminalops/movewatch/internal/domain"
)

// ActiveThresholds returns the most recently saved escalation tuple.
// Returns ErrNotFound when no tuple has been saved yet; callers fall back to
// domain.DefaultThresholds rather than skipping work.
func (s *Store) ActiveThresholds(ctx context.Context) (domain.Thresholds, error) {
	var t domain.Thresholds
	err := s.db.QueryRowContext(ctx,
		`SELECT id, import_minutes, export_minutes, renotify_minutes, updated_at, updated_by
		 FROM thresholds ORDER BY id DESC LIMIT 1`).
		Scan(&t.ID, &t.ImportMinutes, &t.ExportMinutes, &t.RenotifyMinutes, &t.UpdatedAt, &t.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Thresholds{}, ErrNotFound
	}
	if err != nil {
		return domain.Thresholds{}, fmt.Errorf("active thresholds: %w", err)
	}
	return t, nil
}

// SaveThresholds appends a new tuple; older tuples are kept for audit and
// never mutated. The new row becomes the active configuration.
func (s *Store) SaveThresholds(ctx context.Context, t domain.Thresholds, at time.Time) (domain.Thresholds, error) {
	if t.ImportMinutes < 1 || t.ExportMinutes < 1 || t.RenotifyMinutes < 1 {
		return domain.Thresholds{}, fmt.Errorf("save thresholds: minutes must be >= 1")
	}
	t.UpdatedAt = at
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO thresholds (import_minutes, export_minutes, renotify_minutes, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		t.ImportMinutes, t.ExportMinutes, t.RenotifyMinutes, t.UpdatedAt, t.UpdatedBy).Scan(&t.ID)
	if err != nil {
		return domain.Thresholds{}, fmt.Errorf("save thresholds: %w", err)
	}
	return t, nil
}
