package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/terminalops/movewatch/internal/domain"
)

// AppendAlert appends a record to the alert history and assigns its id.
// Records are never mutated after this; the id defines recency order.
func (s *Store) AppendAlert(ctx context.Context, rec *domain.AlertRecord) (int64, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO alerts (kind, title, body, created_at, operation_id, movement_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(rec.Kind), rec.Title, rec.Body, rec.CreatedAt,
		rec.OperationID, rec.MovementID).Scan(&rec.ID)
	if err != nil {
		return 0, fmt.Errorf("append alert: %w", err)
	}
	return rec.ID, nil
}

// LatestAlert returns the most recently appended record, or ErrNotFound when
// the history is empty.
func (s *Store) LatestAlert(ctx context.Context) (domain.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx, alertColumns+` ORDER BY id DESC LIMIT 1`)
	rec, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AlertRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.AlertRecord{}, fmt.Errorf("latest alert: %w", err)
	}
	return rec, nil
}

// AlertByID fetches one record by id.
func (s *Store) AlertByID(ctx context.Context, id int64) (domain.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx, alertColumns+` WHERE id = $1`, id)
	rec, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AlertRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.AlertRecord{}, fmt.Errorf("alert by id: %w", err)
	}
	return rec, nil
}

// ListAlerts returns up to limit records, most recent first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]domain.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, alertColumns+` ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const alertColumns = `SELECT id, kind, title, body, created_at, operation_id, movement_id FROM alerts`

func scanAlert(row rowScanner) (domain.AlertRecord, error) {
	var (
		rec         domain.AlertRecord
		kind        string
		operationID sql.NullInt64
		movementID  sql.NullInt64
	)
	err := row.Scan(&rec.ID, &kind, &rec.Title, &rec.Body, &rec.CreatedAt,
		&operationID, &movementID)
	if err != nil {
		return domain.AlertRecord{}, err
	}
	rec.Kind = domain.AlertKind(kind)
	if operationID.Valid {
		v := operationID.Int64
		rec.OperationID = &v
	}
	if movementID.Valid {
		v := movementID.Int64
		rec.MovementID = &v
	}
	return rec, nil
}
