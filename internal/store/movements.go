package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/terminalops/movewatch/internal/domain"
)

// CreateVehicle registers a vehicle plate. Owner may be empty.
func (s *Store) CreateVehicle(ctx context.Context, plate, owner string) (domain.Vehicle, error) {
	v := domain.Vehicle{Plate: plate, Owner: owner}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO vehicles (plate, owner) VALUES ($1, $2) RETURNING id`,
		plate, owner).Scan(&v.ID)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("create vehicle: %w", err)
	}
	return v, nil
}

// VehicleByID looks up a vehicle for alert message composition.
func (s *Store) VehicleByID(ctx context.Context, id int64) (domain.Vehicle, error) {
	var v domain.Vehicle
	err := s.db.QueryRowContext(ctx,
		`SELECT id, plate, owner FROM vehicles WHERE id = $1`, id).
		Scan(&v.ID, &v.Plate, &v.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vehicle{}, ErrNotFound
	}
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("vehicle by id: %w", err)
	}
	return v, nil
}

// CreateOperation registers a shipping operation of the given kind.
func (s *Store) CreateOperation(ctx context.Context, kind domain.OperationKind) (domain.Operation, error) {
	op := domain.Operation{Kind: kind}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO operations (kind) VALUES ($1) RETURNING id`, string(kind)).Scan(&op.ID)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("create operation: %w", err)
	}
	return op, nil
}

// OperationKind resolves the operation type used for threshold selection.
func (s *Store) OperationKind(ctx context.Context, id int64) (domain.OperationKind, error) {
	var kind string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind FROM operations WHERE id = $1`, id).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("operation kind: %w", err)
	}
	return domain.OperationKind(kind), nil
}

// CreateMovement opens a movement at the given departure time.
func (s *Store) CreateMovement(ctx context.Context, operationID, vehicleID int64, containerNo string, at time.Time) (domain.Movement, error) {
	m := domain.Movement{
		OperationID: operationID,
		VehicleID:   vehicleID,
		ContainerNo: containerNo,
		StartTime:   at,
		State:       domain.MovementOpen,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO movements (operation_id, vehicle_id, container_no, start_time, state)
		 VALUES ($1, $2, $3, $4, 'open') RETURNING id`,
		operationID, vehicleID, containerNo, at).Scan(&m.ID)
	if err != nil {
		return domain.Movement{}, fmt.Errorf("create movement: %w", err)
	}
	return m, nil
}

// CloseMovement records the arrival and closes the movement. Closing an
// already closed movement is a no-op; the first close wins.
func (s *Store) CloseMovement(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET end_time = $1, state = 'closed' WHERE id = $2 AND state = 'open'`,
		at, id)
	if err != nil {
		return false, fmt.Errorf("close movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close movement: %w", err)
	}
	return n > 0, nil
}

// MovementByID fetches a single movement.
func (s *Store) MovementByID(ctx context.Context, id int64) (domain.Movement, error) {
	row := s.db.QueryRowContext(ctx, movementColumns+` WHERE id = $1`, id)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Movement{}, ErrNotFound
	}
	if err != nil {
		return domain.Movement{}, fmt.Errorf("movement by id: %w", err)
	}
	return m, nil
}

// OpenMovements returns all open movements ordered by start time then id.
func (s *Store) OpenMovements(ctx context.Context) ([]domain.Movement, error) {
	rows, err := s.db.QueryContext(ctx,
		movementColumns+` WHERE state = 'open' ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("open movements: %w", err)
	}
	return collectMovements(rows)
}

// RecentMovements returns the bounded working set for a monitor pass: every
// open movement plus movements closed strictly after closedSince, ordered by
// start time then id. The exclusive lower bound keeps a closure stamped at
// exactly one pass's time out of the next pass's window.
func (s *Store) RecentMovements(ctx context.Context, closedSince time.Time) ([]domain.Movement, error) {
	rows, err := s.db.QueryContext(ctx,
		movementColumns+` WHERE state = 'open' OR end_time > $1 ORDER BY start_time, id`,
		closedSince)
	if err != nil {
		return nil, fmt.Errorf("recent movements: %w", err)
	}
	return collectMovements(rows)
}

// MarkNotified stamps the escalation bookkeeping. The state guard makes the
// read-then-write safe against a concurrent close: if the movement closed
// since evaluation, nothing is written and false is returned.
func (s *Store) MarkNotified(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET last_notified_at = $1 WHERE id = $2 AND state = 'open'`,
		at, id)
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	return n > 0, nil
}

// MarkAnomalyReported sets the once-only order-anomaly flag, guarded the same
// way as MarkNotified.
func (s *Store) MarkAnomalyReported(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE movements SET anomaly_reported = TRUE
		 WHERE id = $1 AND state = 'open' AND anomaly_reported = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("mark anomaly reported: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark anomaly reported: %w", err)
	}
	return n > 0, nil
}

const movementColumns = `SELECT id, operation_id, vehicle_id, container_no,
	start_time, end_time, state, last_notified_at, anomaly_reported
	FROM movements`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (domain.Movement, error) {
	var (
		m        domain.Movement
		state    string
		endTime  sql.NullTime
		notified sql.NullTime
	)
	err := row.Scan(&m.ID, &m.OperationID, &m.VehicleID, &m.ContainerNo,
		&m.StartTime, &endTime, &state, &notified, &m.AnomalyReported)
	if err != nil {
		return domain.Movement{}, err
	}
	m.State = domain.MovementState(state)
	if endTime.Valid {
		t := endTime.Time
		m.EndTime = &t
	}
	if notified.Valid {
		t := notified.Time
		m.LastNotifiedAt = &t
	}
	return m, nil
}

func collectMovements(rows *sql.Rows) ([]domain.Movement, error) {
	defer rows.Close()

	var out []domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
