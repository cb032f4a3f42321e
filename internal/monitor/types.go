// Package monitor implements the movement monitoring engine: the escalation
// evaluator, the order-anomaly detector and the background loop that drives
// them and dispatches alerts.
package monitor

import (
	"context"
	"time"

	"github.com/terminalops/movewatch/internal/domain"
)

// Repository is the slice of the store the engine reads and writes.
type Repository interface {
	OpenMovements(ctx context.Context) ([]domain.Movement, error)
	RecentMovements(ctx context.Context, closedSince time.Time) ([]domain.Movement, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkAnomalyReported(ctx context.Context, id int64) (bool, error)
}

// Directory resolves reference data for alert composition.
type Directory interface {
	OperationKind(ctx context.Context, id int64) (domain.OperationKind, error)
	VehicleByID(ctx context.Context, id int64) (domain.Vehicle, error)
}

// History is the durable alert log.
type History interface {
	AppendAlert(ctx context.Context, rec *domain.AlertRecord) (int64, error)
}

// Settings provides the active escalation configuration.
type Settings interface {
	ActiveThresholds(ctx context.Context) (domain.Thresholds, error)
}

// Publisher receives every persisted alert, e.g. for a live dashboard feed.
type Publisher interface {
	Publish(rec domain.AlertRecord)
}

// Alert is one alert produced during a pass, before persistence assigns it
// an id.
type Alert struct {
	Kind        domain.AlertKind
	Title       string
	Body        string
	OperationID int64
	MovementID  int64
}

// Record converts the alert into a history record stamped at now.
func (a Alert) Record(now time.Time) *domain.AlertRecord {
	opID, movID := a.OperationID, a.MovementID
	return &domain.AlertRecord{
		Kind:        a.Kind,
		Title:       a.Title,
		Body:        a.Body,
		CreatedAt:   now,
		OperationID: &opID,
		MovementID:  &movID,
	}
}
