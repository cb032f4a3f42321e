// Package domain defines the core types shared by the store, the monitoring
// engine and the serving layer.
package domain

import "time"

// MovementState is the lifecycle state of a movement. The transition is
// one-way: open -> closed, set exactly once.
type MovementState string

const (
	MovementOpen   MovementState = "open"
	MovementClosed MovementState = "closed"
)

// OperationKind classifies a shipping operation. Anything that is not
// "import" (including unknown or missing operations) falls back to the
// export threshold.
type OperationKind string

const (
	OperationImport OperationKind = "import"
	OperationExport OperationKind = "export"
)

// Movement is one vehicle+container transit between two checkpoints.
// Times are naive civil times in the service's configured timezone.
type Movement struct {
	ID          int64
	OperationID int64
	VehicleID   int64
	ContainerNo string

	StartTime time.Time
	EndTime   *time.Time // nil while open
	State     MovementState

	// Alert bookkeeping owned by the monitor.
	LastNotifiedAt  *time.Time // nil until the first escalation fires
	AnomalyReported bool
}

// Open reports whether the movement is still in transit.
func (m *Movement) Open() bool { return m.State == MovementOpen }

// Operation groups movements under one shipping event.
type Operation struct {
	ID   int64
	Kind OperationKind
}

// Vehicle is the tractor unit identified by its plate.
type Vehicle struct {
	ID    int64
	Plate string
	Owner string // empty when unregistered
}
