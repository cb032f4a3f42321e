package domain

import "time"

// AlertKind classifies an alert history entry.
type AlertKind string

const (
	AlertThresholdOverdue AlertKind = "threshold-overdue"
	AlertOrderAnomaly     AlertKind = "order-anomaly"
	AlertResolved         AlertKind = "resolved"
)

// AlertRecord is an immutable entry in the alert history. The id is assigned
// on append and defines recency order.
type AlertRecord struct {
	ID        int64     `json:"id"`
	Kind      AlertKind `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// Optional back-references for correlation and deep-linking.
	OperationID *int64 `json:"operation_id,omitempty"`
	MovementID  *int64 `json:"movement_id,omitempty"`
}
