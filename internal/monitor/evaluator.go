package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terminalops/movewatch/internal/domain"
)

// ownerFallback is the display label for vehicles without a registered owner.
const ownerFallback = "unregistered"

// Evaluator decides, for each open movement, whether an overdue alert must
// fire this pass.
type Evaluator struct {
	dir Directory
}

// NewEvaluator creates an escalation evaluator.
func NewEvaluator(dir Directory) *Evaluator {
	return &Evaluator{dir: dir}
}

// Evaluate examines the open movements against now and the active thresholds
// and returns the alerts that must fire. It fires at most one alert per
// movement per pass: the first escalation when the threshold is breached and
// no notification has been sent, repeats only after the re-notify cooldown.
//
// Lookup failures degrade per movement (unknown operation uses the export
// threshold, unknown vehicle uses placeholder labels) and never abort the
// pass for the remaining movements.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time, cfg domain.Thresholds, open []domain.Movement) []Alert {
	var fired []Alert

	for _, m := range open {
		elapsed := now.Sub(m.StartTime)

		kind, err := e.dir.OperationKind(ctx, m.OperationID)
		if err != nil {
			// Orphaned or unreadable operation: degrade to the export
			// threshold instead of skipping the movement.
			log.Warn().Err(err).Int64("movement_id", m.ID).
				Int64("operation_id", m.OperationID).Msg("operation lookup failed, using export threshold")
			kind = domain.OperationExport
		}

		// A future start time (clock skew) yields a negative elapsed and
		// never fires.
		if elapsed < cfg.Overdue(kind) {
			continue
		}

		if m.LastNotifiedAt != nil && now.Sub(*m.LastNotifiedAt) < cfg.Renotify() {
			continue // cooldown still active
		}

		fired = append(fired, e.overdueAlert(ctx, now, cfg, kind, m, elapsed))
	}
	return fired
}

func (e *Evaluator) overdueAlert(ctx context.Context, now time.Time, cfg domain.Thresholds, kind domain.OperationKind, m domain.Movement, elapsed time.Duration) Alert {
	plate, owner := e.vehicleLabels(ctx, m.VehicleID)

	threshold := int(cfg.Overdue(kind) / time.Minute)
	body := fmt.Sprintf(
		"Operation: %s (threshold %d min)\nPlate: %s\nContainer: %s\nOwner: %s\nDeparted: %s\nIn transit: %d min",
		kind, threshold, plate, m.ContainerNo, owner,
		m.StartTime.Format("15:04 02/01/2006"), int(elapsed/time.Minute))

	return Alert{
		Kind:        domain.AlertThresholdOverdue,
		Title:       fmt.Sprintf("Movement overdue: %s", m.ContainerNo),
		Body:        body,
		OperationID: m.OperationID,
		MovementID:  m.ID,
	}
}

func (e *Evaluator) vehicleLabels(ctx context.Context, vehicleID int64) (plate, owner string) {
	v, err := e.dir.VehicleByID(ctx, vehicleID)
	if err != nil {
		log.Warn().Err(err).Int64("vehicle_id", vehicleID).Msg("vehicle lookup failed")
		return fmt.Sprintf("vehicle %d", vehicleID), ownerFallback
	}
	owner = v.Owner
	if owner == "" {
		owner = ownerFallback
	}
	return v.Plate, owner
}
