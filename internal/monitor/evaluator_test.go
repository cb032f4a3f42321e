package monitor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalops/movewatch/internal/domain"
	"github.com/terminalops/movewatch/internal/monitor"
)

// fakeDirectory serves operation kinds and vehicles from maps; anything
// missing errors like an orphaned reference.
type fakeDirectory struct {
	kinds    map[int64]domain.OperationKind
	vehicles map[int64]domain.Vehicle
}

func (d *fakeDirectory) OperationKind(_ context.Context, id int64) (domain.OperationKind, error) {
	kind, ok := d.kinds[id]
	if !ok {
		return "", errors.New("operation not found")
	}
	return kind, nil
}

func (d *fakeDirectory) VehicleByID(_ context.Context, id int64) (domain.Vehicle, error) {
	v, ok := d.vehicles[id]
	if !ok {
		return domain.Vehicle{}, errors.New("vehicle not found")
	}
	return v, nil
}

var testThresholds = domain.Thresholds{
	ImportMinutes:   20,
	ExportMinutes:   30,
	RenotifyMinutes: 5,
}

func openMovement(id, opID int64, start time.Time, lastNotified *time.Time) domain.Movement {
	return domain.Movement{
		ID:             id,
		OperationID:    opID,
		VehicleID:      1,
		ContainerNo:    "MSKU0001",
		StartTime:      start,
		State:          domain.MovementOpen,
		LastNotifiedAt: lastNotified,
	}
}

func newTestEvaluator() *monitor.Evaluator {
	return monitor.NewEvaluator(&fakeDirectory{
		kinds: map[int64]domain.OperationKind{
			1: domain.OperationImport,
			2: domain.OperationExport,
			3: domain.OperationKind("transbordo"), // unknown kind
		},
		vehicles: map[int64]domain.Vehicle{
			1: {ID: 1, Plate: "CL-104", Owner: "Transportes Lara"},
		},
	})
}

func TestEvaluate_FiresOnceThresholdBreached(t *testing.T) {
	e := newTestEvaluator()
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	// Import threshold is 20 minutes: nothing at 19, one alert at 21.
	fired := e.Evaluate(context.Background(), start.Add(19*time.Minute), testThresholds,
		[]domain.Movement{openMovement(1, 1, start, nil)})
	assert.Empty(t, fired)

	fired = e.Evaluate(context.Background(), start.Add(21*time.Minute), testThresholds,
		[]domain.Movement{openMovement(1, 1, start, nil)})
	require.Len(t, fired, 1)
	assert.Equal(t, domain.AlertThresholdOverdue, fired[0].Kind)
	assert.Equal(t, int64(1), fired[0].MovementID)
	assert.Contains(t, fired[0].Body, "CL-104")
	assert.Contains(t, fired[0].Body, "MSKU0001")
	assert.Contains(t, fired[0].Body, "Transportes Lara")
	assert.Contains(t, fired[0].Body, "threshold 20 min")
}

func TestEvaluate_CooldownSuppressesRepeat(t *testing.T) {
	e := newTestEvaluator()
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	notified := start.Add(21 * time.Minute)

	// 3 minutes into the 5 minute cooldown: nothing.
	fired := e.Evaluate(context.Background(), start.Add(24*time.Minute), testThresholds,
		[]domain.Movement{openMovement(1, 1, start, &notified)})
	assert.Empty(t, fired)

	// Cooldown elapsed: repeat escalation.
	fired = e.Evaluate(context.Background(), start.Add(27*time.Minute), testThresholds,
		[]domain.Movement{openMovement(1, 1, start, &notified)})
	assert.Len(t, fired, 1)
}

func TestEvaluate_UnknownKindUsesExportThreshold(t *testing.T) {
	e := newTestEvaluator()
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		operationID int64
	}{
		{"unknown kind string", 3},
		{"missing operation", 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 25 min elapsed: over import (20) but under export (30) - no fire.
			fired := e.Evaluate(context.Background(), start.Add(25*time.Minute), testThresholds,
				[]domain.Movement{openMovement(1, tt.operationID, start, nil)})
			assert.Empty(t, fired)

			// 31 min elapsed: over the export threshold - fires.
			fired = e.Evaluate(context.Background(), start.Add(31*time.Minute), testThresholds,
				[]domain.Movement{openMovement(1, tt.operationID, start, nil)})
			require.Len(t, fired, 1)
			assert.Contains(t, fired[0].Body, "threshold 30 min")
		})
	}
}

func TestEvaluate_FutureStartNeverFires(t *testing.T) {
	e := newTestEvaluator()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	// Clock skew: start ahead of now yields a negative elapsed.
	fired := e.Evaluate(context.Background(), now, testThresholds,
		[]domain.Movement{openMovement(1, 1, now.Add(10*time.Minute), nil)})
	assert.Empty(t, fired)
}

func TestEvaluate_UnknownVehicleUsesFallbackLabels(t *testing.T) {
	e := newTestEvaluator()
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	m := openMovement(1, 1, start, nil)
	m.VehicleID = 77

	fired := e.Evaluate(context.Background(), start.Add(21*time.Minute), testThresholds,
		[]domain.Movement{m})
	require.Len(t, fired, 1)
	assert.Contains(t, fired[0].Body, "vehicle 77")
	assert.Contains(t, fired[0].Body, "unregistered")
}

func TestEvaluate_OneAlertPerMovementPerPass(t *testing.T) {
	e := newTestEvaluator()
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	movements := []domain.Movement{
		openMovement(1, 1, start, nil),
		openMovement(2, 2, start, nil),
	}
	// Both far past their thresholds: exactly one alert each.
	fired := e.Evaluate(context.Background(), start.Add(2*time.Hour), testThresholds, movements)
	require.Len(t, fired, 2)
	assert.NotEqual(t, fired[0].MovementID, fired[1].MovementID)
}

func TestEvaluate_CooldownBoundOverInterval(t *testing.T) {
	e := newTestEvaluator()
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	// Simulate passes every minute over 60 minutes for one continuously
	// open movement; fired alerts must never exceed floor(L/renotify)+1.
	var lastNotified *time.Time
	firedTotal := 0
	for minute := 0; minute <= 60; minute++ {
		now := start.Add(time.Duration(minute) * time.Minute)
		fired := e.Evaluate(context.Background(), now, testThresholds,
			[]domain.Movement{openMovement(1, 1, start, lastNotified)})
		if len(fired) > 0 {
			firedTotal += len(fired)
			stamp := now
			lastNotified = &stamp
		}
	}

	overdueWindow := 60 - testThresholds.ImportMinutes
	bound := overdueWindow/testThresholds.RenotifyMinutes + 1
	assert.LessOrEqual(t, firedTotal, bound)
	assert.Positive(t, firedTotal)
}
