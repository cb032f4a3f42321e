package monitor

import (
	"fmt"
	"sort"

	"github.com/terminalops/movewatch/internal/domain"
)

// AnomalyPair is one order inversion: Open departed earlier and is still in
// transit while Closed departed later and already arrived.
type AnomalyPair struct {
	Open   domain.Movement
	Closed domain.Movement
}

// DetectAnomalies scans the working set of movements for order inversions.
//
// Movements are ordered by start time (ties broken by id for determinism).
// For every still-open movement that has not yet been reported, the reported
// counterpart is the earliest-starting later movement that closed. The
// quadratic scan is fine because the input is the bounded set of open plus
// recently closed movements, not the full table.
func DetectAnomalies(movements []domain.Movement) []AnomalyPair {
	sorted := make([]domain.Movement, len(movements))
	copy(sorted, movements)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var pairs []AnomalyPair
	for i, x := range sorted {
		if !x.Open() || x.AnomalyReported {
			continue
		}
		for _, y := range sorted[i+1:] {
			if y.State != domain.MovementClosed {
				continue
			}
			pairs = append(pairs, AnomalyPair{Open: x, Closed: y})
			break
		}
	}
	return pairs
}

// Alert renders the pair as an order-anomaly alert referencing the delayed
// movement.
func (p AnomalyPair) Alert() Alert {
	body := fmt.Sprintf(
		"Container %s departed %s and is still in transit, but container %s departed later (%s) and already arrived (%s).",
		p.Open.ContainerNo, p.Open.StartTime.Format("15:04 02/01/2006"),
		p.Closed.ContainerNo, p.Closed.StartTime.Format("15:04 02/01/2006"),
		p.Closed.EndTime.Format("15:04 02/01/2006"))

	return Alert{
		Kind:        domain.AlertOrderAnomaly,
		Title:       fmt.Sprintf("Out-of-order arrival: %s still in transit", p.Open.ContainerNo),
		Body:        body,
		OperationID: p.Open.OperationID,
		MovementID:  p.Open.ID,
	}
}
