package domain

import "time"

// Default escalation settings used when no configuration row exists yet.
// The monitor degrades to these rather than skipping the pass.
const (
	DefaultImportMinutes   = 20
	DefaultExportMinutes   = 30
	DefaultRenotifyMinutes = 3
)

// Thresholds is one versioned escalation configuration tuple. Rows are
// append-only; the most recently created row is the active one.
type Thresholds struct {
	ID              int64     `json:"id"`
	ImportMinutes   int       `json:"import_minutes"`
	ExportMinutes   int       `json:"export_minutes"`
	RenotifyMinutes int       `json:"renotify_minutes"`
	UpdatedAt       time.Time `json:"updated_at"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
}

// DefaultThresholds returns the hardcoded fallback tuple.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ImportMinutes:   DefaultImportMinutes,
		ExportMinutes:   DefaultExportMinutes,
		RenotifyMinutes: DefaultRenotifyMinutes,
	}
}

// Overdue returns the threshold for the given operation kind. Unknown kinds
// use the export threshold.
func (t Thresholds) Overdue(kind OperationKind) time.Duration {
	if kind == OperationImport {
		return time.Duration(t.ImportMinutes) * time.Minute
	}
	return time.Duration(t.ExportMinutes) * time.Minute
}

// Renotify returns the re-notification cooldown.
func (t Thresholds) Renotify() time.Duration {
	return time.Duration(t.RenotifyMinutes) * time.Minute
}
