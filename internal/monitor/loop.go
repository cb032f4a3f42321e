package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terminalops/movewatch/internal/domain"
	"github.com/terminalops/movewatch/internal/notify"
	"github.com/terminalops/movewatch/internal/store"
)

// Summary reports the outcome of one monitor pass.
type Summary struct {
	Fired int       `json:"alerts_fired"`
	Ran   time.Time `json:"ran_at"`
}

// LoopConfig wires the monitor loop's collaborators.
type LoopConfig struct {
	Repo      Repository
	Directory Directory
	History   History
	Settings  Settings
	Channels  []notify.Channel
	Publisher Publisher // optional live feed
	Period    time.Duration
	Location  *time.Location
	Clock     func() time.Time // optional, defaults to time.Now in Location
}

// Loop is the orchestrator: it wakes on a fixed period, runs the escalation
// evaluator and the anomaly detector, dispatches alerts through every
// channel, persists history and bookkeeping, and never dies from a bad pass.
type Loop struct {
	repo      Repository
	dir       Directory
	history   History
	settings  Settings
	channels  []notify.Channel
	publisher Publisher
	evaluator *Evaluator

	period time.Duration
	clock  func() time.Time

	// passMu serializes passes: the periodic tick and the on-demand trigger
	// never overlap.
	passMu   sync.Mutex
	lastPass time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLoop creates the monitor loop.
func NewLoop(cfg LoopConfig) *Loop {
	clock := cfg.Clock
	if clock == nil {
		loc := cfg.Location
		if loc == nil {
			loc = time.UTC
		}
		clock = func() time.Time { return time.Now().In(loc) }
	}
	return &Loop{
		repo:      cfg.Repo,
		dir:       cfg.Directory,
		history:   cfg.History,
		settings:  cfg.Settings,
		channels:  cfg.Channels,
		publisher: cfg.Publisher,
		evaluator: NewEvaluator(cfg.Directory),
		period:    cfg.Period,
		clock:     clock,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background loop. Safe to call once.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	log.Info().Dur("period", l.period).Msg("starting movement monitor")
	l.wg.Add(1)
	go l.run()
}

// Stop shuts the loop down and waits for the current pass to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.mu.Unlock()
	l.wg.Wait()
	log.Info().Msg("movement monitor stopped")
}

func (l *Loop) run() {
	defer l.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.stopChan
		cancel()
	}()

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		l.safePass(ctx)
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// safePass runs one pass and contains anything it throws. A single bad cycle
// must never kill the monitor.
func (l *Loop) safePass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("monitor pass panicked")
		}
	}()

	summary, err := l.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("monitor pass failed")
		return
	}
	if summary.Fired > 0 {
		log.Info().Int("alerts_fired", summary.Fired).Time("ran_at", summary.Ran).Msg("monitor pass complete")
	} else {
		log.Debug().Time("ran_at", summary.Ran).Msg("monitor pass complete")
	}
}

// RunOnce executes one monitor pass and reports how many alerts fired. It
// returns an error only when the pass could not start at all; failures for
// individual movements or channels are logged and isolated. The on-demand
// trigger endpoint calls this directly.
func (l *Loop) RunOnce(ctx context.Context) (Summary, error) {
	l.passMu.Lock()
	defer l.passMu.Unlock()

	now := l.clock()

	cfg := l.activeThresholds(ctx)

	open, err := l.repo.OpenMovements(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("monitor pass: %w", err)
	}

	closedSince := l.lastPass
	if closedSince.IsZero() {
		closedSince = now.Add(-l.period)
	}
	recent, recentErr := l.repo.RecentMovements(ctx, closedSince)
	if recentErr != nil {
		// Escalation still runs; only anomaly and resolution detection are
		// skipped this pass.
		log.Error().Err(recentErr).Msg("recent movements unavailable")
		recent = nil
	}

	var wg sync.WaitGroup
	fired := 0

	for _, a := range l.evaluator.Evaluate(ctx, now, cfg, open) {
		l.emit(ctx, &wg, a.Record(now))
		fired++

		ok, err := l.repo.MarkNotified(ctx, a.MovementID, now)
		if err != nil {
			log.Error().Err(err).Int64("movement_id", a.MovementID).Msg("notification bookkeeping failed")
		} else if !ok {
			log.Debug().Int64("movement_id", a.MovementID).Msg("movement closed during pass, bookkeeping skipped")
		}
	}

	for _, p := range DetectAnomalies(recent) {
		a := p.Alert()
		l.emit(ctx, &wg, a.Record(now))
		fired++

		ok, err := l.repo.MarkAnomalyReported(ctx, p.Open.ID)
		if err != nil {
			log.Error().Err(err).Int64("movement_id", p.Open.ID).Msg("anomaly bookkeeping failed")
		} else if !ok {
			log.Debug().Int64("movement_id", p.Open.ID).Msg("anomaly already reported or movement closed")
		}
	}

	for _, m := range recent {
		if !l.resolved(m, closedSince) {
			continue
		}
		a := l.resolvedAlert(ctx, m)
		l.emit(ctx, &wg, a.Record(now))
		fired++
	}

	// The next window starts where this one ended. When the recent fetch
	// failed the window stays open at its current start, so closures inside
	// the failed window are still scanned once the store recovers.
	if recentErr != nil {
		l.lastPass = closedSince
	} else {
		l.lastPass = now
	}

	// Dispatch is concurrent per alert and channel; the pass waits so the
	// trigger endpoint reports after every channel was attempted.
	wg.Wait()

	return Summary{Fired: fired, Ran: now}, nil
}

// activeThresholds loads the active configuration, degrading to the
// hardcoded defaults rather than going silent.
func (l *Loop) activeThresholds(ctx context.Context) domain.Thresholds {
	cfg, err := l.settings.ActiveThresholds(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultThresholds()
	}
	if err != nil {
		log.Warn().Err(err).Msg("thresholds unavailable, using defaults")
		return domain.DefaultThresholds()
	}
	return cfg
}

// resolved reports whether the movement closed inside this pass's window
// after having escalated. The window is (closedSince, now]; a closure stamped
// at exactly the previous pass's time was already handled there.
func (l *Loop) resolved(m domain.Movement, closedSince time.Time) bool {
	return m.State == domain.MovementClosed &&
		m.LastNotifiedAt != nil &&
		m.EndTime != nil &&
		m.EndTime.After(closedSince)
}

func (l *Loop) resolvedAlert(ctx context.Context, m domain.Movement) Alert {
	plate := fmt.Sprintf("vehicle %d", m.VehicleID)
	if v, err := l.dir.VehicleByID(ctx, m.VehicleID); err == nil {
		plate = v.Plate
	}
	return Alert{
		Kind:  domain.AlertResolved,
		Title: fmt.Sprintf("Movement resolved: %s", m.ContainerNo),
		Body: fmt.Sprintf("Container %s (plate %s) arrived at %s after escalation.",
			m.ContainerNo, plate, m.EndTime.Format("15:04 02/01/2006")),
		OperationID: m.OperationID,
		MovementID:  m.ID,
	}
}

// emit persists the record and fans it out to every channel. History append
// is synchronous and authoritative; a failed append is an operational error,
// the alert is still dispatched (at-most-once persistence).
func (l *Loop) emit(ctx context.Context, wg *sync.WaitGroup, rec *domain.AlertRecord) {
	if _, err := l.history.AppendAlert(ctx, rec); err != nil {
		log.Error().Err(err).Str("kind", string(rec.Kind)).Msg("alert history append failed")
	}

	if l.publisher != nil {
		l.publisher.Publish(*rec)
	}

	for _, ch := range l.channels {
		wg.Add(1)
		go func(ch notify.Channel) {
			defer wg.Done()
			// Each channel dispatch runs in its own goroutine; a panic here
			// would kill the process, so it is contained per channel.
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("channel", ch.Name()).Msg("channel dispatch panicked")
				}
			}()
			res := ch.Broadcast(ctx, rec.Title, rec.Body)
			log.Info().Str("channel", ch.Name()).Str("kind", string(rec.Kind)).
				Int("delivered", res.Delivered).Int("failed", res.Failed).Msg("alert dispatched")
		}(ch)
	}
}
