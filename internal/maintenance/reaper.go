// Package maintenance implements the session reaper: a cron-scheduled
// sweep that terminates sessions whose last participant disconnected
// more than the configured grace window ago. One periodic sweep rather
// than one timer per session, to avoid a goroutine per idle session.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Terminator is the narrow surface the reaper needs from the broker: list
// every live session, check how long it's been idle, and tear it down the
// same way a session.end event would.
type Terminator interface {
	// IdleSessions returns the ids of sessions whose last activity predates
	// now by more than graceWindow.
	IdleSessions(now time.Time, graceWindow time.Duration) []string
	// Terminate ends sessionID the same way an explicit session.end would.
	Terminate(ctx context.Context, sessionID string)
}

// Reaper evaluates cronExpr on a fixed poll tick and, whenever the
// expression is due, sweeps for idle sessions and terminates them.
type Reaper struct {
	cronExpr    string
	graceWindow time.Duration
	term        Terminator
	logger      *slog.Logger
	gron        *gronx.Gronx

	pollInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New constructs a Reaper. cronExpr is a standard 5-field cron expression
// (e.g. "*/5 * * * *", the config default); graceWindowSeconds is the
// session-idle threshold.
func New(cronExpr string, graceWindowSeconds int, term Terminator, logger *slog.Logger) *Reaper {
	return &Reaper{
		cronExpr:     cronExpr,
		graceWindow:  time.Duration(graceWindowSeconds) * time.Second,
		term:         term,
		logger:       logger,
		gron:         gronx.New(),
		pollInterval: 15 * time.Second,
	}
}

// Start begins polling in a background goroutine; Stop cancels it. Safe to
// call once; a second Start before Stop is a logged no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		r.logger.Warn("maintenance: reaper already running")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stopped = make(chan struct{})
	r.mu.Unlock()

	go r.run(runCtx)
}

// Stop cancels the polling goroutine and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	stopped := r.stopped
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.stopped)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var lastTick time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := r.gron.IsDue(r.cronExpr, now)
			if err != nil {
				r.logger.Error("maintenance: invalid reaper cron expression", "expr", r.cronExpr, "error", err)
				continue
			}
			// IsDue is true for the whole minute window it matches; only
			// sweep once per matching minute.
			if due && !sameMinute(lastTick, now) {
				lastTick = now
				r.sweep(ctx, now)
			}
		}
	}
}

// sweep terminates every session idle past the grace window.
func (r *Reaper) sweep(ctx context.Context, now time.Time) {
	idle := r.term.IdleSessions(now, r.graceWindow)
	for _, sessionID := range idle {
		r.logger.Info("maintenance: reaping idle session", "session_id", sessionID, "grace_window", r.graceWindow)
		r.term.Terminate(ctx, sessionID)
	}
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}
