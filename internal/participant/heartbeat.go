package participant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// TransitionFunc is invoked when a participant's presence changes; it is
// called outside any session lock (the scheduler takes its own snapshot
// under the lock via Table.Snapshot, then evaluates and calls back
// lock-free).
type TransitionFunc func(participantID string, from, to protocol.Presence)

// PingFunc sends a heartbeat.ping to a session; invoked once per tick.
type PingFunc func(ctx context.Context)

// Scheduler drives one Runner per session, each ticking on the session's
// configured heartbeat interval and sweeping for idle/away/disconnected
// transitions: a ticker-based loop with a stop channel and a done
// channel Stop() blocks on, plus a GetOrCreate/StopAll/StopSession map
// keyed by session id.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	runners map[string]*Runner // keyed by session id
}

// NewScheduler constructs an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger, runners: make(map[string]*Runner)}
}

// GetOrCreate returns the existing runner for sessionID or starts a new
// one with the given interval and callbacks.
func (s *Scheduler) GetOrCreate(sessionID string, interval time.Duration, ping PingFunc, sweep func(ctx context.Context)) *Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runners[sessionID]; ok {
		return r
	}
	r := newRunner(sessionID, interval, ping, sweep, s.logger)
	s.runners[sessionID] = r
	r.start()
	return r
}

// StopSession stops and forgets the runner for one session (session.end).
func (s *Scheduler) StopSession(sessionID string) {
	s.mu.Lock()
	r, ok := s.runners[sessionID]
	if ok {
		delete(s.runners, sessionID)
	}
	s.mu.Unlock()
	if ok {
		r.stop()
	}
}

// StopAll halts every runner on broker shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.runners = make(map[string]*Runner)
	s.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
}

// Active returns the count of still-running schedulers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runners)
}

// Runner pings one session on an interval and, between pings, evaluates
// whether any participant's last heartbeat has aged past the idle/away
// thresholds.
type Runner struct {
	sessionID string
	interval  time.Duration
	ping      PingFunc
	sweep     func(ctx context.Context)
	logger    *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func newRunner(sessionID string, interval time.Duration, ping PingFunc, sweep func(ctx context.Context), logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Runner{
		sessionID: sessionID,
		interval:  interval,
		ping:      ping,
		sweep:     sweep,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (r *Runner) start() {
	go r.run()
}

func (r *Runner) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if r.ping != nil {
				r.ping(ctx)
			}
			if r.sweep != nil {
				r.sweep(ctx)
			}
			cancel()
		}
	}
}

// stop blocks until the run loop has exited.
func (r *Runner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

// EvaluatePresence computes the presence transitions a sweep should apply
// given elapsed time since each participant's last heartbeat: idle
// after idleTimeout, away after awayTimeout.
func EvaluatePresence(lastHeartbeatAt time.Time, now time.Time, idleTimeout, awayTimeout time.Duration) protocol.Presence {
	elapsed := now.Sub(lastHeartbeatAt)
	switch {
	case awayTimeout > 0 && elapsed > awayTimeout:
		return protocol.PresenceAway
	case idleTimeout > 0 && elapsed > idleTimeout:
		return protocol.PresenceIdle
	default:
		return protocol.PresenceActive
	}
}
