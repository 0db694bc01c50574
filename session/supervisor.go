package session

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ocserv/sessiond/internal/reaper"
)

// killGrace is the SIGTERM-to-SIGKILL grace period for a pending hook
// child being administratively terminated (spec.md §4.4, §5).
const killGrace = 2 * time.Second

// shutdownWait bounds how long the supervisor waits for outstanding
// DisconnectPending handles to resolve during a graceful stop
// (spec.md §5: "it waits for DisconnectPending handles but does not
// wait on UpScriptPending").
const shutdownWait = 10 * time.Second

// Supervisor is the single goroutine that owns the Registry and the
// Pending-Hooks Registry, and drives the state machine of spec.md §4.4.
// It is the Go-idiomatic rendering of "a single main supervisor task
// owns all session records and the pending-hooks registry; it never
// mutates them from more than one execution context" (spec.md §5):
// every mutation happens inside Run's select loop, either directly (for
// reaped exits) or via a dispatched function (for control-surface
// requests), never from a caller's own goroutine.
type Supervisor struct {
	cfg      *ConfigRef
	registry *Registry
	pending  *PendingHooks
	hooks    *HookRunner
	acct     *AccountingWriter
	reaper   *reaper.Reaper
	logger   log.Logger

	requests chan controlRequest
}

type controlRequest struct {
	fn   func()
	done chan struct{}
}

// NewSupervisor wires the session engine's components together. cfg is
// shared with hooks and acct so a configuration reload (ConfigRef.Store)
// is observed by every component without rebuilding them.
func NewSupervisor(cfg *ConfigRef, registry *Registry, pending *PendingHooks, hooks *HookRunner, acct *AccountingWriter, r *reaper.Reaper, logger log.Logger) *Supervisor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		pending:  pending,
		hooks:    hooks,
		acct:     acct,
		reaper:   r,
		logger:   logger,
		requests: make(chan controlRequest),
	}
}

// Registry exposes the session registry for read-only control-surface
// queries (list/user_info/id_info), which may run outside the
// supervisor goroutine since Registry itself is safe for concurrent
// reads.
func (sup *Supervisor) Registry() *Registry { return sup.registry }

// Dispatch runs fn on the supervisor goroutine and blocks until it
// completes. Control-surface requests that touch session state
// (status, list, user_info, id_info, disconnect) go through Dispatch so
// they observe the single-writer invariant spec.md §5 requires.
func (sup *Supervisor) Dispatch(fn func()) {
	req := controlRequest{fn: fn, done: make(chan struct{})}
	sup.requests <- req
	<-req.done
}

// Run is the supervisor's central event loop (spec.md §5: "blocks only
// in its central event wait... on signal delivery (SIGCHLD primarily)").
// It returns when ctx is cancelled, after draining shutdown per
// spec.md §4.4/§5.
func (sup *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case e, ok := <-sup.reaper.Exits():
			if !ok {
				return
			}
			sup.handleReap(e)
		case req := <-sup.requests:
			req.fn()
			close(req.done)
		case <-ctx.Done():
			sup.drainShutdown()
			return
		}
	}
}

// UserConnected implements the Authenticated->{UpScriptPending,Active}
// transition of spec.md §4.4's table: login accounting is written, then
// the up-hook is forked if configured.
func (sup *Supervisor) UserConnected(s *Session) error {
	s.State = Authenticated
	sup.registry.Add(s)

	sup.acct.RecordLogin(s)

	outcome, _, err := sup.hooks.Run(s, Up)
	if err != nil {
		// Spawn error: the session is aborted immediately, treated as
		// an up-hook failure (spec.md §4.4's failure semantics).
		level.Error(sup.logger).Log("message", "up-hook spawn failed",
			"session_id", s.ID, "username", s.Username, "error", err)
		s.State = Closed
		sup.acct.RecordLogout(s)
		sup.registry.Remove(s)
		return err
	}

	if outcome == NoHook {
		s.State = Active
	} else {
		s.State = UpScriptPending
	}
	return nil
}

// UserDisconnected implements the Active->{DisconnectPending,Closed}
// transition: logout accounting is written, then the down-hook is
// forked if configured.
func (sup *Supervisor) UserDisconnected(s *Session) {
	sup.acct.RecordLogout(s)

	outcome, _, err := sup.hooks.Run(s, Down)
	if err != nil {
		level.Error(sup.logger).Log("message", "down-hook spawn failed",
			"session_id", s.ID, "username", s.Username, "error", err)
		outcome = NoHook
	}

	if outcome == NoHook {
		s.State = Closed
		sup.registry.Remove(s)
	} else {
		s.State = DisconnectPending
	}
}

// handleReap delivers a reaped child's exit status to its owning
// session, effecting the UpScriptPending/DisconnectPending->{Active,
// Closed} transitions of spec.md §4.4. A pid the Pending-Hooks Registry
// doesn't recognize is a stray child and logged at debug level.
func (sup *Supervisor) handleReap(e reaper.Exit) {
	h, ok := sup.pending.Resolve(e.Pid)
	if !ok {
		level.Debug(sup.logger).Log("message", "reaped untracked pid", "pid", e.Pid)
		return
	}

	s := h.Session
	success := !e.Signaled && e.Status == 0

	switch h.Direction {
	case Up:
		if success {
			s.State = Active
		} else {
			level.Info(sup.logger).Log("message", "up-hook rejected session",
				"session_id", s.ID, "username", s.Username,
				"status", e.Status, "signaled", e.Signaled)
			s.State = Closed
			sup.acct.RecordLogout(s)
			sup.registry.Remove(s)
		}
	case Down:
		s.State = Closed
		sup.registry.Remove(s)
	}
}

// DisconnectByID synthesizes user-disconnected for the named session,
// per spec.md §6.2's disconnect_id. Returns false if no such session
// exists, leaving state unchanged (spec.md §8's round-trip property).
func (sup *Supervisor) DisconnectByID(id uint32) bool {
	s, ok := sup.registry.ByID(id)
	if !ok {
		return false
	}
	sup.administrativeDisconnect(s)
	return true
}

// DisconnectByUsername synthesizes user-disconnected for every session
// owned by username, per spec.md §6.2's disconnect_name.
func (sup *Supervisor) DisconnectByUsername(username string) bool {
	sessions := sup.registry.ByUsername(username)
	if len(sessions) == 0 {
		return false
	}
	for _, s := range sessions {
		sup.administrativeDisconnect(s)
	}
	return true
}

// administrativeDisconnect implements spec.md §5's cancellation
// behavior: if the session is in UpScriptPending its pending child is
// signaled (SIGTERM, then SIGKILL after grace) and the session proceeds
// directly to Closed, without waiting for that child's actual exit.
func (sup *Supervisor) administrativeDisconnect(s *Session) {
	switch s.State {
	case UpScriptPending:
		if h, ok := sup.pending.ForSession(s.ID); ok {
			sup.hooks.Terminate(h, killGrace)
			// The child is signaled but not yet reaped; forget its handle
			// now so the eventual natural reap (handleReap) finds nothing
			// to resolve instead of re-processing an already-Closed
			// session and double-recording its logout.
			sup.pending.Resolve(h.Pid)
		}
		sup.acct.RecordLogout(s)
		s.State = Closed
		sup.registry.Remove(s)
	case Active:
		sup.UserDisconnected(s)
	case DisconnectPending, Authenticated, Closed:
		// Already disconnecting, not yet fully up, or already gone:
		// nothing more to do administratively.
	}
}

// drainShutdown implements spec.md §5's stop behavior: pending
// UpScriptPending children are killed outright; DisconnectPending
// handles are waited for, up to shutdownWait.
func (sup *Supervisor) drainShutdown() {
	for _, s := range sup.registry.List() {
		if s.State == UpScriptPending {
			if h, ok := sup.pending.ForSession(s.ID); ok {
				sup.hooks.Terminate(h, killGrace)
				sup.pending.Resolve(h.Pid)
			}
		}
	}

	deadline := time.Now().Add(shutdownWait)
	for time.Now().Before(deadline) {
		if !sup.anyDisconnectPending() {
			return
		}
		select {
		case e, ok := <-sup.reaper.Exits():
			if !ok {
				return
			}
			sup.handleReap(e)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (sup *Supervisor) anyDisconnectPending() bool {
	for _, s := range sup.registry.List() {
		if s.State == DisconnectPending {
			return true
		}
	}
	return false
}
