package session

import (
	"os"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ocserv/sessiond/internal/sigset"
)

// Outcome is the result of HookRunner.Run, matching spec.md §4.3's
// {NoHook, Done, Pending(handle)} | Err(kind).
type Outcome int

const (
	// NoHook means no script is configured for this direction.
	NoHook Outcome = iota
	// Done means a down-hook was forked; the caller does not wait.
	Done
	// Pending means an up-hook was forked and registered; the caller
	// must treat the session as not yet permitted to forward packets.
	Pending
)

// HookRunner forks and execs the connect/disconnect (or firewall
// wrapper) script, applying the Environment Binder's output to the
// child. See main-user.c's call_script, which this type's Run mirrors.
type HookRunner struct {
	cfg     *ConfigRef
	pending *PendingHooks
	sigs    sigset.Set
	logger  log.Logger
}

// NewHookRunner returns a HookRunner bound to cfg, registering up-hooks
// in pending as they are forked. cfg is consulted fresh on every Run
// call, so a configuration reload (ConfigRef.Store) takes effect for
// the next hook fork without rebuilding the HookRunner.
func NewHookRunner(cfg *ConfigRef, pending *PendingHooks, sigs sigset.Set, logger log.Logger) *HookRunner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &HookRunner{cfg: cfg, pending: pending, sigs: sigs, logger: logger}
}

// Run implements spec.md §4.3: selects the script for dir, builds the
// child environment, forks+execs, and for an up-hook registers a
// Pending Hook handle instead of waiting.
//
// Reaping is never performed here: the child's exit is observed later by
// internal/reaper's shared SIGCHLD loop and resolved against
// r.pending — calling os/exec's Cmd.Wait from this goroutine would race
// that shared reaper's wait4(-1, WNOHANG) over the same pid, so this
// method uses os.StartProcess and never waits on the returned handle
// itself (spec.md §5: "no waitpid call blocks the supervisor").
//
// Go's runtime does not hold SIGCHLD/SIGTERM/SIGHUP/SIGINT blocked at
// the kernel signal-mask level for ordinary goroutines — os/signal
// delivers via registered handlers, not via pthread_sigmask blocking —
// so forked children already start with those signals at default
// disposition without this engine needing to call sigprocmask itself,
// unlike ocserv's C implementation (which explicitly blocks signals on
// the main thread and must unblock them in the child before exec). The
// captured sigset.Set is still threaded through so the supervisor and
// this type agree on exactly which signals that equivalence applies to.
func (r *HookRunner) Run(s *Session, dir Direction) (Outcome, *Handle, error) {
	cfg := r.cfg.Load()
	scriptPath, _ := SelectScript(cfg, s.Overrides, dir)
	if scriptPath == "" {
		return NoHook, nil, nil
	}

	var bindings *Bindings
	var err error
	if dir == Down {
		var durationSeconds int64
		if !s.ConnectTime.IsZero() {
			durationSeconds = int64(time.Since(s.ConnectTime).Seconds())
		}
		bindings, err = BindWithDuration(cfg, s, dir, durationSeconds)
	} else {
		bindings, err = Bind(cfg, s, dir)
	}
	if err != nil {
		return 0, nil, err
	}

	attr := &os.ProcAttr{
		Env:   bindings.Environ(),
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{},
	}

	proc, err := os.StartProcess(scriptPath, []string{scriptPath}, attr)
	if err != nil {
		level.Error(r.logger).Log("message", "failed to spawn hook",
			"session_id", s.ID, "username", s.Username, "direction", directionName(dir),
			"script", scriptPath, "error", err)
		return 0, nil, newError(ErrSpawn, "hooks.Run", err)
	}

	level.Debug(r.logger).Log("message", "executing hook script",
		"session_id", s.ID, "direction", directionName(dir), "script", scriptPath, "pid", proc.Pid)

	if dir == Up {
		h := &Handle{Pid: proc.Pid, Direction: dir, SessionID: s.ID, Session: s}
		r.pending.Register(h)
		return Pending, h, nil
	}
	return Done, nil, nil
}

func directionName(d Direction) string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Terminate sends SIGTERM to a pending hook child, waits grace, and
// escalates to SIGKILL if it hasn't been reaped — spec.md §4.4/§5's
// administrative-disconnect-of-a-pending-session and shutdown behavior.
func (r *HookRunner) Terminate(h *Handle, grace time.Duration) {
	if h == nil {
		return
	}
	if err := syscall.Kill(h.Pid, syscall.SIGTERM); err != nil {
		level.Debug(r.logger).Log("message", "SIGTERM failed", "pid", h.Pid, "error", err)
	}
	go func(pid int) {
		time.Sleep(grace)
		// If the process is already reaped this simply fails with
		// ESRCH, which is expected and not logged above debug.
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			level.Debug(r.logger).Log("message", "SIGKILL no-op (already reaped)", "pid", pid, "error", err)
		}
	}(h.Pid)
}
