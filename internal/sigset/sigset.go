// Package sigset captures the supervisor's blocked-signal set as an
// immutable value, so the reaper and the hook runner agree on exactly
// that set without consulting process-global mutable state. Hook
// children need no signal handling of their own: they already start with
// these signals at default disposition (see session.HookRunner.Run).
package sigset

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Set is the immutable set of signals the supervisor blocks while it
// serializes reaping and control. It is captured once, at supervisor
// start, and passed explicitly to anything that needs to know it —
// never stored as a package-global mutable variable (spec.md §9).
type Set struct {
	signals []os.Signal
}

// Default returns the set ocserv's C implementation calls sig_default_set:
// SIGCHLD, SIGTERM, SIGHUP and SIGINT.
func Default() Set {
	return Set{signals: []os.Signal{
		unix.SIGCHLD,
		unix.SIGTERM,
		unix.SIGHUP,
		unix.SIGINT,
	}}
}

// Signals returns the blocked signals, for passing to signal.Notify.
func (s Set) Signals() []os.Signal {
	out := make([]os.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

// Notify wires ch to receive the blocked set via the standard library's
// signal package, returning a function that stops delivery.
func (s Set) Notify(ch chan<- os.Signal) func() {
	signal.Notify(ch, s.Signals()...)
	return func() { signal.Stop(ch) }
}
