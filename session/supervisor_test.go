package session

import (
	"testing"
	"time"

	"github.com/ocserv/sessiond/internal/reaper"
	"github.com/ocserv/sessiond/internal/sigset"
)

func newTestSupervisor(cfg *Config) (*Supervisor, *reaper.Reaper, *Registry) {
	cfgRef := NewConfigRef(cfg)
	registry := NewRegistry()
	pending := NewPendingHooks()
	sigs := sigset.Default()
	r := reaper.New(sigs, nil)
	hooks := NewHookRunner(cfgRef, pending, sigs, nil)
	acct := NewAccountingWriter(cfgRef, nil)
	sup := NewSupervisor(cfgRef, registry, pending, hooks, acct, r, nil)
	return sup, r, registry
}

func waitExit(t *testing.T, r *reaper.Reaper) reaper.Exit {
	t.Helper()
	select {
	case e, ok := <-r.Exits():
		if !ok {
			t.Fatalf("reaper exit channel closed unexpectedly")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for child to be reaped")
	}
	return reaper.Exit{}
}

func TestSupervisorNoHookGoesStraightToActive(t *testing.T) {
	cfg := &Config{} // no connect script configured
	sup, r, _ := newTestSupervisor(cfg)
	defer r.Close()

	s := &Session{ID: 1, WorkerPid: 111, Username: "alice"}
	if err := sup.UserConnected(s); err != nil {
		t.Fatalf("UserConnected() error = %v", err)
	}
	if s.State != Active {
		t.Errorf("state = %v, want Active when no up-hook is configured", s.State)
	}
}

func TestSupervisorUpHookSuccessTransitionsToActive(t *testing.T) {
	cfg := &Config{ConnectScriptPath: "/bin/true"}
	sup, r, _ := newTestSupervisor(cfg)
	defer r.Close()

	s := &Session{ID: 2, WorkerPid: 112, Username: "bob"}
	if err := sup.UserConnected(s); err != nil {
		t.Fatalf("UserConnected() error = %v", err)
	}
	if s.State != UpScriptPending {
		t.Fatalf("state = %v, want UpScriptPending immediately after a configured up-hook forks", s.State)
	}

	e := waitExit(t, r)
	sup.handleReap(e)

	if s.State != Active {
		t.Errorf("state = %v, want Active after the up-hook exits 0", s.State)
	}
}

func TestSupervisorUpHookFailureClosesSession(t *testing.T) {
	cfg := &Config{ConnectScriptPath: "/bin/false"}
	sup, r, registry := newTestSupervisor(cfg)
	defer r.Close()

	s := &Session{ID: 3, WorkerPid: 113, Username: "carol"}
	if err := sup.UserConnected(s); err != nil {
		t.Fatalf("UserConnected() error = %v", err)
	}

	e := waitExit(t, r)
	sup.handleReap(e)

	if s.State != Closed {
		t.Errorf("state = %v, want Closed after the up-hook exits non-zero", s.State)
	}
	if _, ok := registry.ByID(3); ok {
		t.Errorf("session still registered after up-hook rejection")
	}
}

func TestSupervisorUserDisconnectedNoHookClosesImmediately(t *testing.T) {
	cfg := &Config{}
	sup, r, registry := newTestSupervisor(cfg)
	defer r.Close()

	s := &Session{ID: 4, WorkerPid: 114, Username: "dave", State: Active}
	registry.Add(s)

	sup.UserDisconnected(s)

	if s.State != Closed {
		t.Errorf("state = %v, want Closed when no down-hook is configured", s.State)
	}
	if _, ok := registry.ByID(4); ok {
		t.Errorf("session still registered after disconnect with no down-hook")
	}
}

func TestSupervisorAdministrativeDisconnectKillsPendingChild(t *testing.T) {
	// /bin/cat with no arguments blocks reading stdin, giving the test
	// a long-lived pending hook child to terminate.
	cfg := &Config{ConnectScriptPath: "/bin/cat"}
	sup, r, registry := newTestSupervisor(cfg)
	defer r.Close()

	s := &Session{ID: 5, WorkerPid: 115, Username: "erin"}
	if err := sup.UserConnected(s); err != nil {
		t.Fatalf("UserConnected() error = %v", err)
	}
	if s.State != UpScriptPending {
		t.Fatalf("state = %v, want UpScriptPending before administrative disconnect", s.State)
	}

	if ok := sup.DisconnectByID(5); !ok {
		t.Fatalf("DisconnectByID(5) = false, want true")
	}
	if s.State != Closed {
		t.Errorf("state = %v, want Closed immediately, without waiting for the killed child's exit", s.State)
	}
	if _, ok := registry.ByID(5); ok {
		t.Errorf("session still registered after administrative disconnect")
	}

	// Drain the actual exit and feed it through handleReap exactly as
	// the supervisor's own event loop would: the handle was already
	// resolved by the administrative disconnect above, so this must be
	// a no-op rather than re-closing an already-Closed session or
	// recording a second logout.
	e := waitExit(t, r)
	sup.handleReap(e)

	if s.State != Closed {
		t.Errorf("state = %v after a stale reap of an administratively-disconnected child, want still Closed", s.State)
	}
}

func TestSupervisorDisconnectUnknownIDReturnsFalse(t *testing.T) {
	cfg := &Config{}
	sup, r, _ := newTestSupervisor(cfg)
	defer r.Close()

	if ok := sup.DisconnectByID(999); ok {
		t.Errorf("DisconnectByID(999) = true, want false for an unknown session")
	}
}
