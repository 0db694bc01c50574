package session

import "testing"

func TestRegistryAddRemoveByID(t *testing.T) {
	r := NewRegistry()
	s := &Session{ID: 7, WorkerPid: 100, Username: "bob"}
	r.Add(s)

	got, ok := r.ByID(7)
	if !ok || got != s {
		t.Fatalf("ByID(7) = %v, %v; want %v, true", got, ok, s)
	}

	r.Remove(s)
	if _, ok := r.ByID(7); ok {
		t.Errorf("session still present after Remove")
	}
}

func TestRegistryByUsernameMultipleSessions(t *testing.T) {
	r := NewRegistry()
	a := &Session{ID: 1, WorkerPid: 10, Username: "carol"}
	b := &Session{ID: 2, WorkerPid: 11, Username: "carol"}
	c := &Session{ID: 3, WorkerPid: 12, Username: "dave"}
	r.Add(a)
	r.Add(b)
	r.Add(c)

	got := r.ByUsername("carol")
	if len(got) != 2 {
		t.Fatalf("ByUsername(carol) returned %d sessions, want 2", len(got))
	}
}

func TestPendingHooksAtMostOnePerSession(t *testing.T) {
	p := NewPendingHooks()
	s := &Session{ID: 1}
	h := &Handle{Pid: 200, Direction: Up, SessionID: s.ID, Session: s}
	p.Register(h)

	if n := p.CountForSession(1); n != 1 {
		t.Fatalf("CountForSession(1) = %d, want 1", n)
	}

	resolved, ok := p.Resolve(200)
	if !ok || resolved != h {
		t.Fatalf("Resolve(200) = %v, %v; want %v, true", resolved, ok, h)
	}
	if n := p.CountForSession(1); n != 0 {
		t.Errorf("CountForSession(1) = %d after Resolve, want 0", n)
	}
}

func TestPendingHooksResolveUnknownPidIsBenign(t *testing.T) {
	p := NewPendingHooks()
	_, ok := p.Resolve(9999)
	if ok {
		t.Errorf("Resolve on an untracked pid reported ok=true")
	}
}
