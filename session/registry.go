package session

import "sync"

// Registry holds every live Session, indexed by session-id and by
// worker-pid, under a single RWMutex — the structural analogue of the
// teacher's l2tp.Context dual-indexed tunnel maps (l2tp/l2tp.go).
//
// Only the supervisor goroutine mutates a Registry (spec.md §5); the
// RWMutex makes concurrent reads safe from any goroutine. control.Service
// nonetheless runs its read-only requests (list, user_info, id_info)
// through Supervisor.Dispatch.
type Registry struct {
	mu       sync.RWMutex
	byID     map[uint32]*Session
	byPid    map[int]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[uint32]*Session),
		byPid: make(map[int]*Session),
	}
}

// Add links a session into the registry. The caller must ensure the
// session's ID is non-zero and unique (spec.md §3's invariant).
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	r.byPid[s.WorkerPid] = s
}

// Remove unlinks a session from the registry.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, s.ID)
	delete(r.byPid, s.WorkerPid)
}

// ByID looks up a session by its session-id.
func (r *Registry) ByID(id uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// ByUsername returns every session owned by the given username.
func (r *Registry) ByUsername(username string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.byID {
		if s.Username == username {
			out = append(out, s)
		}
	}
	return out
}

// List returns every session currently registered, in no particular
// order (spec.md §5: "Across sessions there is no ordering guarantee").
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Handle is the Pending-Hook Handle of spec.md §3: an in-memory record
// keyed by the hook child's pid.
type Handle struct {
	Pid       int
	Direction Direction
	SessionID uint32
	Session   *Session
}

// PendingHooks is the Pending-Hooks Registry of spec.md §4.4: a mapping
// from hook child pid to Handle. Invariant (spec.md §3): a session in
// UpScriptPending has exactly one live handle; no session has more than
// one live handle at any time — enforced by session.Supervisor's state
// machine (Register itself is called from HookRunner.Run), not by this
// type.
type PendingHooks struct {
	mu    sync.Mutex
	byPid map[int]*Handle
}

// NewPendingHooks returns an empty pending-hooks registry.
func NewPendingHooks() *PendingHooks {
	return &PendingHooks{byPid: make(map[int]*Handle)}
}

// Register records a forked hook child awaiting reaping.
func (p *PendingHooks) Register(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byPid[h.Pid] = h
}

// Resolve removes and returns the handle for a reaped pid. ok is false
// for a pid this registry never tracked — spec.md §4.4 calls this
// "benign (a stray child ... logged at debug level)".
func (p *PendingHooks) Resolve(pid int) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.byPid[pid]
	if ok {
		delete(p.byPid, pid)
	}
	return h, ok
}

// ForSession returns the live handle for a session-id, if any. Used to
// signal (SIGTERM/SIGKILL) a pending child on administrative disconnect.
func (p *PendingHooks) ForSession(sessionID uint32) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.byPid {
		if h.SessionID == sessionID {
			return h, true
		}
	}
	return nil, false
}

// Count returns the number of outstanding handles across all sessions.
func (p *PendingHooks) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byPid)
}

// CountForSession returns how many live handles reference sessionID.
// spec.md §8's at-most-one-pending property requires this never exceeds 1.
func (p *PendingHooks) CountForSession(sessionID uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.byPid {
		if h.SessionID == sessionID {
			n++
		}
	}
	return n
}
