// Package session implements the ocserv session-lifecycle engine:
// the Session Record, the Environment Binder, the Hook Runner and its
// Pending-Hooks Registry, and the state machine that ties them together.
// See SPEC_FULL.md for the full component map.
package session

import (
	"net"
	"time"
)

// State is one of the session lifecycle states of spec.md §4.4.
type State int

const (
	Authenticated State = iota
	UpScriptPending
	Active
	DisconnectPending
	Closed
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case UpScriptPending:
		return "up-script-pending"
	case Active:
		return "active"
	case DisconnectPending:
		return "disconnect-pending"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Direction selects which hook is being run, and which REASON value the
// Environment Binder produces.
type Direction int

const (
	Up Direction = iota
	Down
)

// Reason is the REASON environment binding for this direction.
func (d Direction) Reason() string {
	if d == Up {
		return "connect"
	}
	return "disconnect"
}

// Lease is the pair of in-tunnel addresses assigned to a session for one
// address family (spec.md GLOSSARY).
type Lease struct {
	Local  net.IP
	Remote net.IP
}

// IPv6Lease additionally carries the negotiated prefix length.
type IPv6Lease struct {
	Lease
	PrefixLength int
}

// Session is the passive data object describing one authenticated
// tunnel (spec.md §3's "Session Record"). It is produced by
// authentication and lease subsystems outside this module's scope and
// consumed by every component described here.
type Session struct {
	ID       uint32
	WorkerPid int

	Username  string
	Groupname string
	Hostname  string

	RemoteAddr net.Addr // client peer address; nil if unknown
	OurAddr    net.Addr // our local address; nil if unknown

	IPv4 *Lease
	IPv6 *IPv6Lease

	Device string

	Overrides Overrides

	BytesIn     uint64
	BytesOut    uint64
	ConnectTime time.Time // zero means unset

	State State
}

// Tuple is the fixed-order session summary of spec.md §6.2, used by both
// `list`/`user_info`/`id_info` control-surface replies and by tests that
// check round-trip idempotence against it.
type Tuple struct {
	ID          uint32
	Username    string
	Groupname   string
	PeerIP      string
	Device      string
	VPNIPv4     string
	VPNPtpIPv4  string
	VPNIPv6     string
	VPNPtpIPv6  string
	Since       uint32
	Hostname    string
	AuthState   string
}

// ToTuple renders the fixed-order summary spec.md §6.2 names. Empty
// strings denote "not applicable"; Since of 0 denotes unknown.
func (s *Session) ToTuple() Tuple {
	t := Tuple{
		ID:        s.ID,
		Username:  s.Username,
		Groupname: s.Groupname,
		Device:    s.Device,
		Hostname:  s.Hostname,
		AuthState: s.State.String(),
	}
	if s.RemoteAddr != nil {
		t.PeerIP = numericHost(s.RemoteAddr)
	}
	if s.IPv4 != nil {
		t.VPNIPv4 = ipString(s.IPv4.Local)
		t.VPNPtpIPv4 = ipString(s.IPv4.Remote)
	}
	if s.IPv6 != nil {
		t.VPNIPv6 = ipString(s.IPv6.Local)
		t.VPNPtpIPv6 = ipString(s.IPv6.Remote)
	}
	if !s.ConnectTime.IsZero() {
		t.Since = uint32(s.ConnectTime.Unix())
	}
	return t
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func numericHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		// Some net.Addr implementations (e.g. a bare net.IPAddr) don't
		// carry a port and SplitHostPort fails; fall back to the raw
		// numeric-host string. The classifier in binder.go treats this
		// as advisory per spec.md §9 regardless.
		return addr.String()
	}
	return host
}
