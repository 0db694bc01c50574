// Package control implements the D-Bus control surface of spec.md §6:
// the eight operator requests (status, list, user_info, id_info,
// disconnect_name, disconnect_id, reload, stop) exported as D-Bus
// methods, and the occtl-equivalent client that calls them.
package control

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/ocserv/sessiond/session"
)

const (
	// BusName is the well-known D-Bus name this service requests.
	BusName = "org.ocserv.SessionManager1"
	// ObjectPath is the single object this service exports.
	ObjectPath = "/org/ocserv/SessionManager1"
	// InterfaceName is the D-Bus interface carrying the eight requests.
	InterfaceName = "org.ocserv.SessionManager1"
	// errInvalid names a malformed or out-of-range request, per
	// spec.md §7 ControlProtocol: "never panics on a malformed request;
	// malformed requests receive a typed error reply."
	errInvalid = "org.ocserv.Error.Invalid"
)

const introspectXML = `
<node>
	<interface name="org.ocserv.SessionManager1">
		<method name="Status">
			<arg direction="out" type="b"/>
			<arg direction="out" type="u"/>
			<arg direction="out" type="u"/>
			<arg direction="out" type="u"/>
		</method>
		<method name="ListUsers">
			<arg direction="out" type="a(ussssssssuss)"/>
		</method>
		<method name="UserInfo">
			<arg direction="in" type="s"/>
			<arg direction="out" type="a(ussssssssuss)"/>
		</method>
		<method name="IDInfo">
			<arg direction="in" type="u"/>
			<arg direction="out" type="(ussssssssuss)"/>
		</method>
		<method name="DisconnectUser">
			<arg direction="in" type="s"/>
			<arg direction="out" type="b"/>
		</method>
		<method name="DisconnectID">
			<arg direction="in" type="u"/>
			<arg direction="out" type="b"/>
		</method>
		<method name="Reload">
			<arg direction="out" type="b"/>
		</method>
		<method name="Stop">
			<arg direction="out" type="b"/>
		</method>
	</interface>` + introspect.IntrospectDataString + `</node>`

// Service is the D-Bus-exported session manager, the server side of
// spec.md §6's control surface. Every exported method that reads or
// changes session state runs on the Supervisor's own goroutine via
// Supervisor.Dispatch, so it observes the single-writer invariant
// spec.md §5 requires of session state; Reload and Stop touch no
// session state and call their callbacks directly.
type Service struct {
	sup      *session.Supervisor
	onReload func() error
	onStop   func()
	logger   log.Logger

	conn *dbus.Conn
}

// NewService returns a Service bound to sup. onReload, if non-nil, is
// invoked by the Reload method; a nil onReload makes Reload a no-op
// that always reports success. onStop, if non-nil, is invoked by the
// Stop method to begin process shutdown (cmd/ocservd passes a function
// that wakes its main loop, which then cancels the supervisor's context).
func NewService(sup *session.Supervisor, onReload func() error, onStop func(), logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{sup: sup, onReload: onReload, onStop: onStop, logger: logger}
}

// Start connects to the system bus, requests BusName, and exports the
// service at ObjectPath. Use Close to release both.
func (s *Service) Start() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("control: connect to system bus: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("control: request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("control: bus name %s already owned", BusName)
	}

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		conn.Close()
		return fmt.Errorf("control: export methods: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return fmt.Errorf("control: export introspection: %w", err)
	}

	level.Info(s.logger).Log("message", "control surface listening", "bus_name", BusName, "object_path", ObjectPath)
	s.conn = conn
	return nil
}

// Close releases the bus connection.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func invalidErr(reason string) *dbus.Error {
	return dbus.NewError(errInvalid, []interface{}{reason})
}

// Status implements spec.md §6.2's status request: whether the engine
// is online, its own pid (the "main" process in occtl.c's terms), the
// auth-helper pid (always 0 — authentication is out of this engine's
// scope per spec.md §1, so there is no such process to report), and the
// live session count.
func (s *Service) Status() (online bool, mainPid uint32, authHelperPid uint32, clientCount uint32, dbusErr *dbus.Error) {
	var n int
	s.sup.Dispatch(func() { n = len(s.sup.Registry().List()) })
	return true, uint32(os.Getpid()), 0, uint32(n), nil
}

// ListUsers implements spec.md §6.2's list request.
func (s *Service) ListUsers() ([]session.Tuple, *dbus.Error) {
	var out []session.Tuple
	s.sup.Dispatch(func() {
		for _, sess := range s.sup.Registry().List() {
			out = append(out, sess.ToTuple())
		}
	})
	return out, nil
}

// UserInfo implements spec.md §6.2's user_info request: every session
// owned by username, which may legitimately be more than one.
func (s *Service) UserInfo(username string) ([]session.Tuple, *dbus.Error) {
	if username == "" {
		return nil, invalidErr("username must not be empty")
	}
	var out []session.Tuple
	s.sup.Dispatch(func() {
		for _, sess := range s.sup.Registry().ByUsername(username) {
			out = append(out, sess.ToTuple())
		}
	})
	if len(out) == 0 {
		return nil, invalidErr("no such user")
	}
	return out, nil
}

// IDInfo implements spec.md §6.2's id_info request.
func (s *Service) IDInfo(id uint32) (session.Tuple, *dbus.Error) {
	var (
		t  session.Tuple
		ok bool
	)
	s.sup.Dispatch(func() {
		var sess *session.Session
		sess, ok = s.sup.Registry().ByID(id)
		if ok {
			t = sess.ToTuple()
		}
	})
	if !ok {
		return session.Tuple{}, invalidErr("no such session id")
	}
	return t, nil
}

// DisconnectUser implements spec.md §6.2's disconnect_name request.
func (s *Service) DisconnectUser(username string) (bool, *dbus.Error) {
	if username == "" {
		return false, invalidErr("username must not be empty")
	}
	var ok bool
	s.sup.Dispatch(func() { ok = s.sup.DisconnectByUsername(username) })
	return ok, nil
}

// DisconnectID implements spec.md §6.2's disconnect_id request.
func (s *Service) DisconnectID(id uint32) (bool, *dbus.Error) {
	var ok bool
	s.sup.Dispatch(func() { ok = s.sup.DisconnectByID(id) })
	return ok, nil
}

// Reload implements spec.md §6.2's reload request.
func (s *Service) Reload() (bool, *dbus.Error) {
	if s.onReload == nil {
		return true, nil
	}
	if err := s.onReload(); err != nil {
		level.Error(s.logger).Log("message", "reload failed", "error", err)
		return false, invalidErr(err.Error())
	}
	return true, nil
}

// Stop implements spec.md §6.2's stop request, triggering onStop
// (normally cmd/ocservd's context cancellation, which drives
// Supervisor.Run's shutdown drain).
func (s *Service) Stop() (bool, *dbus.Error) {
	level.Info(s.logger).Log("message", "stop requested over control surface")
	if s.onStop != nil {
		s.onStop()
	}
	return true, nil
}
