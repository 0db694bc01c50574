// Package uacc writes best-effort user-accounting ("utmp"/"wtmp") records
// describing session start and end, mirroring ocserv's own
// add_utmp_entry/remove_utmp_entry (original_source/src/main-user.c).
//
// No library in this corpus (or, to this module's knowledge, the public Go
// ecosystem) wraps the Linux utmpx host ABI the way glibc's utmpx.h does,
// so this package encodes the fixed-width record directly with
// encoding/binary. See DESIGN.md for the full justification.
package uacc

import (
	"encoding/binary"
	"net"
	"os"
	"time"
)

// Record types, matching <utmpx.h>.
const (
	typeUserProcess int16 = 7
	typeDeadProcess int16 = 8
)

const (
	lineSize = 32
	userSize = 32
	hostSize = 256
	idSize   = 4
	recordSize = 384
)

// Paths names the utmp and wtmp files to append records to. An empty
// field disables writes to that file.
type Paths struct {
	Utmp string
	Wtmp string
}

// DefaultPaths returns the conventional Linux locations.
func DefaultPaths() Paths {
	return Paths{Utmp: "/var/run/utmp", Wtmp: "/var/log/wtmp"}
}

// Entry is the subset of a session record this package needs in order to
// produce a utmp/wtmp entry.
type Entry struct {
	Pid        int
	Line       string // tunnel device name
	Username   string
	RemoteAddr net.Addr // may be nil
	When       time.Time
}

// Writer appends login ("user process") and logout ("dead process")
// records. All failures are logged and swallowed by the caller
// (session.AccountingWriter); Writer itself only reports them.
type Writer struct {
	paths Paths
}

// New returns a Writer for the given paths. Passing a zero Paths disables
// all writes, matching use-accounting=false.
func New(paths Paths) *Writer {
	return &Writer{paths: paths}
}

// Login appends a USER_PROCESS record to utmp and wtmp.
func (w *Writer) Login(e Entry) error {
	return w.append(e, typeUserProcess)
}

// Logout appends a DEAD_PROCESS record to utmp and wtmp.
func (w *Writer) Logout(e Entry) error {
	return w.append(e, typeDeadProcess)
}

func (w *Writer) append(e Entry, typ int16) error {
	rec := encode(e, typ)

	var firstErr error
	for _, path := range []string{w.paths.Utmp, w.paths.Wtmp} {
		if path == "" {
			continue
		}
		if err := appendRecord(path, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func appendRecord(path string, rec []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0664)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(rec)
	return err
}

func encode(e Entry, typ int16) []byte {
	buf := make([]byte, recordSize)
	o := 0

	binary.LittleEndian.PutUint16(buf[o:], uint16(typ))
	o += 4 // type (2) + 2 bytes padding, matching struct alignment of pid below

	binary.LittleEndian.PutUint32(buf[o:], uint32(e.Pid))
	o += 4

	copy(buf[o:o+lineSize], []byte(e.Line))
	o += lineSize

	o += idSize // inode id field, unused here

	copy(buf[o:o+userSize], []byte(e.Username))
	o += userSize

	host := addrHost(e.RemoteAddr)
	copy(buf[o:o+hostSize], []byte(host))
	o += hostSize

	o += 2 * 2 // exit.termination, exit.exit
	o += 4     // session id

	sec := e.When.Unix()
	usec := int64(e.When.Nanosecond() / 1000)
	binary.LittleEndian.PutUint32(buf[o:], uint32(sec))
	o += 4
	binary.LittleEndian.PutUint32(buf[o:], uint32(usec))
	o += 4

	// addr_v6[4]: the peer's numeric address, IPv4 in the first word or
	// the full 16 bytes for IPv6 (spec.md §4.1). Left zeroed when the
	// peer address is unknown or unparsable.
	if ip := addrIP(e.RemoteAddr); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			copy(buf[o:o+4], ip4)
		} else if ip16 := ip.To16(); ip16 != nil {
			copy(buf[o:o+16], ip16)
		}
	}
	o += 16
	o += 20 // unused

	return buf
}

func addrHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// addrIP parses the numeric host out of addr, for the fixed-width
// addr_v6 field. Returns nil if addr is nil or its host isn't a literal
// IP address (e.g. an unresolved hostname).
func addrIP(addr net.Addr) net.IP {
	return net.ParseIP(addrHost(addr))
}
