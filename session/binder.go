package session

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

var (
	errNilLeaseAddr  = errors.New("lease address is unset")
	errValueTooLarge = errors.New("joined value exceeds configured ceiling")
)

// Binding is one (name, value) environment pair.
type Binding struct {
	Name  string
	Value string
}

// Bindings is the ordered set of environment bindings the Environment
// Binder produces for one hook invocation. Order is insertion order,
// with later Set calls for the same name overwriting the value in
// place — the direct analogue of ocserv's repeated setenv(name, val, 1)
// calls in main-user.c's call_script, which is why IP_LOCAL/IP_REMOTE
// can be set once for an IPv6 lease and then overwritten for an IPv4
// lease without producing two environment entries for the same name.
type Bindings struct {
	order  []string
	values map[string]string
}

func newBindings() *Bindings {
	return &Bindings{values: make(map[string]string)}
}

// Set assigns name=value, appending name to the order the first time it
// is used and overwriting the value (in place) on subsequent calls.
func (b *Bindings) Set(name, value string) {
	if _, ok := b.values[name]; !ok {
		b.order = append(b.order, name)
	}
	b.values[name] = value
}

// Lookup returns the bound value for name, if any.
func (b *Bindings) Lookup(name string) (string, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Len returns the number of distinct bound names.
func (b *Bindings) Len() int { return len(b.order) }

// Environ renders the bindings as NAME=VALUE pairs suitable for
// exec.Cmd.Env, in insertion order.
func (b *Bindings) Environ() []string {
	out := make([]string, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, name+"="+b.values[name])
	}
	return out
}

// SelectScript implements spec.md §4.2/§4.3's script selection: the
// configured connect/disconnect script for dir, with the firewall
// wrapper interposed (and the original script carried as "next") when
// restrict-user-to-routes is set and a wrapper is configured.
//
// invoked is the path the Hook Runner should exec; next is the value to
// bind as OCSERV_NEXT_SCRIPT, empty when no wrapper is interposed.
func SelectScript(cfg *Config, overrides Overrides, dir Direction) (invoked, next string) {
	script := cfg.ConnectScriptPath
	if dir == Down {
		script = cfg.DisconnectScriptPath
	}

	if overrides.RestrictUserToRoutes && cfg.FirewallWrapperScriptPath != "" {
		return cfg.FirewallWrapperScriptPath, script
	}
	return script, ""
}

// Bind computes the environment for one hook invocation. It is a pure
// function of its inputs (spec.md §3's purity invariant): equal
// (cfg, sess, dir) triples always yield equal Bindings.
func Bind(cfg *Config, s *Session, dir Direction) (*Bindings, error) {
	b := newBindings()

	b.Set("ID", strconv.Itoa(s.WorkerPid))
	b.Set("USERNAME", s.Username)
	b.Set("GROUPNAME", s.Groupname)
	b.Set("HOSTNAME", s.Hostname)
	b.Set("DEVICE", s.Device)
	b.Set("REASON", dir.Reason())

	if s.RemoteAddr != nil {
		if host := numericHost(s.RemoteAddr); host != "" {
			b.Set("IP_REAL", host)
		}
	}
	if s.OurAddr != nil {
		if host := numericHost(s.OurAddr); host != "" {
			b.Set("IP_REAL_LOCAL", host)
		}
	}

	// In-tunnel addresses. Process IPv6 first so that, per spec.md §9's
	// resolved Open Question, an IPv4 lease (processed second) always
	// wins the primary IP_LOCAL/IP_REMOTE bindings when both are
	// present; IPv6 is promoted to primary only in a pure-IPv6 session.
	if s.IPv6 != nil {
		local, err := renderLeaseAddr(s.IPv6.Local)
		if err != nil {
			return nil, newError(ErrAddrRender, "bind: ipv6 local", err)
		}
		remote, err := renderLeaseAddr(s.IPv6.Remote)
		if err != nil {
			return nil, newError(ErrAddrRender, "bind: ipv6 remote", err)
		}
		b.Set("IP_LOCAL", local)
		b.Set("IP_REMOTE", remote)
		b.Set("IPV6_LOCAL", local)
		b.Set("IPV6_REMOTE", remote)
		b.Set("IPV6_PREFIX", strconv.Itoa(s.IPv6.PrefixLength))
	}
	if s.IPv4 != nil {
		local, err := renderLeaseAddr(s.IPv4.Local)
		if err != nil {
			return nil, newError(ErrAddrRender, "bind: ipv4 local", err)
		}
		remote, err := renderLeaseAddr(s.IPv4.Remote)
		if err != nil {
			return nil, newError(ErrAddrRender, "bind: ipv4 remote", err)
		}
		b.Set("IP_LOCAL", local)
		b.Set("IP_REMOTE", remote)
	}

	if err := bindCategory(b, cfg.maxEnvValueBytes(),
		append(append([]string{}, cfg.Routes...), s.Overrides.Routes...),
		"OCSERV_ROUTES4", "OCSERV_ROUTES6", "OCSERV_ROUTES"); err != nil {
		return nil, err
	}
	if err := bindCategory(b, cfg.maxEnvValueBytes(),
		append(append([]string{}, cfg.NoRoutes...), s.Overrides.NoRoutes...),
		"OCSERV_NO_ROUTES4", "OCSERV_NO_ROUTES6", "OCSERV_NO_ROUTES"); err != nil {
		return nil, err
	}
	dns := cfg.DNS
	if len(s.Overrides.DNS) > 0 {
		dns = s.Overrides.DNS
	}
	if err := bindCategory(b, cfg.maxEnvValueBytes(), dns,
		"OCSERV_DNS4", "OCSERV_DNS6", "OCSERV_DNS"); err != nil {
		return nil, err
	}

	if dir == Down {
		b.Set("STATS_BYTES_IN", strconv.FormatUint(s.BytesIn, 10))
		b.Set("STATS_BYTES_OUT", strconv.FormatUint(s.BytesOut, 10))
		// STATS_DURATION needs time.Now(), so it is left to
		// BindWithDuration in order to keep Bind itself pure.
	}

	_, next := SelectScript(cfg, s.Overrides, dir)
	if next != "" {
		b.Set("OCSERV_NEXT_SCRIPT", next)
	}

	return b, nil
}

// BindWithDuration is Bind plus the STATS_DURATION binding for a down
// hook, computed by the caller (session.HookRunner) as
// now.Sub(s.ConnectTime) so Bind itself never calls time.Now and stays
// a pure function of its arguments.
func BindWithDuration(cfg *Config, s *Session, dir Direction, durationSeconds int64) (*Bindings, error) {
	b, err := Bind(cfg, s, dir)
	if err != nil {
		return nil, err
	}
	if dir == Down && !s.ConnectTime.IsZero() && durationSeconds > 0 {
		b.Set("STATS_DURATION", strconv.FormatInt(durationSeconds, 10))
	}
	return b, nil
}

func renderLeaseAddr(ip net.IP) (string, error) {
	if ip == nil {
		return "", errNilLeaseAddr
	}
	s := ip.String()
	if s == "" || s == "<nil>" {
		return "", errNilLeaseAddr
	}
	return s, nil
}

// bindCategory implements spec.md §4.2's dual-stack aggregation: up to
// three space-joined strings (v4-only, v6-only, combined), classified by
// the textual-colon test, omitted entirely when empty.
func bindCategory(b *Bindings, maxBytes int, list []string, name4, name6, nameAll string) error {
	var b4, b6, ball strings.Builder
	for _, e := range list {
		ball.WriteString(e)
		ball.WriteString(" ")
		if strings.Contains(e, ":") {
			b6.WriteString(e)
			b6.WriteString(" ")
		} else {
			b4.WriteString(e)
			b4.WriteString(" ")
		}
	}
	if ball.Len() > maxBytes {
		return newError(ErrBindingOverflow, "bind: "+nameAll, errValueTooLarge)
	}
	if b4.Len() > 0 {
		b.Set(name4, b4.String())
	}
	if b6.Len() > 0 {
		b.Set(name6, b6.String())
	}
	if ball.Len() > 0 {
		b.Set(nameAll, ball.String())
	}
	return nil
}
