package session

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func testConfig() *Config {
	return &Config{
		ConnectScriptPath:    "/etc/ocserv/connect.sh",
		DisconnectScriptPath: "/etc/ocserv/disconnect.sh",
	}
}

func testSession() *Session {
	return &Session{
		ID:        1,
		WorkerPid: 4242,
		Username:  "alice",
		Groupname: "staff",
		Hostname:  "client-1",
		Device:    "vpns0",
		IPv4: &Lease{
			Local:  net.ParseIP("10.0.0.1"),
			Remote: net.ParseIP("10.0.0.2"),
		},
	}
}

func TestBindBasicFields(t *testing.T) {
	b, err := Bind(testConfig(), testSession(), Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	cases := map[string]string{
		"USERNAME":  "alice",
		"GROUPNAME": "staff",
		"HOSTNAME":  "client-1",
		"DEVICE":    "vpns0",
		"REASON":    "connect",
		"IP_LOCAL":  "10.0.0.1",
		"IP_REMOTE": "10.0.0.2",
	}
	for name, want := range cases {
		got, ok := b.Lookup(name)
		if !ok {
			t.Errorf("missing binding %s", name)
			continue
		}
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestBindIPv4WinsOverIPv6WhenBothPresent(t *testing.T) {
	s := testSession()
	s.IPv6 = &IPv6Lease{
		Lease: Lease{
			Local:  net.ParseIP("fd00::1"),
			Remote: net.ParseIP("fd00::2"),
		},
		PrefixLength: 64,
	}

	b, err := Bind(testConfig(), s, Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if got, _ := b.Lookup("IP_LOCAL"); got != "10.0.0.1" {
		t.Errorf("IP_LOCAL = %q, want the IPv4 lease to win", got)
	}
	if got, _ := b.Lookup("IP_REMOTE"); got != "10.0.0.2" {
		t.Errorf("IP_REMOTE = %q, want the IPv4 lease to win", got)
	}
	if got, _ := b.Lookup("IPV6_LOCAL"); got != "fd00::1" {
		t.Errorf("IPV6_LOCAL = %q, want the IPv6-specific binding to still be present", got)
	}
	if b.Len() != countDistinctNames(b) {
		t.Errorf("Bindings order/value maps disagree on length")
	}
}

func TestBindPureIPv6SessionPromotesIPv6(t *testing.T) {
	s := testSession()
	s.IPv4 = nil
	s.IPv6 = &IPv6Lease{
		Lease: Lease{
			Local:  net.ParseIP("fd00::1"),
			Remote: net.ParseIP("fd00::2"),
		},
		PrefixLength: 64,
	}

	b, err := Bind(testConfig(), s, Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if got, _ := b.Lookup("IP_LOCAL"); got != "fd00::1" {
		t.Errorf("IP_LOCAL = %q, want the IPv6 lease to be primary in a pure-IPv6 session", got)
	}
}

func TestBindRoutesClassification(t *testing.T) {
	cfg := testConfig()
	cfg.Routes = []string{"192.168.1.0/24", "fd00:1::/64"}

	b, err := Bind(cfg, testSession(), Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if got, _ := b.Lookup("OCSERV_ROUTES4"); !strings.Contains(got, "192.168.1.0/24") {
		t.Errorf("OCSERV_ROUTES4 = %q, missing the v4 route", got)
	}
	if got, _ := b.Lookup("OCSERV_ROUTES6"); !strings.Contains(got, "fd00:1::/64") {
		t.Errorf("OCSERV_ROUTES6 = %q, missing the v6 route", got)
	}
	all, ok := b.Lookup("OCSERV_ROUTES")
	if !ok {
		t.Fatalf("OCSERV_ROUTES missing")
	}
	if !strings.Contains(all, "192.168.1.0/24") || !strings.Contains(all, "fd00:1::/64") {
		t.Errorf("OCSERV_ROUTES = %q, want both routes present", all)
	}
}

func TestBindEmptyRoutesOmitAllThreeBindings(t *testing.T) {
	b, err := Bind(testConfig(), testSession(), Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	for _, name := range []string{"OCSERV_ROUTES4", "OCSERV_ROUTES6", "OCSERV_ROUTES"} {
		if _, ok := b.Lookup(name); ok {
			t.Errorf("%s bound despite an empty route list", name)
		}
	}
}

func TestBindDNSOverrideReplacesRatherThanConcatenates(t *testing.T) {
	cfg := testConfig()
	cfg.DNS = []string{"8.8.8.8"}

	s := testSession()
	s.Overrides.DNS = []string{"9.9.9.9"}

	b, err := Bind(cfg, s, Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	got, _ := b.Lookup("OCSERV_DNS")
	if strings.Contains(got, "8.8.8.8") {
		t.Errorf("OCSERV_DNS = %q, the group DNS override should replace the global list, not extend it", got)
	}
	if !strings.Contains(got, "9.9.9.9") {
		t.Errorf("OCSERV_DNS = %q, missing the override", got)
	}
}

func TestBindFirewallWrapperSetsNextScript(t *testing.T) {
	cfg := testConfig()
	cfg.FirewallWrapperScriptPath = "/etc/ocserv/fw-wrapper.sh"

	s := testSession()
	s.Overrides.RestrictUserToRoutes = true

	b, err := Bind(cfg, s, Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if got, _ := b.Lookup("OCSERV_NEXT_SCRIPT"); got != cfg.ConnectScriptPath {
		t.Errorf("OCSERV_NEXT_SCRIPT = %q, want %q", got, cfg.ConnectScriptPath)
	}

	invoked, next := SelectScript(cfg, s.Overrides, Up)
	if invoked != cfg.FirewallWrapperScriptPath {
		t.Errorf("SelectScript invoked = %q, want the firewall wrapper", invoked)
	}
	if next != cfg.ConnectScriptPath {
		t.Errorf("SelectScript next = %q, want the original connect script", next)
	}
}

func TestBindFirewallWrapperUnsetLeavesNextScriptEmpty(t *testing.T) {
	cfg := testConfig()
	s := testSession()
	s.Overrides.RestrictUserToRoutes = true // no wrapper configured

	invoked, next := SelectScript(cfg, s.Overrides, Up)
	if invoked != cfg.ConnectScriptPath {
		t.Errorf("SelectScript invoked = %q, want the plain connect script", invoked)
	}
	if next != "" {
		t.Errorf("SelectScript next = %q, want empty when no wrapper is configured", next)
	}
}

func TestBindOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEnvValueBytes = 8
	cfg.Routes = []string{"192.168.1.0/24", "192.168.2.0/24"}

	_, err := Bind(cfg, testSession(), Up)
	if err == nil {
		t.Fatalf("Bind() with an oversized route list succeeded, want ErrBindingOverflow")
	}
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != ErrBindingOverflow {
		t.Errorf("Bind() error = %v, want ErrBindingOverflow", err)
	}
}

func TestBindWithDurationAddsStatsOnDownOnly(t *testing.T) {
	s := testSession() // s.ConnectTime is zero; BindWithDuration should skip STATS_DURATION

	b, err := BindWithDuration(testConfig(), s, Down, 0)
	if err != nil {
		t.Fatalf("BindWithDuration() error = %v", err)
	}
	if _, ok := b.Lookup("STATS_DURATION"); ok {
		t.Errorf("STATS_DURATION bound despite a zero ConnectTime")
	}
	if got, _ := b.Lookup("STATS_BYTES_IN"); got != "0" {
		t.Errorf("STATS_BYTES_IN = %q, want \"0\"", got)
	}

	bUp, err := Bind(testConfig(), s, Up)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if _, ok := bUp.Lookup("STATS_BYTES_IN"); ok {
		t.Errorf("STATS_BYTES_IN bound on an up-hook, want it only on down")
	}
}

func countDistinctNames(b *Bindings) int {
	seen := make(map[string]bool)
	for _, e := range b.Environ() {
		name := strings.SplitN(e, "=", 2)[0]
		seen[name] = true
	}
	return len(seen)
}
