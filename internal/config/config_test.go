package config

import "testing"

const testDoc = `
[server]
use-accounting = true
connect-script = "/etc/ocserv/connect.sh"
disconnect-script = "/etc/ocserv/disconnect.sh"
firewall-wrapper-script = "/etc/ocserv/fw-wrapper.sh"
max-env-value-bytes = 4096

[routes]
route = ["192.168.1.0/24", "fd00:1::/64"]
no-route = ["192.168.2.0/24"]
dns = ["8.8.8.8"]

[group.staff]
route = ["10.10.0.0/16"]
restrict-user-to-routes = true
`

func TestLoadStringServerAndRoutes(t *testing.T) {
	cfg, err := LoadString(testDoc)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	if !cfg.Session.UseAccounting {
		t.Errorf("UseAccounting = false, want true")
	}
	if cfg.Session.ConnectScriptPath != "/etc/ocserv/connect.sh" {
		t.Errorf("ConnectScriptPath = %q", cfg.Session.ConnectScriptPath)
	}
	if cfg.Session.MaxEnvValueBytes != 4096 {
		t.Errorf("MaxEnvValueBytes = %d, want 4096", cfg.Session.MaxEnvValueBytes)
	}
	if len(cfg.Session.Routes) != 2 {
		t.Errorf("Routes = %v, want 2 entries", cfg.Session.Routes)
	}
	if len(cfg.Session.DNS) != 1 || cfg.Session.DNS[0] != "8.8.8.8" {
		t.Errorf("DNS = %v", cfg.Session.DNS)
	}
}

func TestLoadStringGroupOverrides(t *testing.T) {
	cfg, err := LoadString(testDoc)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	o := cfg.OverridesFor("staff")
	if !o.RestrictUserToRoutes {
		t.Errorf("RestrictUserToRoutes = false, want true for group 'staff'")
	}
	if len(o.Routes) != 1 || o.Routes[0] != "10.10.0.0/16" {
		t.Errorf("Routes = %v", o.Routes)
	}

	empty := cfg.OverridesFor("no-such-group")
	if empty.RestrictUserToRoutes || len(empty.Routes) != 0 {
		t.Errorf("OverridesFor on an unknown group = %+v, want the zero value", empty)
	}
}

func TestLoadStringRejectsUnrecognisedParameter(t *testing.T) {
	_, err := LoadString(`
[server]
bogus-parameter = true
`)
	if err == nil {
		t.Fatalf("LoadString() with an unrecognised parameter succeeded, want an error")
	}
}
