// Package config loads the subset of ocserv's server configuration this
// engine consumes: global script paths and routing defaults, plus
// per-group overrides, from a TOML snapshot (spec.md §3's
// "Configuration (snapshot)").
package config

import (
	"fmt"

	"github.com/pelletier/go-toml"

	"github.com/ocserv/sessiond/session"
)

// Config is the parsed configuration snapshot: the engine-wide Config
// plus a name-indexed table of per-group Overrides.
type Config struct {
	Session *session.Config
	Groups  map[string]session.Overrides
}

func toBool(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("supplied value could not be parsed as a bool")
}

func toString(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("supplied value could not be parsed as a string")
}

func toInt(v interface{}) (int, error) {
	if b, ok := v.(int64); ok {
		return int(b), nil
	}
	if b, ok := v.(uint64); ok {
		return int(b), nil
	}
	return 0, fmt.Errorf("unexpected %T value %v", v, v)
}

func toStringSlice(v interface{}) ([]string, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array of strings")
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		s, err := toString(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func loadServer(scfg map[string]interface{}, cfg *session.Config) error {
	for k, v := range scfg {
		var err error
		switch k {
		case "use-accounting":
			cfg.UseAccounting, err = toBool(v)
		case "connect-script":
			cfg.ConnectScriptPath, err = toString(v)
		case "disconnect-script":
			cfg.DisconnectScriptPath, err = toString(v)
		case "firewall-wrapper-script":
			cfg.FirewallWrapperScriptPath, err = toString(v)
		case "max-env-value-bytes":
			cfg.MaxEnvValueBytes, err = toInt(v)
		case "utmp-path":
			cfg.UaccPaths.Utmp, err = toString(v)
		case "wtmp-path":
			cfg.UaccPaths.Wtmp, err = toString(v)
		default:
			return fmt.Errorf("unrecognised server parameter %q", k)
		}
		if err != nil {
			return fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return nil
}

func loadRoutes(rcfg map[string]interface{}, cfg *session.Config) error {
	for k, v := range rcfg {
		var err error
		switch k {
		case "route":
			cfg.Routes, err = toStringSlice(v)
		case "no-route":
			cfg.NoRoutes, err = toStringSlice(v)
		case "dns":
			cfg.DNS, err = toStringSlice(v)
		default:
			return fmt.Errorf("unrecognised routes parameter %q", k)
		}
		if err != nil {
			return fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return nil
}

func newGroupOverrides(gcfg map[string]interface{}) (session.Overrides, error) {
	var o session.Overrides
	for k, v := range gcfg {
		var err error
		switch k {
		case "route":
			o.Routes, err = toStringSlice(v)
		case "no-route":
			o.NoRoutes, err = toStringSlice(v)
		case "dns":
			o.DNS, err = toStringSlice(v)
		case "restrict-user-to-routes":
			o.RestrictUserToRoutes, err = toBool(v)
		default:
			return o, fmt.Errorf("unrecognised parameter %q", k)
		}
		if err != nil {
			return o, fmt.Errorf("failed to process %v: %v", k, err)
		}
	}
	return o, nil
}

func loadGroups(v interface{}) (map[string]session.Overrides, error) {
	groups, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("group instances must be named, e.g. '[group.staff]'")
	}
	out := make(map[string]session.Overrides, len(groups))
	for name, got := range groups {
		gmap, ok := got.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("config for group %v isn't a map", name)
		}
		o, err := newGroupOverrides(gmap)
		if err != nil {
			return nil, fmt.Errorf("group %v: %v", name, err)
		}
		out[name] = o
	}
	return out, nil
}

func newConfig(tree *toml.Tree) (*Config, error) {
	cm := tree.ToMap()
	cfg := &Config{
		Session: &session.Config{},
		Groups:  make(map[string]session.Overrides),
	}

	if got, ok := cm["server"]; ok {
		scfg, ok := got.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("'server' must be a table")
		}
		if err := loadServer(scfg, cfg.Session); err != nil {
			return nil, fmt.Errorf("failed to parse server: %v", err)
		}
	}

	if got, ok := cm["routes"]; ok {
		rcfg, ok := got.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("'routes' must be a table")
		}
		if err := loadRoutes(rcfg, cfg.Session); err != nil {
			return nil, fmt.Errorf("failed to parse routes: %v", err)
		}
	}

	if got, ok := cm["group"]; ok {
		groups, err := loadGroups(got)
		if err != nil {
			return nil, fmt.Errorf("failed to parse groups: %v", err)
		}
		cfg.Groups = groups
	}

	return cfg, nil
}

// LoadFile loads a configuration snapshot from the named TOML file.
func LoadFile(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}
	return newConfig(tree)
}

// LoadString loads a configuration snapshot from a TOML document,
// primarily for tests.
func LoadString(content string) (*Config, error) {
	tree, err := toml.Load(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load config string: %v", err)
	}
	return newConfig(tree)
}

// OverridesFor returns the Overrides configured for group, or the zero
// value if the group has no dedicated table.
func (c *Config) OverridesFor(group string) session.Overrides {
	return c.Groups[group]
}
