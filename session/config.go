package session

import (
	"sync"

	"github.com/ocserv/sessiond/internal/uacc"
)

// defaultMaxEnvValueBytes bounds a single joined environment value
// (OCSERV_ROUTES and friends) consistent with typical ARG_MAX-derived
// environment size limits (spec.md §9, "Buffer sizing of joined
// strings"). It is deliberately conservative rather than equal to the
// full ARG_MAX, since many such values may be bound in one child.
const defaultMaxEnvValueBytes = 128 * 1024

// Config is the resolved configuration snapshot the session engine
// consumes (spec.md §3's "Configuration (snapshot)"). Parsing the full
// ocserv configuration grammar is out of scope; internal/config loads
// exactly these fields from a TOML file or string.
type Config struct {
	ConnectScriptPath         string
	DisconnectScriptPath      string
	FirewallWrapperScriptPath string
	UseAccounting             bool
	UaccPaths                 uacc.Paths

	// Network defaults: ordered CIDR/address lists, each self-classifying
	// as IPv4 vs IPv6 by the presence of a colon (spec.md §3).
	Routes   []string
	NoRoutes []string
	DNS      []string

	// MaxEnvValueBytes bounds a single joined environment value; 0 means
	// use defaultMaxEnvValueBytes.
	MaxEnvValueBytes int
}

func (c *Config) maxEnvValueBytes() int {
	if c.MaxEnvValueBytes > 0 {
		return c.MaxEnvValueBytes
	}
	return defaultMaxEnvValueBytes
}

// ConfigRef is a Config that may be swapped out at runtime by a
// configuration reload (spec.md §6.2's reload request). The components
// that consult configuration on each operation (HookRunner,
// AccountingWriter) hold a *ConfigRef rather than a bare *Config, so a
// reload takes effect for every subsequent operation without rebuilding
// those components; Supervisor holds the same *ConfigRef.
type ConfigRef struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewConfigRef returns a ConfigRef initialized to cfg.
func NewConfigRef(cfg *Config) *ConfigRef {
	return &ConfigRef{cfg: cfg}
}

// Load returns the current Config.
func (r *ConfigRef) Load() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Store replaces the current Config, taking effect for every operation
// started after Store returns.
func (r *ConfigRef) Store(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Overrides is the Per-Session Network Overrides of spec.md §3: routes,
// no-routes and DNS lists scoped to one user or group, plus the flag
// that interposes the firewall wrapper script.
type Overrides struct {
	Routes               []string
	NoRoutes             []string
	DNS                  []string
	RestrictUserToRoutes bool
}
