// Package config loads and validates process configuration from
// environment variables, optionally merged over a YAML config file.
// Environment variables always win.
package config

import (
	"fmt"
	"time"
)

// Defaults for the periodic machinery. Intervals follow the environment
// variable units (_MS suffix means milliseconds, _MINUTES means minutes).
const (
	DefaultPollInterval      = 60 * time.Second
	MinPollInterval          = 5 * time.Second
	DefaultCacheTTL          = 60 * time.Minute
	DefaultIPRefreshInterval = 5 * time.Minute
	DefaultGracePeriod       = 15 * time.Minute
	DefaultRecordTTL         = 300
	DefaultHealthPort        = 8080
	DefaultDataDir           = "/var/lib/zonewarden"
	DefaultIPEchoURL         = "https://api.ipify.org"
	DefaultIPv6EchoURL       = "https://api6.ipify.org"
)

// OperationMode selects the hostname source.
type OperationMode string

const (
	// ModeProxy polls the reverse proxy API for router host rules.
	ModeProxy OperationMode = "proxy"
	// ModeDirect lists containers and reads their labels directly.
	ModeDirect OperationMode = "direct"
)

// Config is the process-wide, read-mostly configuration. It is loaded
// once at startup; the managed and preserved lists are additionally
// reloadable at runtime through the control surface.
type Config struct {
	// Logging
	LogLevel  string // error, warn, info, debug, trace
	LogFormat string // json, text

	// Provider selection and zone
	Provider string // adapter type name (cloudflare, technitium, ...)
	Zone     string // canonical zone name

	// Hostname source
	Mode          OperationMode
	TraefikAPIURL string
	TraefikFiles  []string // optional dynamic-config YAML files
	DockerHost    string

	// Periodic machinery
	PollInterval      time.Duration
	CleanupInterval   time.Duration
	CacheTTL          time.Duration
	IPRefreshInterval time.Duration
	GracePeriod       time.Duration

	// Record defaults and safety lists
	DefaultTTL         int
	PreservedHostnames []string
	ManagedHostnames   []string

	// Public IP discovery
	IPEchoURL   string
	IPv6EchoURL string

	// Process
	DataDir    string
	DryRun     bool
	HealthPort int

	// providerEnv holds the per-provider credential/config maps keyed by
	// provider type, collected from PROVIDERTYPE_* environment variables
	// and the config file.
	providerEnv map[string]map[string]string
}

// ProviderConfig returns the credential/config map for a provider type.
// Keys are uppercase with the provider prefix stripped (API_TOKEN, ZONE).
// The zone falls back to the global Zone when the provider config does
// not carry its own.
func (c *Config) ProviderConfig(typeName string) map[string]string {
	cfg := make(map[string]string)
	for k, v := range c.providerEnv[typeName] {
		cfg[k] = v
	}
	if cfg["ZONE"] == "" {
		cfg["ZONE"] = c.Zone
	}
	return cfg
}

// String returns a loggable summary with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf("provider=%s zone=%s mode=%s poll=%s grace=%s dry_run=%t",
		c.Provider, c.Zone, c.Mode, c.PollInterval, c.GracePeriod, c.DryRun)
}
