// Package dnsmasq adapts a dnsmasq instance to the provider contract by
// managing a dedicated configuration fragment over SSH.
package dnsmasq

import (
	"strconv"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/sshutil"
)

// DefaultReloadCommand restarts dnsmasq after a fragment rewrite.
// SIGHUP does not reread address directives, so a restart is required.
const DefaultReloadCommand = "systemctl restart dnsmasq"

// Config holds the SSH target and the managed fragment location.
type Config struct {
	Zone string

	// ConfigPath is the fragment this adapter owns, typically under
	// /etc/dnsmasq.d/. The whole file is rewritten on every change.
	ConfigPath string

	// ReloadCommand runs after each write. Empty disables reloading.
	ReloadCommand string

	SSH sshutil.Config
}

// ConfigFromMap builds a Config from the provider's environment map.
func ConfigFromMap(m map[string]string) (Config, error) {
	cfg := Config{
		Zone:          m["ZONE"],
		ConfigPath:    m["CONFIG_PATH"],
		ReloadCommand: m["RELOAD_COMMAND"],
		SSH: sshutil.Config{
			Host:           m["SSH_HOST"],
			User:           m["SSH_USER"],
			Password:       m["SSH_PASSWORD"],
			KeyFile:        m["SSH_KEY_FILE"],
			KeyData:        m["SSH_KEY"],
			KeyPassphrase:  m["SSH_KEY_PASSPHRASE"],
			KnownHostsFile: m["SSH_KNOWN_HOSTS"],
			Timeout:        15 * time.Second,
		},
	}
	if v := m["SSH_PORT"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, provider.ErrConfigInvalid("DNSMASQ_SSH_PORT", v, "must be a port number")
		}
		cfg.SSH.Port = port
	}

	if cfg.Zone == "" {
		return Config{}, provider.ErrConfigMissing("DNSMASQ_ZONE")
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = "/etc/dnsmasq.d/zonewarden.conf"
	}
	if cfg.ReloadCommand == "" {
		cfg.ReloadCommand = DefaultReloadCommand
	}
	if cfg.SSH.Host == "" {
		return Config{}, provider.ErrConfigMissing("DNSMASQ_SSH_HOST")
	}
	if cfg.SSH.User == "" {
		return Config{}, provider.ErrConfigMissing("DNSMASQ_SSH_USER")
	}
	return cfg, nil
}
