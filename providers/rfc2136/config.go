// Package rfc2136 adapts RFC 2136 dynamic updates (BIND, Knot, and
// compatible servers) to the provider contract.
package rfc2136

import (
	"strconv"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsupdate"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// Config holds the server address, zone, and TSIG key.
type Config struct {
	Server string
	Port   int
	Zone   string
	TCP    bool

	TSIGKeyName   string
	TSIGSecret    string
	TSIGAlgorithm string
}

// ConfigFromMap builds a Config from the provider's environment map.
func ConfigFromMap(m map[string]string) (Config, error) {
	cfg := Config{
		Server:        m["SERVER"],
		Zone:          m["ZONE"],
		TSIGKeyName:   m["TSIG_KEY_NAME"],
		TSIGSecret:    m["TSIG_SECRET"],
		TSIGAlgorithm: m["TSIG_ALGORITHM"],
	}
	if v := m["PORT"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, provider.ErrConfigInvalid("RFC2136_PORT", v, "must be a port number")
		}
		cfg.Port = port
	}
	if v := m["USE_TCP"]; v != "" {
		tcp, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, provider.ErrConfigInvalid("RFC2136_USE_TCP", v, "must be a boolean")
		}
		cfg.TCP = tcp
	}

	if cfg.Server == "" {
		return Config{}, provider.ErrConfigMissing("RFC2136_SERVER")
	}
	if cfg.Zone == "" {
		return Config{}, provider.ErrConfigMissing("RFC2136_ZONE")
	}
	// TSIG is optional as a whole but must be complete when present.
	if (cfg.TSIGKeyName == "") != (cfg.TSIGSecret == "") {
		return Config{}, provider.ErrConfigInvalid("RFC2136_TSIG_KEY_NAME", cfg.TSIGKeyName,
			"key name and secret must be set together")
	}
	return cfg, nil
}

// updateConfig translates to the dnsupdate client configuration.
func (c Config) updateConfig() (dnsupdate.Config, error) {
	cfg := dnsupdate.Config{
		Server: c.Server,
		Port:   c.Port,
		Zone:   c.Zone,
		TCP:    c.TCP,
	}
	if c.TSIGKeyName != "" {
		tsig, err := dnsupdate.NewTSIG(c.TSIGKeyName, c.TSIGSecret, c.TSIGAlgorithm)
		if err != nil {
			return dnsupdate.Config{}, err
		}
		cfg.TSIG = tsig
	}
	return cfg, nil
}
