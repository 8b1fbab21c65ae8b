// Package cloudflare adapts the Cloudflare DNS API to the provider
// contract.
package cloudflare

import (
	"strconv"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// Config holds the Cloudflare credentials and zone selection.
type Config struct {
	// APIToken is a scoped API token with DNS edit permission.
	APIToken string

	// Zone is the zone name. Ignored when ZoneID is set.
	Zone string

	// ZoneID skips the zone name lookup when provided.
	ZoneID string

	// Proxied is the default proxied state for created records when the
	// intent does not carry an explicit flag.
	Proxied bool
}

// ConfigFromMap builds a Config from the provider's environment map
// (CLOUDFLARE_* variables with the prefix stripped).
func ConfigFromMap(m map[string]string) (Config, error) {
	cfg := Config{
		APIToken: m["API_TOKEN"],
		Zone:     m["ZONE"],
		ZoneID:   m["ZONE_ID"],
	}
	if v := m["PROXIED"]; v != "" {
		proxied, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, provider.ErrConfigInvalid("PROXIED", v, "must be a boolean")
		}
		cfg.Proxied = proxied
	}

	if cfg.APIToken == "" {
		return Config{}, provider.ErrConfigMissing("CLOUDFLARE_API_TOKEN")
	}
	if cfg.Zone == "" && cfg.ZoneID == "" {
		return Config{}, provider.ErrConfigMissing("CLOUDFLARE_ZONE")
	}
	return cfg, nil
}
