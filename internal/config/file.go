package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML config file shape. Every field is optional;
// environment variables override whatever the file sets.
type fileConfig struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Provider string `yaml:"provider"`
	Zone     string `yaml:"zone"`
	Mode     string `yaml:"mode"`

	Traefik struct {
		APIURL string   `yaml:"api_url"`
		Files  []string `yaml:"files"`
	} `yaml:"traefik"`
	DockerHost string `yaml:"docker_host"`

	PollIntervalMS           int `yaml:"poll_interval_ms"`
	CleanupIntervalMS        int `yaml:"cleanup_interval_ms"`
	CacheTTLMinutes          int `yaml:"cache_ttl_minutes"`
	IPRefreshIntervalMS      int `yaml:"ip_refresh_interval_ms"`
	CleanupGracePeriodMinute int `yaml:"cleanup_grace_period_minutes"`

	DefaultTTL         int      `yaml:"default_ttl"`
	PreservedHostnames []string `yaml:"preserved_hostnames"`
	ManagedHostnames   []string `yaml:"managed_hostnames"`

	IPEchoURL   string `yaml:"ip_echo_url"`
	IPv6EchoURL string `yaml:"ipv6_echo_url"`

	DataDir    string `yaml:"data_dir"`
	DryRun     *bool  `yaml:"dry_run"`
	HealthPort int    `yaml:"health_port"`

	// Providers carries per-provider config maps, e.g.
	// providers.cloudflare.api_token. Keys are uppercased on load to
	// match the environment variable form.
	Providers map[string]map[string]string `yaml:"providers"`
}

// loadFile parses the YAML config file at path. A missing file is only an
// error when the path was explicitly configured.
func loadFile(path string, explicit bool) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &fc, nil
}
