package traefik

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// dynamicConfig is the subset of a Traefik dynamic configuration file we
// read: HTTP routers and their rules.
type dynamicConfig struct {
	HTTP struct {
		Routers map[string]struct {
			Rule string `yaml:"rule"`
		} `yaml:"routers"`
	} `yaml:"http"`
}

// hostsFromDynamicFile extracts Host() hostnames from a dynamic-config
// YAML file.
func hostsFromDynamicFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg dynamicConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	seen := make(map[string]struct{})
	var hosts []string
	for _, rt := range cfg.HTTP.Routers {
		for _, hostname := range HostsFromRule(rt.Rule) {
			if _, dup := seen[hostname]; dup {
				continue
			}
			seen[hostname] = struct{}{}
			hosts = append(hosts, hostname)
		}
	}
	return hosts, nil
}
