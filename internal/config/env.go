package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupRaw reports whether the variable (or its _FILE form) is set.
func lookupRaw(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(name + "_FILE"); ok {
		return v, true
	}
	return "", false
}

// getEnv reads an environment variable with Docker-secret support: when
// NAME is unset but NAME_FILE is set, the value is read from that file.
func getEnv(name string) (string, error) {
	if v, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(v), nil
	}
	if path, ok := os.LookupEnv(name + "_FILE"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s_FILE: %w", name, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// envString returns the env value or def when unset/empty.
func envString(name, def string) (string, error) {
	v, err := getEnv(name)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// envBool parses a boolean env value. Accepts strconv.ParseBool forms.
func envBool(name string, def bool) (bool, error) {
	v, err := getEnv(name)
	if err != nil {
		return false, err
	}
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, v)
	}
	return b, nil
}

// envInt parses an integer env value.
func envInt(name string, def int) (int, error) {
	v, err := getEnv(name)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, v)
	}
	return n, nil
}

// envDurationMS parses a millisecond-valued env variable into a Duration.
func envDurationMS(name string, def time.Duration) (time.Duration, error) {
	ms, err := envInt(name, int(def/time.Millisecond))
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// envDurationMinutes parses a minute-valued env variable into a Duration.
func envDurationMinutes(name string, def time.Duration) (time.Duration, error) {
	m, err := envInt(name, int(def/time.Minute))
	if err != nil {
		return 0, err
	}
	return time.Duration(m) * time.Minute, nil
}

// envList parses a comma-separated env value into trimmed, non-empty items.
func envList(name string) ([]string, error) {
	v, err := getEnv(name)
	if err != nil {
		return nil, err
	}
	return splitList(v), nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

// collectProviderEnv gathers PROVIDERTYPE_* environment variables for the
// given provider type into a map keyed without the prefix. Secret-file
// indirection (NAME_FILE) is resolved here too.
func collectProviderEnv(typeName string) (map[string]string, error) {
	prefix := strings.ToUpper(typeName) + "_"
	cfg := make(map[string]string)

	for _, entry := range os.Environ() {
		name, _, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.TrimPrefix(name, prefix)
		key = strings.TrimSuffix(key, "_FILE")
		if _, done := cfg[key]; done {
			continue
		}
		value, err := getEnv(prefix + key)
		if err != nil {
			return nil, err
		}
		if value != "" {
			cfg[key] = value
		}
	}
	return cfg, nil
}
