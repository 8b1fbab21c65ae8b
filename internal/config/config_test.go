package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setMinimalEnv sets the variables Load requires, pointing CONFIG_FILE
// at an empty file so no file settings interfere.
func setMinimalEnv(t *testing.T) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("DNS_PROVIDER", "cloudflare")
	t.Setenv("DNS_ZONE", "example.com")
}

func TestLoadDefaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
	if cfg.CleanupInterval != cfg.PollInterval {
		t.Errorf("CleanupInterval = %v, want poll interval %v", cfg.CleanupInterval, cfg.PollInterval)
	}
	if cfg.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, DefaultCacheTTL)
	}
	if cfg.GracePeriod != DefaultGracePeriod {
		t.Errorf("GracePeriod = %v, want %v", cfg.GracePeriod, DefaultGracePeriod)
	}
	if cfg.Mode != ModeProxy {
		t.Errorf("Mode = %v, want proxy", cfg.Mode)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log defaults = %s/%s, want info/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DefaultTTL != DefaultRecordTTL {
		t.Errorf("DefaultTTL = %d, want %d", cfg.DefaultTTL, DefaultRecordTTL)
	}
}

func TestLoadPollIntervalFloor(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("POLL_INTERVAL_MS", "1000")

	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != MinPollInterval {
		t.Errorf("PollInterval = %v, want clamped to %v", cfg.PollInterval, MinPollInterval)
	}
}

func TestLoadMissingProviderAndZone(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("DNS_PROVIDER", "")
	t.Setenv("DNS_ZONE", "")

	_, err := Load(quietLogger())
	if err == nil {
		t.Fatal("Load() expected error for missing provider and zone")
	}
	if !errors.Is(err, ErrMissingProvider) {
		t.Errorf("error %v should wrap ErrMissingProvider", err)
	}
	if !errors.Is(err, ErrMissingZone) {
		t.Errorf("error %v should wrap ErrMissingZone", err)
	}
}

func TestLoadInvalidMode(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("OPERATION_MODE", "sideways")

	_, err := Load(quietLogger())
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Load() error = %v, want ErrInvalidMode", err)
	}
}

func TestLoadSecretFile(t *testing.T) {
	setMinimalEnv(t)

	tokenFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenFile, []byte("cf-secret-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLOUDFLARE_API_TOKEN_FILE", tokenFile)

	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	pc := cfg.ProviderConfig("cloudflare")
	if pc["API_TOKEN"] != "cf-secret-token" {
		t.Errorf("API_TOKEN = %q, want value from secret file", pc["API_TOKEN"])
	}
	if pc["ZONE"] != "example.com" {
		t.Errorf("ZONE = %q, want global zone fallback", pc["ZONE"])
	}
}

func TestLoadConfigFileOverriddenByEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yml")
	content := `
provider: technitium
zone: file.example.com
mode: direct
poll_interval_ms: 30000
preserved_hostnames:
  - "*.keep.example.com"
providers:
  technitium:
    api_token: from-file
`
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", file)
	t.Setenv("DNS_ZONE", "env.example.com")

	cfg, err := Load(quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Provider != "technitium" {
		t.Errorf("Provider = %q, want technitium from file", cfg.Provider)
	}
	if cfg.Zone != "env.example.com" {
		t.Errorf("Zone = %q, env must override file", cfg.Zone)
	}
	if cfg.Mode != ModeDirect {
		t.Errorf("Mode = %v, want direct from file", cfg.Mode)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s from file", cfg.PollInterval)
	}
	if len(cfg.PreservedHostnames) != 1 || cfg.PreservedHostnames[0] != "*.keep.example.com" {
		t.Errorf("PreservedHostnames = %v", cfg.PreservedHostnames)
	}
	if got := cfg.ProviderConfig("technitium")["API_TOKEN"]; got != "from-file" {
		t.Errorf("provider API_TOKEN = %q, want from-file", got)
	}
}

func TestLoadExplicitConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yml"))
	t.Setenv("DNS_PROVIDER", "cloudflare")
	t.Setenv("DNS_ZONE", "example.com")

	if _, err := Load(quietLogger()); err == nil {
		t.Fatal("Load() expected error for explicitly configured missing file")
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "****"},
		{"abcdef", "abcd**"},
		{"cf-token-12345", "cf-t**********"},
	}
	for _, tt := range tests {
		if got := MaskValue(tt.in); got != tt.want {
			t.Errorf("MaskValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"API_TOKEN":   true,
		"PASSWORD":    true,
		"TSIG_SECRET": true,
		"SSH_KEY":     true,
		"ZONE":        false,
		"SERVER":      false,
	} {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
