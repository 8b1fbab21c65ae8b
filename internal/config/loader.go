package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default endpoints for mode-specific discovery.
const (
	DefaultTraefikAPIURL = "http://traefik:8080/api"
	DefaultConfigFile    = "/etc/zonewarden/config.yml"
)

// Sentinel errors for configuration problems.
var (
	// ErrMissingProvider indicates DNS_PROVIDER was not set anywhere.
	ErrMissingProvider = errors.New("no DNS provider configured")

	// ErrMissingZone indicates no zone was configured.
	ErrMissingZone = errors.New("no DNS zone configured")

	// ErrInvalidMode indicates OPERATION_MODE was not proxy or direct.
	ErrInvalidMode = errors.New("operation mode must be proxy or direct")
)

// Load builds the configuration from the optional YAML file overlaid with
// environment variables, applies defaults and floors, and validates the
// result. Validation problems are accumulated and returned together.
func Load(logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := envString("CONFIG_FILE", DefaultConfigFile)
	if err != nil {
		return nil, err
	}
	_, explicit := lookupRaw("CONFIG_FILE")
	fc, err := loadFile(path, explicit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{providerEnv: make(map[string]map[string]string)}
	var problems []error
	collect := func(err error) {
		if err != nil {
			problems = append(problems, err)
		}
	}

	cfg.LogLevel, err = envString("LOG_LEVEL", defaultString(fc.Log.Level, "info"))
	collect(err)
	cfg.LogFormat, err = envString("LOG_FORMAT", defaultString(fc.Log.Format, "json"))
	collect(err)

	cfg.Provider, err = envString("DNS_PROVIDER", fc.Provider)
	collect(err)
	cfg.Zone, err = envString("DNS_ZONE", fc.Zone)
	collect(err)

	mode, err := envString("OPERATION_MODE", defaultString(fc.Mode, string(ModeProxy)))
	collect(err)
	cfg.Mode = OperationMode(strings.ToLower(mode))

	cfg.TraefikAPIURL, err = envString("TRAEFIK_API_URL", defaultString(fc.Traefik.APIURL, DefaultTraefikAPIURL))
	collect(err)
	files, err := envList("TRAEFIK_FILE_PATHS")
	collect(err)
	cfg.TraefikFiles = defaultList(files, fc.Traefik.Files)
	cfg.DockerHost, err = envString("DOCKER_HOST", fc.DockerHost)
	collect(err)

	cfg.PollInterval, err = envDurationMS("POLL_INTERVAL_MS", defaultDurationMS(fc.PollIntervalMS, DefaultPollInterval))
	collect(err)
	cfg.CleanupInterval, err = envDurationMS("CLEANUP_INTERVAL_MS", defaultDurationMS(fc.CleanupIntervalMS, 0))
	collect(err)
	cfg.CacheTTL, err = envDurationMinutes("CACHE_TTL_MINUTES", defaultDurationMinutes(fc.CacheTTLMinutes, DefaultCacheTTL))
	collect(err)
	cfg.IPRefreshInterval, err = envDurationMS("IP_REFRESH_INTERVAL_MS", defaultDurationMS(fc.IPRefreshIntervalMS, DefaultIPRefreshInterval))
	collect(err)
	cfg.GracePeriod, err = envDurationMinutes("CLEANUP_GRACE_PERIOD_MINUTES", defaultDurationMinutes(fc.CleanupGracePeriodMinute, DefaultGracePeriod))
	collect(err)

	cfg.DefaultTTL, err = envInt("DNS_DEFAULT_TTL", defaultInt(fc.DefaultTTL, DefaultRecordTTL))
	collect(err)
	preserved, err := envList("PRESERVED_HOSTNAMES")
	collect(err)
	cfg.PreservedHostnames = defaultList(preserved, fc.PreservedHostnames)
	managed, err := envList("MANAGED_HOSTNAMES")
	collect(err)
	cfg.ManagedHostnames = defaultList(managed, fc.ManagedHostnames)

	cfg.IPEchoURL, err = envString("IP_ECHO_URL", defaultString(fc.IPEchoURL, DefaultIPEchoURL))
	collect(err)
	cfg.IPv6EchoURL, err = envString("IPV6_ECHO_URL", defaultString(fc.IPv6EchoURL, DefaultIPv6EchoURL))
	collect(err)

	cfg.DataDir, err = envString("DATA_DIR", defaultString(fc.DataDir, DefaultDataDir))
	collect(err)
	dryRunDefault := false
	if fc.DryRun != nil {
		dryRunDefault = *fc.DryRun
	}
	cfg.DryRun, err = envBool("DRY_RUN", dryRunDefault)
	collect(err)
	cfg.HealthPort, err = envInt("HEALTH_PORT", defaultInt(fc.HealthPort, DefaultHealthPort))
	collect(err)

	// Provider config: file section first, PROVIDERTYPE_* env overrides.
	if cfg.Provider != "" {
		pc := make(map[string]string)
		for k, v := range fc.Providers[strings.ToLower(cfg.Provider)] {
			pc[strings.ToUpper(k)] = v
		}
		envPC, err := collectProviderEnv(cfg.Provider)
		collect(err)
		for k, v := range envPC {
			pc[k] = v
		}
		cfg.providerEnv[cfg.Provider] = pc
	}

	applyFloors(cfg, logger)

	if err := validate(cfg); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return cfg, nil
}

// applyFloors clamps intervals to their minimums and fills derived
// defaults, logging when a configured value was overridden.
func applyFloors(cfg *Config, logger *slog.Logger) {
	if cfg.PollInterval < MinPollInterval {
		logger.Warn("poll interval below minimum, clamping",
			slog.Duration("configured", cfg.PollInterval),
			slog.Duration("minimum", MinPollInterval),
		)
		cfg.PollInterval = MinPollInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.PollInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.IPRefreshInterval <= 0 {
		cfg.IPRefreshInterval = DefaultIPRefreshInterval
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultRecordTTL
	}
}

func validate(cfg *Config) error {
	var problems []error

	if cfg.Provider == "" {
		problems = append(problems, ErrMissingProvider)
	}
	if cfg.Zone == "" && cfg.providerEnv[cfg.Provider]["ZONE"] == "" {
		problems = append(problems, ErrMissingZone)
	}
	if cfg.Mode != ModeProxy && cfg.Mode != ModeDirect {
		problems = append(problems, fmt.Errorf("%w: got %q", ErrInvalidMode, cfg.Mode))
	}
	if cfg.Mode == ModeProxy && cfg.TraefikAPIURL == "" {
		problems = append(problems, errors.New("proxy mode requires TRAEFIK_API_URL"))
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "error", "warn", "info", "debug", "trace":
	default:
		problems = append(problems, fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel))
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat))
	}

	if cfg.HealthPort <= 0 || cfg.HealthPort > 65535 {
		problems = append(problems, fmt.Errorf("invalid HEALTH_PORT %d", cfg.HealthPort))
	}

	return errors.Join(problems...)
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func defaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func defaultList(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

func defaultDurationMS(ms int, def time.Duration) time.Duration {
	if ms != 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func defaultDurationMinutes(m int, def time.Duration) time.Duration {
	if m != 0 {
		return time.Duration(m) * time.Minute
	}
	return def
}
