package config

import "strings"

// sensitiveMarkers flags provider config keys whose values must never be
// logged in the clear.
var sensitiveMarkers = []string{"TOKEN", "PASSWORD", "SECRET", "KEY", "TSIG"}

// IsSensitiveKey reports whether a provider config key holds a credential.
func IsSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// MaskValue redacts a secret for logging, keeping a short prefix so
// operators can tell credentials apart.
func MaskValue(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:4] + strings.Repeat("*", len(value)-4)
}

// MaskedProviderConfig returns a copy of a provider config map safe to log.
func MaskedProviderConfig(cfg map[string]string) map[string]string {
	masked := make(map[string]string, len(cfg))
	for k, v := range cfg {
		if IsSensitiveKey(k) {
			masked[k] = MaskValue(v)
		} else {
			masked[k] = v
		}
	}
	return masked
}
