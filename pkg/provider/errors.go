package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason classifies a provider failure so the reconciler can decide how to
// react: auth failures suspend destructive work, transient failures retry
// next tick, invalid intents are dropped with a warning.
type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonTransient Reason = "transient"
	ReasonNotFound  Reason = "not_found"
	ReasonInvalid   Reason = "invalid"
	ReasonOther     Reason = "other"
)

// Sentinel errors usable with errors.Is. The typed Error below carries the
// same classification plus context.
var (
	// ErrAuth indicates authentication or authorization failed.
	ErrAuth = errors.New("provider authentication failed")

	// ErrTransient indicates a retryable failure (5xx, timeout, connection refused).
	ErrTransient = errors.New("provider temporarily unavailable")

	// ErrNotFound indicates the record or zone does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalid indicates the request was rejected as malformed or
	// unsupported by the provider's capabilities.
	ErrInvalid = errors.New("invalid record")

	// ErrConflict indicates a record already occupies the slot.
	ErrConflict = errors.New("record already exists")
)

// sentinelFor maps a Reason to its sentinel so errors.Is works across both.
func sentinelFor(reason Reason) error {
	switch reason {
	case ReasonAuth:
		return ErrAuth
	case ReasonTransient:
		return ErrTransient
	case ReasonNotFound:
		return ErrNotFound
	case ReasonInvalid:
		return ErrInvalid
	default:
		return nil
	}
}

// Error wraps a provider failure with its classification and call context.
type Error struct {
	Provider string
	Op       string
	Reason   Reason
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %s: %v", e.Provider, e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match both the wrapped error and the reason sentinel.
func (e *Error) Is(target error) bool {
	if s := sentinelFor(e.Reason); s != nil && target == s {
		return true
	}
	return false
}

// WrapError builds a classified provider error. Returns nil if err is nil.
func WrapError(providerName, op string, reason Reason, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: providerName, Op: op, Reason: reason, Err: err}
}

// ReasonOf extracts the failure classification from an error chain.
// Unclassified errors report ReasonOther.
func ReasonOf(err error) Reason {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	switch {
	case errors.Is(err, ErrAuth):
		return ReasonAuth
	case errors.Is(err, ErrTransient):
		return ReasonTransient
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrInvalid):
		return ReasonInvalid
	default:
		return ReasonOther
	}
}

// ReasonFromStatus classifies an HTTP status code from a provider API.
func ReasonFromStatus(code int) Reason {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ReasonAuth
	case code == http.StatusNotFound:
		return ReasonNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return ReasonTransient
	case code >= 400:
		return ReasonInvalid
	default:
		return ReasonOther
	}
}

// IsAuth returns true if the error indicates an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsTransient returns true if the error is worth retrying next tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotFound returns true if the record or zone was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalid returns true if the provider rejected the record as invalid.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

// IsConflict returns true if a record already exists in the slot.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ConfigError represents a provider configuration error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrConfigMissing creates an error for a missing required configuration field.
func ErrConfigMissing(field string) error {
	return &ConfigError{Field: field, Message: "required but not set"}
}

// ErrConfigInvalid creates an error for an invalid configuration value.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{Field: field, Value: value, Message: message}
}
