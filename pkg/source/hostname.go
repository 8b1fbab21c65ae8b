package source

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Hostname validation limits per RFC 1123.
const (
	// MaxHostnameLength is the maximum length of a full hostname.
	MaxHostnameLength = 253

	// MaxLabelLength is the maximum length of a single label.
	MaxLabelLength = 63
)

// Common hostname validation errors.
var (
	// ErrHostnameEmpty indicates an empty hostname.
	ErrHostnameEmpty = errors.New("hostname is empty")

	// ErrHostnameTooLong indicates hostname exceeds 253 characters.
	ErrHostnameTooLong = errors.New("hostname exceeds 253 characters")

	// ErrLabelTooLong indicates a single label exceeds 63 characters.
	ErrLabelTooLong = errors.New("hostname label exceeds 63 characters")

	// ErrLabelEmpty indicates an empty label (e.g. "app..example.com").
	ErrLabelEmpty = errors.New("hostname contains empty label")

	// ErrInvalidLabel indicates a label with invalid characters or
	// invalid leading/trailing characters.
	ErrInvalidLabel = errors.New("hostname label is invalid")
)

// labelRegex matches valid hostname labels: alphanumeric at both ends,
// hyphens allowed in the middle. Underscores are additionally accepted as
// a leading character because service records and TXT conventions
// (_dmarc, _acme-challenge) use them.
var labelRegex = regexp.MustCompile(`^_?[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// ValidationError reports why a hostname was rejected.
type ValidationError struct {
	Hostname string
	Label    string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("invalid hostname %q: label %q: %v", e.Hostname, e.Label, e.Err)
	}
	return fmt.Sprintf("invalid hostname %q: %v", e.Hostname, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateHostname checks a hostname against RFC 1123 plus the
// underscore-label convention. A trailing dot is tolerated; wildcards are
// not (preserve patterns handle those separately, a source never emits
// them).
func ValidateHostname(hostname string) error {
	hostname = strings.TrimSuffix(hostname, ".")

	if hostname == "" {
		return &ValidationError{Hostname: hostname, Err: ErrHostnameEmpty}
	}
	if len(hostname) > MaxHostnameLength {
		return &ValidationError{Hostname: hostname, Err: ErrHostnameTooLong}
	}

	for _, label := range strings.Split(hostname, ".") {
		if label == "" {
			return &ValidationError{Hostname: hostname, Label: label, Err: ErrLabelEmpty}
		}
		if len(label) > MaxLabelLength {
			return &ValidationError{Hostname: hostname, Label: label, Err: ErrLabelTooLong}
		}
		if !labelRegex.MatchString(label) {
			return &ValidationError{Hostname: hostname, Label: label, Err: ErrInvalidLabel}
		}
	}

	return nil
}
