// Package security provides validation, sanitization, and limits for the taskqueue package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledgerline/taskqueue/pkg/core"
)

// Limits enforced at enqueue and registration time.
const (
	// MaxTaskTypeNameLength is the maximum length for task type names
	MaxTaskTypeNameLength = 255

	// MaxPayloadSize is the maximum size in bytes for task payloads (1MB)
	MaxPayloadSize = 1 << 20

	// MaxRetries is the hard limit for retry attempts
	MaxRetries = 100

	// MaxConcurrency is the hard limit for the scheduler concurrency limit
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validTaskTypeName matches alphanumeric, hyphens, underscores, and dots
var validTaskTypeName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateTaskTypeName validates a task type name
func ValidateTaskTypeName(name string) error {
	if name == "" {
		return core.ErrInvalidTaskTypeName
	}
	if len(name) > MaxTaskTypeNameLength {
		return core.ErrTaskTypeNameTooLong
	}
	if !validTaskTypeName.MatchString(name) {
		return core.ErrInvalidTaskTypeName
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
