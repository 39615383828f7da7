package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DruboPaul/web-surveyscriber/constants"
)

// ConfigError signals missing or invalid provider configuration. It is raised
// when resolving a provider, before any image is processed, and carries a
// remediation hint for the user.
type ConfigError struct {
	Provider string
	Hint     string
	Cause    error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Hint, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Hint)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// NewConfigError builds a ConfigError with a human-readable remediation hint.
func NewConfigError(provider, hint string, cause error) *ConfigError {
	return &ConfigError{Provider: provider, Hint: hint, Cause: cause}
}

// Common application errors.
var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrNoImages      = errors.New("no images found in batch")
	ErrNoValidData   = errors.New("no valid data extracted from batch")
)

// ClassifyExtractionError maps an extraction-provider failure onto an error
// kind by keyword matching, mirroring the status strings and error bodies the
// providers return. Fatal kinds abort the whole batch; everything else maps
// to the generic kind and only skips the current image.
func ClassifyExtractionError(err error) constants.ErrorKind {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "invalid api key"):
		return constants.ErrKindInvalidKey
	case strings.Contains(msg, "429"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "rate_limit"),
		strings.Contains(lower, "ratelimit"),
		strings.Contains(lower, "too many requests"):
		// "rate" alone is too loose: transport errors embed the request
		// URL, and ":generateContent" contains it.
		return constants.ErrKindRateLimit
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "insufficient"),
		strings.Contains(lower, "billing"),
		strings.Contains(lower, "credit"):
		return constants.ErrKindInsufficientCredits
	}
	return constants.ErrKindGeneric
}

// UserMessage returns the short, user-actionable message for a fatal kind.
func UserMessage(kind constants.ErrorKind) string {
	switch kind {
	case constants.ErrKindInvalidKey:
		return "API key is invalid. Check Settings."
	case constants.ErrKindRateLimit:
		return "Rate limit exceeded. Wait and retry."
	case constants.ErrKindInsufficientCredits:
		return "API credits exhausted. Add credits to your account."
	case constants.ErrKindNoValidData:
		return "No text could be extracted from the images."
	case constants.ErrKindBatchNotFound:
		return "Batch not found."
	case constants.ErrKindNoImages:
		return "No images found in batch."
	}
	return "Extraction failed."
}

// Truncate caps a message at n bytes for warnings carried on results.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
