// Package utils holds small cross-cutting helpers: logging, user-facing
// error wrapping and input validation.
package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrServerUnreachable returns an error for a failed connection to the API
// server, with a context-aware suggestion derived from the failure reason.
func ErrServerUnreachable(baseURL, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("cannot reach %s: %s", baseURL, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// ErrLoginRequired returns an error for operations that need a session.
func ErrLoginRequired(action string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s requires an account", action),
		Suggestion: "Run 'wishdo login' (or 'wishdo register' to create an account)",
	}
}

// ErrSessionExpired returns an error for a rejected token.
func ErrSessionExpired() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("your session has expired"),
		Suggestion: "Run 'wishdo login' to sign in again",
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and the server URL in your config is correct"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}
