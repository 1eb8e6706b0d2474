package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the synchronizer, stores and CLI.
var (
	// ErrValidation marks rejected user input (empty task text). No state changes.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound marks a reference that does not resolve to a task.
	ErrNotFound = errors.New("task not found")
	// ErrRemoteUnavailable covers network failures, non-2xx responses and timeouts.
	ErrRemoteUnavailable = errors.New("remote task store unavailable")
	// ErrCacheCorrupt marks unparseable local cache contents. Readers treat them as empty.
	ErrCacheCorrupt = errors.New("local cache corrupt")
	// ErrStaleResponse marks a remote response discarded because the mode changed mid-flight.
	ErrStaleResponse = fmt.Errorf("%w: response discarded after connectivity change", ErrRemoteUnavailable)
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

// ErrEmptyText returns the validation error for blank task text.
func ErrEmptyText() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: task text is empty", ErrValidation),
		Suggestion: "Provide some text, e.g. 'todosync add \"Buy milk\"'",
	}
}

// ErrTaskNotFound returns an error for when a task reference does not resolve.
func ErrTaskNotFound(ref string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s", ErrNotFound, ref),
		Suggestion: "Use 'todosync list' to see task ids, or pass --index to use positions",
	}
}

// ErrRemoteOffline returns an error when the remote store is unreachable with smart suggestions.
func ErrRemoteOffline(url, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s: %s", ErrRemoteUnavailable, url, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// ErrRemoteStatus returns an error for a non-2xx response from the remote store.
func ErrRemoteStatus(url string, status int) error {
	suggestion := "The store rejected the request. Try 'todosync sync' to refresh local state"
	if status == 401 || status == 403 {
		suggestion = "Check the API token with 'todosync credentials get'"
	}
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s returned status %d", ErrRemoteUnavailable, url, status),
		Suggestion: suggestion,
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the task store is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "deadline exceeded") {
		return "The store may be slow or unreachable. Try again later, or use --offline"
	}

	return "Check your internet connection and try again, or use --offline"
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: invalid date: %s", ErrValidation, dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15)",
	}
}

// ErrInvalidTimeSlot returns an error for an invalid HH:MM time slot.
func ErrInvalidTimeSlot(slot string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: invalid time: %s", ErrValidation, slot),
		Suggestion: "Use 24-hour format HH:MM (e.g., 14:00)",
	}
}

// ErrInvalidPriority returns an error for an unknown priority value.
func ErrInvalidPriority(priority string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: invalid priority: %s", ErrValidation, priority),
		Suggestion: "Priority must be one of: low, medium, high",
	}
}

// ErrCredentialsNotFound returns an error when a token is missing.
func ErrCredentialsNotFound(account string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no API token stored for %s", account),
		Suggestion: "Run 'todosync credentials set' or export TODOSYNC_REMOTE_TOKEN",
	}
}
