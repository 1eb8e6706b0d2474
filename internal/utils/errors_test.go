package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorWithSuggestionError(t *testing.T) {
	err := &ErrorWithSuggestion{
		Err:        errors.New("something went wrong"),
		Suggestion: "Try doing X",
	}

	errStr := err.Error()
	for _, want := range []string{"something went wrong", "Suggestion:", "Try doing X"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("Error() should contain %q, got: %s", want, errStr)
		}
	}
	if err.GetSuggestion() != "Try doing X" {
		t.Errorf("GetSuggestion() = %q", err.GetSuggestion())
	}
}

func TestTaxonomyIsMatchable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"empty text", ErrEmptyText(), ErrValidation},
		{"not found", ErrTaskNotFound("id 7"), ErrNotFound},
		{"offline", ErrRemoteOffline("http://x/tasks", "connection refused"), ErrRemoteUnavailable},
		{"status", ErrRemoteStatus("http://x/tasks", 500), ErrRemoteUnavailable},
		{"stale", ErrStaleResponse, ErrRemoteUnavailable},
		{"bad date", ErrInvalidDate("nope"), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.want)
			}
		})
	}
}

func TestSmartSuggestions(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"dial tcp: lookup store: no such host", "DNS"},
		{"dial tcp 127.0.0.1:5000: connect: connection refused", "running"},
		{"context deadline exceeded", "slow"},
		{"something else", "internet connection"},
	}

	for _, tt := range tests {
		err := ErrRemoteOffline("http://x", tt.reason)
		var ews *ErrorWithSuggestion
		if !errors.As(err, &ews) {
			t.Fatalf("expected ErrorWithSuggestion for %q", tt.reason)
		}
		if !strings.Contains(ews.Suggestion, tt.want) {
			t.Errorf("suggestion for %q = %q, want it to mention %q", tt.reason, ews.Suggestion, tt.want)
		}
	}
}

func TestRemoteStatusAuthSuggestion(t *testing.T) {
	var ews *ErrorWithSuggestion
	if !errors.As(ErrRemoteStatus("u", 401), &ews) || !strings.Contains(ews.Suggestion, "credentials") {
		t.Errorf("401 should suggest checking credentials")
	}
}
