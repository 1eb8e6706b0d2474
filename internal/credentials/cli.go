package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// CLIHandler handles CLI commands for credential management
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout, stderr io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Set prompts for a token and stores it in the keyring.
func (h *CLIHandler) Set(account string) error {
	token, err := PromptToken(h.stdin, h.stdout, account)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := h.manager.Set(context.Background(), account, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError()
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

// keyringNotAvailableError points at the environment variable fallback.
func (h *CLIHandler) keyringNotAvailableError() error {
	return fmt.Errorf(`system keyring not available on this machine.

Alternative: set the token in the environment instead:
  export %s="your-api-token"

Run 'todosync credentials get' to verify the token is detected`, EnvToken)
}

// Get shows where the token for account comes from. The token itself is never printed.
func (h *CLIHandler) Get(account string, jsonOutput bool) error {
	info, err := h.manager.Get(context.Background(), account)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	if jsonOutput {
		data, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(data))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No API token found for %s\n", account)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - %s: Not set\n", EnvToken)
		_, _ = fmt.Fprintf(h.stdout, "\nSuggestion: Run 'todosync credentials set'\n")
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Account: %s\n", info.Account)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	return nil
}

// Delete removes the keyring token for account.
func (h *CLIHandler) Delete(account string) error {
	if err := h.manager.Delete(context.Background(), account); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}
