// Package credentials stores the remote store's API token in the OS keyring,
// with the TODOSYNC_REMOTE_TOKEN environment variable as a fallback.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ServiceName is the keyring service tokens are stored under. The account is
// the remote store URL.
const ServiceName = "todosync-remote"

// EnvToken is read when the keyring has no token.
const EnvToken = "TODOSYNC_REMOTE_TOKEN"

// ErrKeyringNotAvailable is returned when the OS offers no keyring.
var ErrKeyringNotAvailable = errors.New("system keyring not available")

// Source indicates where a token was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// TokenInfo is returned by Get.
type TokenInfo struct {
	Source  Source
	Account string
	Token   string
	Found   bool
}

// JSON serializes the info without the token.
func (t *TokenInfo) JSON() ([]byte, error) {
	return json.Marshal(struct {
		Account string `json:"account"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{t.Account, string(t.Source), t.Found})
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithEnv overrides os.Getenv.
func WithEnv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set stores token for account in the keyring.
func (m *Manager) Set(ctx context.Context, account, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	return m.keyring.Set(ServiceName, account, token)
}

// Get looks up the token for account: keyring first, then the environment.
func (m *Manager) Get(ctx context.Context, account string) (*TokenInfo, error) {
	token, err := m.keyring.Get(ServiceName, account)
	if err == nil && token != "" {
		return &TokenInfo{Source: SourceKeyring, Account: account, Token: token, Found: true}, nil
	}

	if token := strings.TrimSpace(m.getenv(EnvToken)); token != "" {
		return &TokenInfo{Source: SourceEnvironment, Account: account, Token: token, Found: true}, nil
	}

	return &TokenInfo{Source: SourceNone, Account: account}, nil
}

// Token returns the token for account, or "" when none is configured.
func (m *Manager) Token(ctx context.Context, account string) string {
	info, err := m.Get(ctx, account)
	if err != nil {
		return ""
	}
	return info.Token
}

// Delete removes the keyring token for account. Deleting a missing token is not an error.
func (m *Manager) Delete(ctx context.Context, account string) error {
	err := m.keyring.Delete(ServiceName, account)
	if errors.Is(err, errTokenNotFound) {
		return nil
	}
	return err
}

// PromptToken reads a token from reader. A terminal gets hidden input;
// anything else is read as a line.
func PromptToken(reader io.Reader, writer io.Writer, account string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s: ", account)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
