// Package remote is the HTTP client for the remote task store's /tasks endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"todosync/backend"
	"todosync/internal/ratelimit"
	"todosync/internal/utils"
)

// DefaultURL is where the reference store listens.
const DefaultURL = "http://127.0.0.1:5000/tasks"

// Config holds remote store connection settings.
type Config struct {
	URL   string
	Token string // sent as a Bearer token when set

	// ToggleAction is the action name sent for Toggle: "toggle" (default) or
	// "complete" for the index-based store variant.
	ToggleAction backend.Action

	// Addressing is "id" (default) or "index" for stores that reference tasks
	// by position.
	Addressing backend.Addressing

	// MaxRetries bounds GET retries on 429 and 503. Mutations are never
	// retried.
	MaxRetries int
	RetryDelay time.Duration

	HTTPClient *http.Client
	Now        func() time.Time // id synthesis for id-less responses
}

// Store implements backend.RemoteStore over HTTP.
type Store struct {
	config Config
	client *http.Client
}

// New creates a remote store client.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote store URL is required")
	}
	if cfg.ToggleAction == "" {
		cfg.ToggleAction = backend.ActionToggle
	}
	if cfg.ToggleAction != backend.ActionToggle && cfg.ToggleAction != backend.ActionComplete {
		return nil, fmt.Errorf("unsupported toggle action %q (expected toggle or complete)", cfg.ToggleAction)
	}
	if cfg.Addressing == "" {
		cfg.Addressing = backend.AddressByID
	}
	if cfg.Addressing != backend.AddressByID && cfg.Addressing != backend.AddressByIndex {
		return nil, fmt.Errorf("unsupported addressing %q (expected id or index)", cfg.Addressing)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		client = &c
	}
	client.Transport = ratelimit.NewTransport(client.Transport, ratelimit.Config{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryDelay,
		Jitter:     true,
		Name:       "task store",
	})

	return &Store{config: cfg, client: client}, nil
}

// URL returns the endpoint this client talks to.
func (s *Store) URL() string {
	return s.config.URL
}

// Addressing reports how mutations reference tasks.
func (s *Store) Addressing() backend.Addressing {
	return s.config.Addressing
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("X-Request-ID", uuid.NewString())
	if s.config.Token != "" {
		h.Set("Authorization", "Bearer "+s.config.Token)
	}
	return h
}

// tasksResponse is the store's response body. Tasks is nil when the key is absent.
type tasksResponse struct {
	Tasks *[]backend.Task `json:"tasks"`
}

// Fetch returns the store's current collection.
func (s *Store) Fetch(ctx context.Context) ([]backend.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = s.headers()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.ErrRemoteStatus(s.config.URL, resp.StatusCode)
	}

	tasks, present, err := s.decode(resp.Body)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, utils.ErrRemoteOffline(s.config.URL, "response has no tasks field")
	}
	return tasks, nil
}

// Apply posts a mutation and returns the store's post-mutation collection. When
// the response body carries no tasks the collection is fetched again.
func (s *Store) Apply(ctx context.Context, m backend.Mutation) ([]backend.Task, error) {
	if m.Action == backend.ActionToggle || m.Action == backend.ActionComplete {
		m.Action = s.config.ToggleAction
	}
	if s.config.Addressing == backend.AddressByIndex && !m.Ref.ByIndex {
		m.Ref = backend.ByIndex(m.Position)
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", m.Action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = s.headers()
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.ErrRemoteStatus(s.config.URL, resp.StatusCode)
	}

	tasks, present, err := s.decode(resp.Body)
	if err != nil {
		return nil, err
	}
	if !present {
		utils.Debugf("%s response carried no tasks, refetching", m.Action)
		return s.Fetch(ctx)
	}
	return tasks, nil
}

// decode reads a tasks response. An empty body reports present=false.
func (s *Store) decode(r io.Reader) ([]backend.Task, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, s.transportError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}

	var result tasksResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, utils.ErrRemoteOffline(s.config.URL, "malformed response: "+err.Error())
	}
	if result.Tasks == nil {
		return nil, false, nil
	}
	return backend.Normalize(*result.Tasks, s.config.Now()), true, nil
}

func (s *Store) transportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return utils.ErrRemoteOffline(s.config.URL, err.Error())
}
