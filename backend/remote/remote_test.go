package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"todosync/backend"
	"todosync/internal/testutil/mockstore"
	"todosync/internal/utils"
)

func newTestStore(t *testing.T, url string, mutate ...func(*Config)) *Store {
	t.Helper()
	cfg := Config{URL: url, MaxRetries: 3, RetryDelay: time.Millisecond}
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := New(Config{URL: "http://x/tasks", ToggleAction: "flip"}); err == nil {
		t.Error("expected error for unknown toggle action")
	}
	if _, err := New(Config{URL: "http://x/tasks", Addressing: "name"}); err == nil {
		t.Error("expected error for unknown addressing")
	}
}

func TestFetch(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	ms.Seed(backend.Task{Text: "Buy milk", CreatedDate: "2026-03-30"}, backend.Task{Text: "Walk dog", Completed: true})

	s := newTestStore(t, ms.URL())
	tasks, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(tasks) != 2 || tasks[0].ID != 1 || tasks[0].Text != "Buy milk" || !tasks[1].Completed {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestFetchEmptyStore(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()

	tasks, err := newTestStore(t, ms.URL()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", tasks)
	}
}

func TestRequestsCarryRequestIDAndToken(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()

	s := newTestStore(t, ms.URL(), func(c *Config) { c.Token = "secret" })
	if _, err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := s.Apply(context.Background(), backend.Mutation{Action: backend.ActionAdd, Task: backend.NewTask{Text: "a"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	ids := ms.RequestIDs()
	if len(ids) != 2 || ids[0] == "" || ids[0] == ids[1] {
		t.Errorf("expected two distinct request ids, got %v", ids)
	}
	for _, h := range ms.AuthHeaders() {
		if h != "Bearer secret" {
			t.Errorf("Authorization = %q", h)
		}
	}
}

func TestApplyToggleSendsID(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	ms.Seed(backend.Task{ID: 1, Text: "Buy milk"})

	s := newTestStore(t, ms.URL())
	tasks, err := s.Apply(context.Background(), backend.Mutation{Action: backend.ActionToggle, Ref: backend.ByID(1)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if !tasks[0].Completed {
		t.Error("task should be completed in the returned list")
	}
	bodies := ms.Bodies()
	if len(bodies) != 1 || bodies[0] != `{"action":"toggle","id":1}` {
		t.Errorf("bodies = %v", bodies)
	}
}

func TestApplyIndexAddressingWithCompleteAction(t *testing.T) {
	ms := mockstore.NewIndexStore()
	defer ms.Close()
	ms.Seed(backend.Task{Text: "a"}, backend.Task{Text: "b"})

	s := newTestStore(t, ms.URL(), func(c *Config) {
		c.ToggleAction = backend.ActionComplete
		c.Addressing = backend.AddressByIndex
	})
	if s.Addressing() != backend.AddressByIndex {
		t.Fatalf("Addressing = %s", s.Addressing())
	}

	tasks, err := s.Apply(context.Background(), backend.Mutation{Action: backend.ActionToggle, Ref: backend.ByID(12345), Position: 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if bodies := ms.Bodies(); bodies[0] != `{"action":"complete","index":1}` {
		t.Errorf("body = %s", bodies[0])
	}
	if tasks[0].Completed || !tasks[1].Completed {
		t.Errorf("wrong task toggled: %+v", tasks)
	}
	if tasks[0].ID == 0 || tasks[0].ID == tasks[1].ID {
		t.Errorf("id-less tasks should be given unique ids: %+v", tasks)
	}
}

func TestApplyRefetchesWhenResponseOmitsTasks(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	ms.SetOmitTasks(true)

	s := newTestStore(t, ms.URL())
	tasks, err := s.Apply(context.Background(), backend.Mutation{Action: backend.ActionAdd, Task: backend.NewTask{Text: "Buy milk"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Text != "Buy milk" {
		t.Errorf("tasks = %+v", tasks)
	}

	log := ms.GetRequestLog()
	if strings.Join(log, ",") != "POST add,GET" {
		t.Errorf("request log = %v", log)
	}
}

func TestFetchRetriesOn429(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	ms.SetRateLimited(2)

	if _, err := newTestStore(t, ms.URL()).Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := len(ms.GetRequestLog()); n != 3 {
		t.Errorf("expected 3 GET attempts, got %d", n)
	}
}

func TestApplyIsNotRetried(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	ms.SetRateLimited(1)

	_, err := newTestStore(t, ms.URL()).Apply(context.Background(), backend.Mutation{Action: backend.ActionAdd, Task: backend.NewTask{Text: "a"}})
	if !errors.Is(err, utils.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if n := len(ms.GetRequestLog()); n != 1 {
		t.Errorf("mutation sent %d times, want 1", n)
	}
	if len(ms.Tasks()) != 0 {
		t.Error("store should be unchanged")
	}
}

func TestNon2xxIsRemoteUnavailable(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	ms.SetFailing(http.StatusInternalServerError)

	s := newTestStore(t, ms.URL())
	if _, err := s.Fetch(context.Background()); !errors.Is(err, utils.ErrRemoteUnavailable) {
		t.Errorf("Fetch error = %v", err)
	}
	_, err := s.Apply(context.Background(), backend.Mutation{Action: backend.ActionDelete, Ref: backend.ByID(1)})
	if !errors.Is(err, utils.ErrRemoteUnavailable) || !strings.Contains(err.Error(), "500") {
		t.Errorf("Apply error = %v", err)
	}
}

func TestUnreachableStore(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL + "/tasks"
	server.Close()

	_, err := newTestStore(t, url).Fetch(context.Background())
	if !errors.Is(err, utils.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	var withSuggestion *utils.ErrorWithSuggestion
	if !errors.As(err, &withSuggestion) {
		t.Error("expected a suggestion")
	}
}

func TestTimeoutIsRemoteUnavailable(t *testing.T) {
	ms := mockstore.NewStore()
	defer ms.Close()
	held := ms.Hold()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestStore(t, ms.URL()).Apply(ctx, backend.Mutation{Action: backend.ActionAdd, Task: backend.NewTask{Text: "a"}})
	<-held
	ms.Release()

	if !errors.Is(err, utils.ErrRemoteUnavailable) {
		t.Errorf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tasks": "nope"`))
	}))
	defer server.Close()

	_, err := newTestStore(t, server.URL).Fetch(context.Background())
	if !errors.Is(err, utils.ErrRemoteUnavailable) {
		t.Errorf("expected ErrRemoteUnavailable, got %v", err)
	}
}
