package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"wishdo/backend"
	"wishdo/internal/testutil"
)

func newClient(t *testing.T, srv *testutil.FakeServer, token string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:   srv.URL(),
		TokenFunc: func() string { return token },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListForwardsFilters(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	srv.AddTask("buy milk", false)
	srv.AddTask("buy bread", true)
	srv.AddTask("walk dog", false)

	c := newClient(t, srv, "")
	ctx := context.Background()

	tasks, err := c.List(ctx, backend.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("unfiltered list = %d tasks, want 3", len(tasks))
	}

	tasks, err = c.List(ctx, backend.Query{Search: "buy", Status: backend.StatusActive})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Body != "buy milk" {
		t.Errorf("filtered list = %+v", tasks)
	}

	// StatusAll must not appear on the wire.
	for _, line := range srv.RequestLog() {
		if strings.Contains(line, "status=all") {
			t.Errorf("status=all sent to server: %s", line)
		}
	}
}

func TestCreateRequiresAuth(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()

	c := newClient(t, srv, "")
	_, err := c.Create(context.Background(), backend.CreatePayload{Body: "x"})
	if !backend.IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestCreateReturnsServerTask(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	_, token := srv.AddUser("Ann", "ann@example.com", "secret1")

	c := newClient(t, srv, token)
	due := time.Now().AddDate(0, 0, 2).UTC().Truncate(time.Second)
	task, err := c.Create(context.Background(), backend.CreatePayload{
		Body:     "with due date",
		Priority: backend.PriorityHigh,
		DueDate:  &due,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID == "" {
		t.Error("server did not assign an identifier")
	}
	if task.Priority != backend.PriorityHigh {
		t.Errorf("priority = %v", task.Priority)
	}
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Errorf("due date = %v, want %v", task.DueDate, due)
	}
}

func TestPatchEmptyTogglesCompletion(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	id := srv.AddTask("toggle me", false)

	c := newClient(t, srv, "")
	ctx := context.Background()

	// The server replies {"success":true}, so the returned task is nil.
	task, err := c.Patch(ctx, id, backend.Updates{})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if task != nil {
		t.Errorf("success envelope decoded as task: %+v", task)
	}

	stored := srv.Task(id)
	if !stored.Completed || stored.CompletedAt == nil {
		t.Errorf("server task after toggle = %+v", stored)
	}

	if _, err := c.Patch(ctx, id, backend.Updates{}); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	stored = srv.Task(id)
	if stored.Completed || stored.CompletedAt != nil {
		t.Errorf("server task after double toggle = %+v", stored)
	}
}

func TestPatchClearDueDateSendsNull(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	id := srv.AddTask("dated", false)

	c := newClient(t, srv, "")
	due := time.Now().AddDate(0, 0, 5).UTC()
	if _, err := c.Patch(context.Background(), id, backend.Updates{DueDate: &due}); err != nil {
		t.Fatalf("set due: %v", err)
	}
	if srv.Task(id).DueDate == nil {
		t.Fatal("due date not stored")
	}

	if _, err := c.Patch(context.Background(), id, backend.Updates{ClearDueDate: true}); err != nil {
		t.Fatalf("clear due: %v", err)
	}
	stored := srv.Task(id)
	if stored.DueDate != nil {
		t.Errorf("due date = %v after clear", stored.DueDate)
	}
	// A clear must not fall through to the empty-patch toggle.
	if stored.Completed {
		t.Error("clearing the due date toggled completion")
	}
}

func TestPatchNotFound(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()

	c := newClient(t, srv, "")
	_, err := c.Patch(context.Background(), "missing", backend.Updates{})
	if !backend.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDelete(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	id := srv.AddTask("delete me", false)

	c := newClient(t, srv, "")
	if err := c.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if srv.TaskCount() != 0 {
		t.Errorf("task count = %d after delete", srv.TaskCount())
	}

	if err := c.Delete(context.Background(), id); !backend.IsNotFound(err) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestSetStarResults(t *testing.T) {
	tests := []struct {
		name       string
		mode       testutil.StarMode
		wantResult backend.StarResult
		wantErr    bool
	}{
		{"accepted", testutil.StarOK, backend.StarSuccess, false},
		{"unauthorized", testutil.StarUnauthorized, backend.StarUnauthorized, true},
		{"forbidden means unsupported", testutil.StarForbidden, backend.StarUnsupported, true},
		{"server error", testutil.StarError, backend.StarFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewFakeServer()
			defer srv.Close()
			userID, token := srv.AddUser("Ann", "ann@example.com", "secret1")
			id := srv.AddTask("star me", false)
			srv.SetStarMode(tt.mode)

			c := newClient(t, srv, token)
			result, err := c.SetStar(context.Background(), id, true)
			if result != tt.wantResult {
				t.Errorf("result = %v, want %v", result, tt.wantResult)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tt.wantErr)
			}

			if tt.mode == testutil.StarOK {
				stored := srv.Task(id)
				if len(stored.StarredBy) != 1 || stored.StarredBy[0] != userID {
					t.Errorf("starredBy = %v", stored.StarredBy)
				}
			}
		})
	}
}

func TestSetStarForbiddenErrorKind(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	_, token := srv.AddUser("Ann", "ann@example.com", "secret1")
	id := srv.AddTask("star me", false)
	srv.SetStarMode(testutil.StarForbidden)

	c := newClient(t, srv, token)
	_, err := c.SetStar(context.Background(), id, true)
	if !backend.IsUnsupported(err) {
		t.Fatalf("err = %v, want unsupported kind", err)
	}
}

func TestUnstar(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	_, token := srv.AddUser("Ann", "ann@example.com", "secret1")
	id := srv.AddTask("star me", false)

	c := newClient(t, srv, token)
	ctx := context.Background()
	if _, err := c.SetStar(ctx, id, true); err != nil {
		t.Fatalf("star: %v", err)
	}
	if _, err := c.SetStar(ctx, id, false); err != nil {
		t.Fatalf("unstar: %v", err)
	}
	if stored := srv.Task(id); len(stored.StarredBy) != 0 {
		t.Errorf("starredBy = %v after unstar", stored.StarredBy)
	}
}

func TestNetworkFailureIsTyped(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, listErr := c.List(context.Background(), backend.Query{})
	if !backend.IsNetwork(listErr) {
		t.Fatalf("err = %v, want network kind", listErr)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c, err := New(Config{
		BaseURL:         srv.URL,
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
		EnableRateLimit: true,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer func() { _ = c.Close() }()

	tasks, err := c.List(context.Background(), backend.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks == nil {
		t.Error("retry did not recover")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server saw %d calls, want 2", n)
	}
}

func TestHost(t *testing.T) {
	c, err := New(Config{BaseURL: "https://todo.example.com:8443/api"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := c.Host(); got != "todo.example.com:8443" {
		t.Errorf("host = %q", got)
	}
}
