// Package testutil provides a fake todo API server for tests. It speaks
// the same wire protocol as the production server: task CRUD with the
// empty-patch toggle rule, bearer-token auth and the optional star
// endpoint, whose behavior is switchable per test.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StarMode controls how the fake server answers star requests.
type StarMode int

const (
	// StarOK accepts star changes and records them in starredBy.
	StarOK StarMode = iota
	// StarUnauthorized answers 401.
	StarUnauthorized
	// StarForbidden answers 403, the capability-rejection case.
	StarForbidden
	// StarError answers 500.
	StarError
)

// FakeTask is the server-side task record.
type FakeTask struct {
	ID          string     `json:"_id"`
	Body        string     `json:"body"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	StarredBy   []string   `json:"starredBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// FakeUser is the server-side account record.
type FakeUser struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	password string
}

// FakeServer simulates the todo API.
type FakeServer struct {
	server *httptest.Server

	mu          sync.Mutex
	tasks       map[string]*FakeTask
	order       []string // insertion order for stable listings
	users       map[string]*FakeUser // keyed by email
	tokens      map[string]string    // token -> user ID
	starMode    StarMode
	failDeletes map[string]bool
	ignoreQuery bool
	requestLog  []string
}

// NewFakeServer starts a fake API server. Callers must Close it.
func NewFakeServer() *FakeServer {
	f := &FakeServer{
		tasks:       make(map[string]*FakeTask),
		users:       make(map[string]*FakeUser),
		tokens:      make(map[string]string),
		failDeletes: make(map[string]bool),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

// Close shuts the server down.
func (f *FakeServer) Close() {
	f.server.Close()
}

// URL returns the server's base URL (no trailing slash).
func (f *FakeServer) URL() string {
	return f.server.URL
}

// SetStarMode switches the star endpoint behavior.
func (f *FakeServer) SetStarMode(mode StarMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starMode = mode
}

// SetIgnoreQuery makes listings ignore filter parameters, simulating a
// server without filtering support.
func (f *FakeServer) SetIgnoreQuery(ignore bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignoreQuery = ignore
}

// FailDelete makes deletion of the given task answer 500.
func (f *FakeServer) FailDelete(taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDeletes[taskID] = true
}

// AddUser registers an account and returns a valid token for it.
func (f *FakeServer) AddUser(name, email, password string) (userID, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	user := &FakeUser{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     strings.ToLower(email),
		CreatedAt: now,
		UpdatedAt: now,
		password:  password,
	}
	f.users[user.Email] = user

	token = uuid.New().String()
	f.tokens[token] = user.ID
	return user.ID, token
}

// AddTask inserts a task and returns its ID.
func (f *FakeServer) AddTask(body string, completed bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	task := &FakeTask{
		ID:        uuid.New().String(),
		Body:      body,
		Completed: completed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if completed {
		task.CompletedAt = &now
	}
	f.tasks[task.ID] = task
	f.order = append(f.order, task.ID)
	return task.ID
}

// Task returns a copy of a stored task, or nil.
func (f *FakeServer) Task(id string) *FakeTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil
	}
	copied := *t
	return &copied
}

// TaskCount returns the number of stored tasks.
func (f *FakeServer) TaskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// RequestLog returns the method+path log of every request seen.
func (f *FakeServer) RequestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.requestLog...)
}

// authUserID resolves the bearer token to a user ID, or "".
func (f *FakeServer) authUserID(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return f.tokens[parts[1]]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (f *FakeServer) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requestLog = append(f.requestLog, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	path := r.URL.Path

	switch {
	case path == "/auth/login" && r.Method == http.MethodPost:
		f.handleLogin(w, r)
	case path == "/auth/register" && r.Method == http.MethodPost:
		f.handleRegister(w, r)
	case path == "/auth/me":
		f.handleMe(w, r)
	case path == "/todos" && r.Method == http.MethodGet:
		f.handleList(w, r)
	case path == "/todos" && r.Method == http.MethodPost:
		f.handleCreate(w, r)
	case strings.HasPrefix(path, "/todos/") && strings.HasSuffix(path, "/star") && r.Method == http.MethodPatch:
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/todos/"), "/star")
		f.handleStar(w, r, id)
	case strings.HasPrefix(path, "/todos/") && r.Method == http.MethodPatch:
		f.handlePatch(w, r, strings.TrimPrefix(path, "/todos/"))
	case strings.HasPrefix(path, "/todos/") && r.Method == http.MethodDelete:
		f.handleDelete(w, r, strings.TrimPrefix(path, "/todos/"))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (f *FakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[strings.ToLower(payload.Email)]
	if !ok || user.password != payload.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token := uuid.New().String()
	f.tokens[token] = user.ID
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

func (f *FakeServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	f.mu.Lock()
	email := strings.ToLower(payload.Email)
	if _, exists := f.users[email]; exists {
		f.mu.Unlock()
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	f.mu.Unlock()

	userID, token := f.AddUser(payload.Name, payload.Email, payload.Password)

	f.mu.Lock()
	var user *FakeUser
	for _, u := range f.users {
		if u.ID == userID {
			user = u
		}
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": token, "user": user})
}

func (f *FakeServer) handleMe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	userID := f.authUserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	var user *FakeUser
	for _, u := range f.users {
		if u.ID == userID {
			user = u
		}
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	if r.Method == http.MethodPatch {
		var payload struct {
			Name  *string `json:"name"`
			Email *string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if payload.Name != nil {
			user.Name = *payload.Name
		}
		if payload.Email != nil {
			delete(f.users, user.Email)
			user.Email = strings.ToLower(*payload.Email)
			f.users[user.Email] = user
		}
		user.UpdatedAt = time.Now().UTC()
	}

	writeJSON(w, http.StatusOK, user)
}

func (f *FakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	search := r.URL.Query().Get("search")
	status := r.URL.Query().Get("status")
	priority := r.URL.Query().Get("priority")

	tasks := []*FakeTask{}
	for _, id := range f.order {
		t, ok := f.tasks[id]
		if !ok {
			continue
		}
		if !f.ignoreQuery {
			if search != "" && !strings.Contains(strings.ToLower(t.Body), strings.ToLower(search)) {
				continue
			}
			if status == "active" && t.Completed {
				continue
			}
			if status == "completed" && !t.Completed {
				continue
			}
			if priority != "" && t.Priority != priority {
				continue
			}
		}
		copied := *t
		tasks = append(tasks, &copied)
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (f *FakeServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.authUserID(r) == "" {
		writeError(w, http.StatusUnauthorized, "Missing Authorization header")
		return
	}

	var payload struct {
		Body     string     `json:"body"`
		Priority string     `json:"priority"`
		DueDate  *time.Time `json:"dueDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if payload.Body == "" {
		writeError(w, http.StatusBadRequest, "Todo Body cannot be empty")
		return
	}

	now := time.Now().UTC()
	task := &FakeTask{
		ID:        uuid.New().String(),
		Body:      payload.Body,
		Priority:  payload.Priority,
		DueDate:   payload.DueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.tasks[task.ID] = task
	f.order = append(f.order, task.ID)

	writeJSON(w, http.StatusCreated, task)
}

func (f *FakeServer) handlePatch(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	task, ok := f.tasks[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	var payload struct {
		Body     *string    `json:"body"`
		Priority *string    `json:"priority"`
		DueDate  *time.Time `json:"dueDate"`
	}
	raw := map[string]json.RawMessage{}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rebuilt, _ := json.Marshal(raw)
	_ = json.Unmarshal(rebuilt, &payload)

	now := time.Now().UTC()
	if len(raw) == 0 {
		// Empty patch toggles completion.
		task.Completed = !task.Completed
		if task.Completed {
			task.CompletedAt = &now
		} else {
			task.CompletedAt = nil
		}
	} else {
		if payload.Body != nil {
			task.Body = *payload.Body
		}
		if payload.Priority != nil {
			task.Priority = *payload.Priority
		}
		if dueRaw, present := raw["dueDate"]; present {
			if string(dueRaw) == "null" {
				task.DueDate = nil
			} else if payload.DueDate != nil {
				task.DueDate = payload.DueDate
			}
		}
	}
	task.UpdatedAt = now

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (f *FakeServer) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDeletes[id] {
		writeError(w, http.StatusInternalServerError, "deletion failed")
		return
	}

	if _, ok := f.tasks[id]; !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	delete(f.tasks, id)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (f *FakeServer) handleStar(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.starMode {
	case StarUnauthorized:
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	case StarForbidden:
		writeError(w, http.StatusForbidden, "Starring is not enabled on this server")
		return
	case StarError:
		writeError(w, http.StatusInternalServerError, "star failed")
		return
	}

	userID := f.authUserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing Authorization header")
		return
	}

	task, ok := f.tasks[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	var payload struct {
		Starred bool `json:"starred"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	filtered := task.StarredBy[:0]
	for _, u := range task.StarredBy {
		if u != userID {
			filtered = append(filtered, u)
		}
	}
	task.StarredBy = filtered
	if payload.Starred {
		task.StarredBy = append(task.StarredBy, userID)
	}
	task.UpdatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
