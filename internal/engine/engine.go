// Package engine maintains the working task collection for one list view
// and reconciles optimistic local mutations against the remote store. All
// reads of the derived (filtered/sorted/paginated) view are local and pure;
// every mutation either patches the matching entity in place or triggers a
// full refresh so stale writes never overwrite newer server state silently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"wishdo/backend"
	"wishdo/internal/capability"
	"wishdo/internal/utils"
	"wishdo/internal/wishlist"
)

// DefaultPageSize is the page length of the derived view.
const DefaultPageSize = 10

// Sentinel errors surfaced to view controllers.
var (
	// ErrLoginRequired means the operation needs an active session. Views
	// render it as a login prompt, never as a generic error banner.
	ErrLoginRequired = errors.New("login required")

	// ErrClosed means the view instance was disposed; late results are
	// discarded rather than applied to state that no longer exists.
	ErrClosed = errors.New("list view disposed")
)

// ValidationError is a local input rejection. It is raised before any
// network call and never reaches the repository.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a local validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// State is the lifecycle of a list view.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateErrored
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateErrored:
		return "errored"
	default:
		return "idle"
	}
}

// Session is the slice of the session provider the engine needs.
type Session interface {
	Token() string
	UserID() string
}

// Config wires an Engine to its collaborators.
type Config struct {
	Repo       backend.Repository
	Session    Session
	Wishlist   *wishlist.Cache
	Capability *capability.Cache
	Host       string // capability-cache key for the backend host
	PageSize   int    // defaults to DefaultPageSize
}

// Snapshot is an immutable rendering of the current view.
type Snapshot struct {
	Tasks     []backend.Task // tasks on the current page
	Page      int
	PageCount int
	Filtered  int // tasks matching the filters, across all pages
	Total     int // size of the working collection
	Completed int // completed tasks in the working collection
	Remaining int // active tasks in the working collection
	State     State
	Err       error // last refresh error; stale data above remains valid
}

// Starred reports whether a task on the snapshot renders as starred for
// the given user, applying the server∪wishlist union rule.
func (e *Engine) Starred(t *backend.Task) bool {
	userID := e.session.UserID()
	return isStarredFor(t, userID, e.wishlist.IDs(userID))
}

// Engine owns the working collection for one list view instance.
type Engine struct {
	repo       backend.Repository
	session    Session
	wishlist   *wishlist.Cache
	capability *capability.Cache
	host       string
	pageSize   int

	mu         sync.Mutex
	tasks      []backend.Task
	state      State
	lastErr    error
	view       viewState
	closed     bool
	refreshGen int

	idLocks map[string]*sync.Mutex

	subMu         sync.Mutex
	subs          map[int]func()
	nextSub       int
	unsubWishlist func()
}

// New creates an engine for one list view. Call Close when the view goes
// out of scope.
func New(cfg Config) *Engine {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	e := &Engine{
		repo:       cfg.Repo,
		session:    cfg.Session,
		wishlist:   cfg.Wishlist,
		capability: cfg.Capability,
		host:       cfg.Host,
		pageSize:   pageSize,
		state:      StateIdle,
		view:       viewState{status: backend.StatusAll, page: 1},
		idLocks:    make(map[string]*sync.Mutex),
		subs:       make(map[int]func()),
	}

	// Star state rendered by this view depends on the wishlist overlay, so
	// a cache change from any other view re-renders this one too.
	e.unsubWishlist = e.wishlist.Subscribe(e.notify)

	return e
}

// Close disposes the view instance. In-flight requests are not cancelled;
// their results are discarded on arrival.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	if e.unsubWishlist != nil {
		e.unsubWishlist()
	}
}

// Subscribe registers a change callback and returns its unsubscribe handle.
func (e *Engine) Subscribe(fn func()) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

// notify invokes all subscribers.
func (e *Engine) notify() {
	e.subMu.Lock()
	subs := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// lockID serializes mutations per task identifier so a slow in-flight
// request cannot clobber a newer one's result. Operations on different
// identifiers proceed concurrently.
func (e *Engine) lockID(id string) func() {
	e.mu.Lock()
	m, ok := e.idLocks[id]
	if !ok {
		m = &sync.Mutex{}
		e.idLocks[id] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Snapshot computes the derived view from the working collection and the
// current filter/sort/page state. Pure local computation, no network.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	userID := e.session.UserID()
	var wishlistIDs map[string]struct{}
	if e.view.starredOnly {
		wishlistIDs = e.wishlist.IDs(userID)
	}

	filtered := filterTasks(e.tasks, e.view, userID, wishlistIDs)
	sorted := sortTasks(filtered, e.view.sortOrder)
	pageTasks, page := paginate(sorted, e.view.page, e.pageSize)
	e.view.page = page

	completed := 0
	for i := range e.tasks {
		if e.tasks[i].Completed {
			completed++
		}
	}

	return Snapshot{
		Tasks:     pageTasks,
		Page:      page,
		PageCount: pageCount(len(sorted), e.pageSize),
		Filtered:  len(sorted),
		Total:     len(e.tasks),
		Completed: completed,
		Remaining: len(e.tasks) - completed,
		State:     e.state,
		Err:       e.lastErr,
	}
}

// AllTasks returns a copy of the working collection, ignoring filters and
// paging. Callers that resolve user-supplied task references need the
// whole collection, not the visible page.
func (e *Engine) AllTasks() []backend.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]backend.Task, len(e.tasks))
	copy(out, e.tasks)
	return out
}

// query builds the advisory server-side filter from the view state. Every
// filter is re-applied client-side, so a server that ignores these
// parameters still yields a correct view.
func (e *Engine) query() backend.Query {
	return backend.Query{
		Search:   e.view.search,
		Status:   e.view.status,
		Priority: e.view.priority,
	}
}

// Refresh fetches the authoritative collection and replaces the working
// copy wholesale. Near-simultaneous refreshes coalesce: only the most
// recently started one applies its result. A failed refresh keeps the last
// good collection so the view shows stale data with an error, never a
// blank screen.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.refreshGen++
	gen := e.refreshGen
	q := e.query()
	e.state = StateLoading
	e.mu.Unlock()
	e.notify()

	tasks, err := e.repo.List(ctx, q)

	e.mu.Lock()
	if e.closed || gen != e.refreshGen {
		// A newer refresh superseded this one, or the view is gone.
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		e.state = StateErrored
		e.lastErr = err
		e.mu.Unlock()
		e.notify()
		return err
	}
	e.tasks = tasks
	e.state = StateReady
	e.lastErr = nil
	e.view.page = clampPage(e.view.page, len(tasks), e.pageSize)
	e.mu.Unlock()
	e.notify()
	return nil
}

// validateBody checks the task text constraints locally.
func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(body) > backend.MaxBodyLength {
		return &ValidationError{Field: "body", Reason: fmt.Sprintf("must be at most %d characters", backend.MaxBodyLength)}
	}
	return nil
}

// validateDueDate rejects due dates before today. Dates already stored may
// be anything; this only guards user input.
func validateDueDate(due *time.Time) error {
	if due == nil {
		return nil
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, due.Location())
	if due.Before(today) {
		return &ValidationError{Field: "due date", Reason: "must not be in the past"}
	}
	return nil
}

// Add validates and creates a task. There is no optimistic insert: the
// server assigns the identifier, so the task joins the collection only
// once the server returns it.
func (e *Engine) Add(ctx context.Context, p backend.CreatePayload) (*backend.Task, error) {
	if err := validateBody(p.Body); err != nil {
		return nil, err
	}
	if err := validateDueDate(p.DueDate); err != nil {
		return nil, err
	}

	task, err := e.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if !e.closed {
		e.tasks = append(e.tasks, *task)
	}
	e.mu.Unlock()
	e.notify()
	return task, nil
}

// ToggleComplete flips a task's completed flag via the wire-level toggle
// (an empty patch). The local flip happens only after the server accepts;
// on failure the collection is untouched and the server's resulting value
// is never guessed.
func (e *Engine) ToggleComplete(ctx context.Context, id string) error {
	unlock := e.lockID(id)
	defer unlock()

	if _, err := e.repo.Patch(ctx, id, backend.Updates{}); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.closed {
		for i := range e.tasks {
			if e.tasks[i].ID != id {
				continue
			}
			t := &e.tasks[i]
			t.Completed = !t.Completed
			now := time.Now()
			t.UpdatedAt = now
			if t.Completed {
				t.CompletedAt = &now
			} else {
				t.CompletedAt = nil
			}
			break
		}
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// Edit validates and applies a partial update. On success the updates are
// merged into the local entity with a locally stamped updatedAt; the server
// remains the source of truth for the next refresh.
func (e *Engine) Edit(ctx context.Context, id string, u backend.Updates) error {
	if u.Body != nil {
		if err := validateBody(*u.Body); err != nil {
			return err
		}
	}
	if !u.ClearDueDate {
		if err := validateDueDate(u.DueDate); err != nil {
			return err
		}
	}

	unlock := e.lockID(id)
	defer unlock()

	if _, err := e.repo.Patch(ctx, id, u); err != nil {
		return err
	}

	e.mu.Lock()
	found := false
	if !e.closed {
		for i := range e.tasks {
			if e.tasks[i].ID != id {
				continue
			}
			t := &e.tasks[i]
			if u.Body != nil {
				t.Body = *u.Body
			}
			if u.Priority != nil {
				t.Priority = *u.Priority
			}
			if u.ClearDueDate {
				t.DueDate = nil
			} else if u.DueDate != nil {
				due := *u.DueDate
				t.DueDate = &due
			}
			t.UpdatedAt = time.Now()
			found = true
			break
		}
	}
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return nil
	}
	if !found {
		// The entity left the working collection while the patch was in
		// flight; re-fetch rather than merge blindly.
		return e.Refresh(ctx)
	}
	e.notify()
	return nil
}

// Remove deletes a task. The local entry goes away only after the server
// confirms.
func (e *Engine) Remove(ctx context.Context, id string) error {
	unlock := e.lockID(id)
	defer unlock()

	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.closed {
		e.removeLocked(id)
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// removeLocked drops a task from the working collection by identifier.
func (e *Engine) removeLocked(id string) {
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			e.tasks = append(e.tasks[:i], e.tasks[i+1:]...)
			return
		}
	}
}

// ClearCompleted deletes every completed task. Best-effort, not atomic:
// the authoritative completed subset comes from the server (the local view
// may be filtered or paginated), each deletion is attempted independently,
// and a full refresh runs afterwards regardless of partial failure.
// Requires an active session.
func (e *Engine) ClearCompleted(ctx context.Context) (deleted, failed int, err error) {
	if e.session.Token() == "" {
		return 0, 0, ErrLoginRequired
	}

	listed, err := e.repo.List(ctx, backend.Query{Status: backend.StatusCompleted})
	if err != nil {
		return 0, 0, err
	}

	// Server filtering is advisory; re-check Completed so a server that
	// ignores the status parameter never gets active tasks deleted.
	completed := listed[:0:0]
	for i := range listed {
		if listed[i].Completed {
			completed = append(completed, listed[i])
		}
	}

	// Optimistic removal; the trailing refresh reconciles whatever the
	// individual deletions actually achieved.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, 0, ErrClosed
	}
	for i := range completed {
		e.removeLocked(completed[i].ID)
	}
	e.mu.Unlock()
	e.notify()

	for i := range completed {
		if delErr := e.repo.Delete(ctx, completed[i].ID); delErr != nil {
			utils.Warnf("failed to delete completed task %s: %v", completed[i].ID, delErr)
			failed++
			continue
		}
		deleted++
	}

	if refreshErr := e.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrClosed) {
		utils.Warnf("refresh after clearing completed tasks failed: %v", refreshErr)
	}

	return deleted, failed, nil
}

// SetStar stars or unstars a task for the current user. Requires an active
// session. When this host is already known to lack the star endpoint the
// network is skipped entirely and only the wishlist overlay changes.
// Concurrent star toggles on the same task serialize on its identifier.
func (e *Engine) SetStar(ctx context.Context, id string, desired bool) error {
	if e.session.Token() == "" {
		return ErrLoginRequired
	}

	unlock := e.lockID(id)
	defer unlock()

	userID := e.session.UserID()

	if e.capability.StarUnsupported(e.host) {
		utils.Debugf("host %s has no star endpoint, caching star locally", e.host)
		return e.wishlist.SetStarred(userID, id, desired)
	}

	result, err := e.repo.SetStar(ctx, id, desired)
	switch result {
	case backend.StarSuccess:
		if cacheErr := e.wishlist.SetStarred(userID, id, desired); cacheErr != nil {
			utils.Warnf("wishlist cache write failed: %v", cacheErr)
		}
		return e.Refresh(ctx)

	case backend.StarUnauthorized:
		return ErrLoginRequired

	case backend.StarUnsupported:
		if capErr := e.capability.MarkStarUnsupported(e.host); capErr != nil {
			utils.Warnf("capability cache write failed: %v", capErr)
		}
		if cacheErr := e.wishlist.SetStarred(userID, id, desired); cacheErr != nil {
			utils.Warnf("wishlist cache write failed: %v", cacheErr)
		}
		return e.Refresh(ctx)

	default:
		// No cache mutation; re-fetch so the view shows authoritative
		// state instead of an assumed optimistic one.
		if refreshErr := e.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrClosed) {
			utils.Debugf("refresh after star failure also failed: %v", refreshErr)
		}
		return err
	}
}

// SetSearch updates the free-text filter and resets to the first page.
func (e *Engine) SetSearch(search string) {
	e.mu.Lock()
	if e.view.search != search {
		e.view.search = search
		e.view.page = 1
	}
	e.mu.Unlock()
	e.notify()
}

// SetStatus updates the completion filter and resets to the first page.
func (e *Engine) SetStatus(status backend.Status) {
	e.mu.Lock()
	if e.view.status != status {
		e.view.status = status
		e.view.page = 1
	}
	e.mu.Unlock()
	e.notify()
}

// SetPriority updates the priority filter and resets to the first page.
func (e *Engine) SetPriority(priority backend.Priority) {
	e.mu.Lock()
	if e.view.priority != priority {
		e.view.priority = priority
		e.view.page = 1
	}
	e.mu.Unlock()
	e.notify()
}

// SetStarredOnly toggles the starred-only scope and resets to the first page.
func (e *Engine) SetStarredOnly(starredOnly bool) {
	e.mu.Lock()
	if e.view.starredOnly != starredOnly {
		e.view.starredOnly = starredOnly
		e.view.page = 1
	}
	e.mu.Unlock()
	e.notify()
}

// SetSortOrder updates the sort order. The page is kept and clamped at
// snapshot time.
func (e *Engine) SetSortOrder(order SortOrder) {
	e.mu.Lock()
	e.view.sortOrder = order
	e.mu.Unlock()
	e.notify()
}

// SetPage moves to a 1-based page; out-of-range values clamp.
func (e *Engine) SetPage(page int) {
	e.mu.Lock()
	e.view.page = page // clamped against the filtered count at snapshot time
	e.mu.Unlock()
	e.notify()
}
