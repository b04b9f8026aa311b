package engine

import (
	"sort"
	"strings"

	"wishdo/backend"
)

// SortOrder selects the ordering of the derived view.
type SortOrder int

const (
	// SortCreatedDesc is the default: newest first.
	SortCreatedDesc SortOrder = iota
	SortCreatedAsc
	SortDueAsc
	SortDueDesc
)

// ParseSortOrder normalizes a sort order name.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "created-desc", "newest":
		return SortCreatedDesc, true
	case "created-asc", "oldest":
		return SortCreatedAsc, true
	case "due-asc", "due":
		return SortDueAsc, true
	case "due-desc":
		return SortDueDesc, true
	}
	return SortCreatedDesc, false
}

// viewState is the transient filter/sort/page state of one list view.
type viewState struct {
	search      string
	status      backend.Status
	priority    backend.Priority
	sortOrder   SortOrder
	page        int
	starredOnly bool
}

// matchesSearch checks the case-insensitive substring filter.
func matchesSearch(t *backend.Task, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Body), strings.ToLower(search))
}

// matchesStatus checks the completion filter.
func matchesStatus(t *backend.Task, status backend.Status) bool {
	switch status {
	case backend.StatusActive:
		return !t.Completed
	case backend.StatusCompleted:
		return t.Completed
	default:
		return true
	}
}

// matchesPriority checks priority equality, case-insensitively.
func matchesPriority(t *backend.Task, priority backend.Priority) bool {
	if priority == "" {
		return true
	}
	return strings.EqualFold(string(t.Priority), string(priority))
}

// isStarredFor applies the union rule: a task is starred for a user when
// the server lists them in starredBy or the local wishlist has the task.
// The local cache only ever adds apparent star state.
func isStarredFor(t *backend.Task, userID string, wishlistIDs map[string]struct{}) bool {
	if t.StarredByUser(userID) {
		return true
	}
	_, ok := wishlistIDs[t.ID]
	return ok
}

// filterTasks applies all view filters. Each filter is independent, so the
// result does not depend on application order.
func filterTasks(tasks []backend.Task, view viewState, userID string, wishlistIDs map[string]struct{}) []backend.Task {
	var result []backend.Task
	for i := range tasks {
		t := &tasks[i]
		if !matchesSearch(t, view.search) {
			continue
		}
		if !matchesStatus(t, view.status) {
			continue
		}
		if !matchesPriority(t, view.priority) {
			continue
		}
		if view.starredOnly && !isStarredFor(t, userID, wishlistIDs) {
			continue
		}
		result = append(result, *t)
	}
	return result
}

// compareDue orders by due date with a missing date treated as the largest
// possible value, so undated tasks land at the tail under both directions.
func compareDue(a, b *backend.Task) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	case a.DueDate.Before(*b.DueDate):
		return -1
	case a.DueDate.After(*b.DueDate):
		return 1
	default:
		return 0
	}
}

// sortTasks orders a copy of tasks by the requested order.
func sortTasks(tasks []backend.Task, order SortOrder) []backend.Task {
	sorted := make([]backend.Task, len(tasks))
	copy(sorted, tasks)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		switch order {
		case SortCreatedAsc:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortDueAsc:
			return compareDue(a, b) < 0
		case SortDueDesc:
			// Inverted date order, but undated tasks stay last.
			cmp := compareDue(a, b)
			if a.DueDate == nil || b.DueDate == nil {
				return cmp < 0
			}
			return cmp > 0
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	return sorted
}

// pageCount returns ceil(n/size), with a minimum of one page.
func pageCount(n, size int) int {
	if n <= 0 {
		return 1
	}
	count := (n + size - 1) / size
	if count < 1 {
		count = 1
	}
	return count
}

// clampPage keeps a 1-based page index inside [1, pageCount].
func clampPage(page, n, size int) int {
	max := pageCount(n, size)
	if page < 1 {
		return 1
	}
	if page > max {
		return max
	}
	return page
}

// paginate slices out the requested page, clamping the index so the view
// never points past the end of the filtered set.
func paginate(tasks []backend.Task, page, size int) ([]backend.Task, int) {
	page = clampPage(page, len(tasks), size)

	start := (page - 1) * size
	if start >= len(tasks) {
		return nil, page
	}
	end := start + size
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], page
}
