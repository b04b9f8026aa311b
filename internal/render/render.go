// Package render formats task listings for the CLI, in aligned text or
// JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"wishdo/backend"
	"wishdo/internal/engine"
)

const (
	bodyWidth  = 44
	dateFormat = "2006-01-02"
)

// Tasks writes one line per task: completion marker, star marker, body,
// priority and due date.
func Tasks(w io.Writer, tasks []backend.Task, starred func(*backend.Task) bool) {
	for i := range tasks {
		t := &tasks[i]
		_, _ = fmt.Fprintf(w, "%s %s %s %-8s %s\n",
			completionMarker(t),
			starMarker(t, starred),
			padBody(t.Body),
			priorityLabel(t.Priority),
			formatDate(t.DueDate),
		)
	}
}

// TasksJSON writes the listing as a JSON array, one object per task.
func TasksJSON(w io.Writer, tasks []backend.Task, starred func(*backend.Task) bool) error {
	type taskJSON struct {
		ID        string `json:"id"`
		Body      string `json:"body"`
		Completed bool   `json:"completed"`
		Starred   bool   `json:"starred"`
		Priority  string `json:"priority,omitempty"`
		DueDate   string `json:"dueDate,omitempty"`
		CreatedAt string `json:"createdAt"`
	}

	output := make([]taskJSON, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		entry := taskJSON{
			ID:        t.ID,
			Body:      t.Body,
			Completed: t.Completed,
			Priority:  string(t.Priority),
			DueDate:   formatDate(t.DueDate),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if starred != nil {
			entry.Starred = starred(t)
		}
		output = append(output, entry)
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(jsonBytes))
	return nil
}

// Stats writes the summary line the list view shows under the tasks, plus
// paging information when there is more than one page.
func Stats(w io.Writer, snap engine.Snapshot) {
	_, _ = fmt.Fprintf(w, "\n%d tasks, %d completed, %d remaining\n",
		snap.Total, snap.Completed, snap.Remaining)
	if snap.PageCount > 1 {
		_, _ = fmt.Fprintf(w, "page %d of %d (%d matching)\n",
			snap.Page, snap.PageCount, snap.Filtered)
	}
}

func completionMarker(t *backend.Task) string {
	if t.Completed {
		return "[x]"
	}
	return "[ ]"
}

func starMarker(t *backend.Task, starred func(*backend.Task) bool) string {
	if starred != nil && starred(t) {
		return "*"
	}
	return " "
}

// padBody left-aligns the body to a fixed column, truncating long text with
// an ellipsis.
func padBody(body string) string {
	runes := []rune(body)
	if len(runes) > bodyWidth {
		return string(runes[:bodyWidth-3]) + "..."
	}
	return fmt.Sprintf("%-*s", bodyWidth, body)
}

func priorityLabel(p backend.Priority) string {
	if p == "" {
		return ""
	}
	return "[" + strings.ToLower(string(p)) + "]"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateFormat)
}
