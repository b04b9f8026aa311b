package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"wishdo/backend"
	"wishdo/internal/engine"
)

func TestTasksText(t *testing.T) {
	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	tasks := []backend.Task{
		{ID: "1", Body: "buy milk", Priority: backend.PriorityHigh, DueDate: &due},
		{ID: "2", Body: "walk dog", Completed: true},
	}

	var buf bytes.Buffer
	Tasks(&buf, tasks, func(task *backend.Task) bool { return task.ID == "1" })

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[ ] *") {
		t.Errorf("starred active task line = %q", lines[0])
	}
	if !strings.Contains(lines[0], "[high]") || !strings.Contains(lines[0], "2026-09-15") {
		t.Errorf("metadata missing: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[x]  ") {
		t.Errorf("completed unstarred task line = %q", lines[1])
	}
}

func TestTasksTruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("x", 100)
	var buf bytes.Buffer
	Tasks(&buf, []backend.Task{{ID: "1", Body: long}}, nil)

	if !strings.Contains(buf.String(), "...") {
		t.Error("long body not truncated")
	}
	if strings.Contains(buf.String(), long) {
		t.Error("full long body rendered")
	}
}

func TestTasksJSON(t *testing.T) {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	tasks := []backend.Task{
		{ID: "1", Body: "buy milk", CreatedAt: created},
	}

	var buf bytes.Buffer
	if err := TasksJSON(&buf, tasks, func(*backend.Task) bool { return true }); err != nil {
		t.Fatalf("render: %v", err)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("got %d entries", len(decoded))
	}
	if decoded[0]["id"] != "1" || decoded[0]["starred"] != true {
		t.Errorf("entry = %v", decoded[0])
	}
}

func TestTasksJSONEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := TasksJSON(&buf, nil, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty listing = %q, want []", got)
	}
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	Stats(&buf, engine.Snapshot{Total: 5, Completed: 2, Remaining: 3, Page: 1, PageCount: 1, Filtered: 5})

	out := buf.String()
	if !strings.Contains(out, "5 tasks, 2 completed, 3 remaining") {
		t.Errorf("stats line = %q", out)
	}
	if strings.Contains(out, "page") {
		t.Error("single page listing shows paging info")
	}

	buf.Reset()
	Stats(&buf, engine.Snapshot{Total: 25, Completed: 0, Remaining: 25, Page: 2, PageCount: 3, Filtered: 25})
	if !strings.Contains(buf.String(), "page 2 of 3 (25 matching)") {
		t.Errorf("paged stats = %q", buf.String())
	}
}
