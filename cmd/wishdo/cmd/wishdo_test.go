package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wishdo/internal/session"
	"wishdo/internal/testutil"
)

// fixture wires Execute to a fake API server, a throwaway data directory
// and an in-memory keyring, so commands run exactly as in production but
// fully isolated.
type fixture struct {
	server *testutil.FakeServer
	opts   *Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := testutil.NewFakeServer()
	t.Cleanup(server.Close)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	configYAML := fmt.Sprintf("server:\n  url: %s\npage_size: 10\ndata_dir: %s\n", server.URL(), dir)
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	return &fixture{
		server: server,
		opts: &Options{
			ConfigPath: configPath,
			Keyring:    session.NewMockKeyring(),
		},
	}
}

// run executes a command and returns exit code, stdout and stderr.
func (f *fixture) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr, f.opts)
	return code, stdout.String(), stderr.String()
}

// login registers an account on the fake server and logs the CLI in.
func (f *fixture) login(t *testing.T) {
	t.Helper()
	f.server.AddUser("Ann", "ann@example.com", "s3cret")
	f.opts.Stdin = strings.NewReader("s3cret\n")
	code, _, stderr := f.run("login", "--email", "ann@example.com")
	if code != 0 {
		t.Fatalf("login failed: %s", stderr)
	}
	f.opts.Stdin = nil
}

func TestHelpFlag(t *testing.T) {
	f := newFixture(t)

	code, stdout, stderr := f.run("--help")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "wishdo") || !strings.Contains(stdout, "Usage:") {
		t.Errorf("help output missing basics: %s", stdout)
	}
}

func TestVersionCommand(t *testing.T) {
	f := newFixture(t)

	code, stdout, _ := f.run("version")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stdout, "Version:") || !strings.Contains(stdout, "Commit:") {
		t.Errorf("version output = %s", stdout)
	}
}

func TestVersionJSON(t *testing.T) {
	f := newFixture(t)

	code, stdout, _ := f.run("version", "--json")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if payload["version"] == "" {
		t.Errorf("payload = %v", payload)
	}
}

func TestListShowsTasks(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)
	f.server.AddTask("walk dog", true)

	code, stdout, stderr := f.run("list")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "buy milk") || !strings.Contains(stdout, "walk dog") {
		t.Errorf("listing missing tasks:\n%s", stdout)
	}
	if !strings.Contains(stdout, "2 tasks, 1 completed, 1 remaining") {
		t.Errorf("stats line missing:\n%s", stdout)
	}
}

func TestListJSON(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)

	code, stdout, _ := f.run("list", "--json")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}

	var tasks []map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &tasks); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if len(tasks) != 1 || tasks[0]["body"] != "buy milk" {
		t.Errorf("tasks = %v", tasks)
	}
}

func TestListStatusFilter(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)
	f.server.AddTask("walk dog", true)

	code, stdout, _ := f.run("list", "--status", "active")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stdout, "buy milk") {
		t.Errorf("active task missing:\n%s", stdout)
	}
	if strings.Contains(stdout, "walk dog") {
		t.Errorf("completed task leaked into active listing:\n%s", stdout)
	}
}

func TestListRejectsBadFilter(t *testing.T) {
	f := newFixture(t)

	code, _, stderr := f.run("list", "--status", "bogus")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr, "invalid status") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestAddRequiresLogin(t *testing.T) {
	f := newFixture(t)

	code, _, stderr := f.run("add", "water plants")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr, "requires an account") {
		t.Errorf("stderr = %s", stderr)
	}
	if f.server.TaskCount() != 0 {
		t.Errorf("task was created without a session")
	}
}

func TestAddCreatesTask(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	code, stdout, stderr := f.run("add", "water", "plants", "--priority", "high")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Added task: water plants") {
		t.Errorf("stdout = %s", stdout)
	}
	if f.server.TaskCount() != 1 {
		t.Errorf("server has %d tasks, want 1", f.server.TaskCount())
	}
}

func TestAddRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	code, _, stderr := f.run("add", "   ")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr, "body") {
		t.Errorf("stderr = %s", stderr)
	}
	if f.server.TaskCount() != 0 {
		t.Errorf("invalid task reached the server")
	}
}

func TestDoneTogglesByBodyMatch(t *testing.T) {
	f := newFixture(t)
	id := f.server.AddTask("buy milk", false)
	f.login(t)

	code, stdout, stderr := f.run("done", "milk")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Marked completed: buy milk") {
		t.Errorf("stdout = %s", stdout)
	}
	if !f.server.Task(id).Completed {
		t.Errorf("task not completed on server")
	}
}

func TestDoneAmbiguousReference(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)
	f.server.AddTask("buy bread", false)
	f.login(t)

	code, _, stderr := f.run("done", "buy")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr, "matches 2 tasks") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestRmDeletesTask(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)
	f.login(t)

	code, stdout, stderr := f.run("rm", "milk")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Deleted task: buy milk") {
		t.Errorf("stdout = %s", stdout)
	}
	if f.server.TaskCount() != 0 {
		t.Errorf("task still on server")
	}
}

func TestClearCompleted(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("old one", true)
	f.server.AddTask("old two", true)
	f.server.AddTask("current", false)
	f.login(t)

	code, stdout, stderr := f.run("clear-completed")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Cleared 2 completed tasks") {
		t.Errorf("stdout = %s", stdout)
	}
	if f.server.TaskCount() != 1 {
		t.Errorf("server has %d tasks, want 1", f.server.TaskCount())
	}
}

func TestStarRecordsOnServer(t *testing.T) {
	f := newFixture(t)
	id := f.server.AddTask("buy milk", false)
	f.login(t)

	code, stdout, stderr := f.run("star", "milk")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Starred: buy milk") {
		t.Errorf("stdout = %s", stdout)
	}
	if len(f.server.Task(id).StarredBy) != 1 {
		t.Errorf("starredBy = %v", f.server.Task(id).StarredBy)
	}
}

func TestStarForbiddenFallsBackToWishlist(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)
	f.server.SetStarMode(testutil.StarForbidden)
	f.login(t)

	code, _, stderr := f.run("star", "milk")
	if code != 0 {
		t.Fatalf("star should fall back locally, got: %s", stderr)
	}

	code, stdout, stderr := f.run("wishlist")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "buy milk") {
		t.Errorf("wishlist listing missing starred task:\n%s", stdout)
	}
}

func TestWishlistEmpty(t *testing.T) {
	f := newFixture(t)
	f.server.AddTask("buy milk", false)

	code, stdout, _ := f.run("wishlist")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stdout, "No starred tasks.") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.server.AddUser("Ann", "ann@example.com", "s3cret")
	f.opts.Stdin = strings.NewReader("wrong\n")

	code, _, stderr := f.run("login", "--email", "ann@example.com")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if stderr == "" {
		t.Error("expected an error message")
	}
}

func TestWhoami(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	code, stdout, stderr := f.run("whoami")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Ann <ann@example.com>") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestWhoamiLoggedOut(t *testing.T) {
	f := newFixture(t)

	code, _, stderr := f.run("whoami")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr, "requires an account") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	code, stdout, _ := f.run("logout")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stdout, "Logged out.") {
		t.Errorf("stdout = %s", stdout)
	}

	code, _, _ = f.run("whoami")
	if code != 1 {
		t.Error("session survived logout")
	}
}

func TestJSONErrorOutput(t *testing.T) {
	f := newFixture(t)

	code, stdout, _ := f.run("add", "task", "--json")
	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("error output is not JSON: %v\n%s", err, stdout)
	}
	if payload["error"] == "" {
		t.Errorf("payload = %v", payload)
	}
}
