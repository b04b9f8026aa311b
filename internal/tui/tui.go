// Package tui provides an interactive terminal view over the task list
// engine. The model is a thin controller: every mutation goes through the
// engine and the screen re-renders from engine snapshots.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wishdo/backend"
	"wishdo/internal/engine"
)

// Mode indicates the current input mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeSearch
	ModeHelp
	ModeConfirmDelete
)

// Model represents the TUI state.
type Model struct {
	engine *engine.Engine
	ctx    context.Context

	snapshot engine.Snapshot
	cursor   int

	mode      Mode
	textInput textinput.Model
	status    backend.Status
	starred   bool
	statusMsg string

	changes chan struct{}
	unsub   func()

	width  int
	height int

	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	starStyle      lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	errorStyle     lipgloss.Style
}

type changedMsg struct{}

type opDoneMsg struct {
	err error
}

// New creates a TUI model over an engine.
func New(ctx context.Context, e *engine.Engine) *Model {
	ti := textinput.New()
	ti.CharLimit = backend.MaxBodyLength

	m := &Model{
		engine:    e,
		ctx:       ctx,
		textInput: ti,
		status:    backend.StatusAll,
		snapshot:  e.Snapshot(),
		changes:   make(chan struct{}, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		starStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
	}

	m.unsub = e.Subscribe(func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})

	return m
}

// Init starts the first refresh and the change listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.waitForChange())
}

// waitForChange blocks until the engine notifies a change.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return changedMsg{}
	}
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.engine.Refresh(m.ctx)}
	}
}

func (m *Model) addTask(body string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.engine.Add(m.ctx, backend.CreatePayload{Body: body})
		return opDoneMsg{err: err}
	}
}

func (m *Model) editTask(id, body string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.engine.Edit(m.ctx, id, backend.Updates{Body: &body})}
	}
}

func (m *Model) toggleComplete(id string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.engine.ToggleComplete(m.ctx, id)}
	}
}

func (m *Model) toggleStar(id string, desired bool) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.engine.SetStar(m.ctx, id, desired)}
	}
}

func (m *Model) removeTask(id string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.engine.Remove(m.ctx, id)}
	}
}

// selected returns the task under the cursor, or nil.
func (m *Model) selected() *backend.Task {
	if m.cursor < 0 || m.cursor >= len(m.snapshot.Tasks) {
		return nil
	}
	return &m.snapshot.Tasks[m.cursor]
}

// resnapshot pulls a fresh snapshot and keeps the cursor in range.
func (m *Model) resnapshot() {
	m.snapshot = m.engine.Snapshot()
	if m.cursor >= len(m.snapshot.Tasks) {
		m.cursor = len(m.snapshot.Tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.resnapshot()
		return m, m.waitForChange()

	case opDoneMsg:
		m.resnapshot()
		if msg.err != nil {
			m.statusMsg = describeError(msg.err)
		} else {
			m.statusMsg = ""
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd, ModeEdit:
			return m.handleInputMode(msg)
		case ModeSearch:
			return m.handleSearchMode(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	return m, nil
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.snapshot.Tasks)-1 {
			m.cursor++
		}
		return m, nil

	case "right", "n":
		m.engine.SetPage(m.snapshot.Page + 1)
		m.resnapshot()
		m.cursor = 0
		return m, nil

	case "left", "p":
		m.engine.SetPage(m.snapshot.Page - 1)
		m.resnapshot()
		m.cursor = 0
		return m, nil

	case "r":
		return m, m.refresh()

	case "a":
		m.mode = ModeAdd
		m.textInput.Reset()
		m.textInput.Placeholder = "New task..."
		m.textInput.Focus()
		return m, textinput.Blink

	case "e":
		if t := m.selected(); t != nil {
			m.mode = ModeEdit
			m.textInput.Reset()
			m.textInput.SetValue(t.Body)
			m.textInput.Focus()
			return m, textinput.Blink
		}
		return m, nil

	case "c":
		if t := m.selected(); t != nil {
			return m, m.toggleComplete(t.ID)
		}
		return m, nil

	case "s":
		if t := m.selected(); t != nil {
			return m, m.toggleStar(t.ID, !m.engine.Starred(t))
		}
		return m, nil

	case "d":
		if m.selected() != nil {
			m.mode = ModeConfirmDelete
		}
		return m, nil

	case "f":
		m.status = nextStatus(m.status)
		m.engine.SetStatus(m.status)
		m.resnapshot()
		m.cursor = 0
		return m, nil

	case "*":
		m.starred = !m.starred
		m.engine.SetStarredOnly(m.starred)
		m.resnapshot()
		m.cursor = 0
		return m, nil

	case "/":
		m.mode = ModeSearch
		m.textInput.Reset()
		m.textInput.Placeholder = "Search..."
		m.textInput.Focus()
		return m, textinput.Blink

	case "?":
		m.mode = ModeHelp
		return m, nil
	}

	return m, nil
}

func (m *Model) handleInputMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		mode := m.mode
		m.mode = ModeNormal
		if value == "" {
			return m, nil
		}
		if mode == ModeAdd {
			return m, m.addTask(value)
		}
		if t := m.selected(); t != nil {
			return m, m.editTask(t.ID, value)
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.engine.SetSearch(m.textInput.Value())
		m.resnapshot()
		m.cursor = 0
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.engine.SetSearch("")
		m.resnapshot()
		m.cursor = 0
		m.mode = ModeNormal
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if t := m.selected(); t != nil {
			return m, m.removeTask(t.ID)
		}
		return m, nil

	case "n", "N", "esc":
		m.mode = ModeNormal
		return m, nil
	}
	return m, nil
}

// nextStatus cycles all -> active -> completed -> all.
func nextStatus(s backend.Status) backend.Status {
	switch s {
	case backend.StatusAll:
		return backend.StatusActive
	case backend.StatusActive:
		return backend.StatusCompleted
	default:
		return backend.StatusAll
	}
}

// describeError maps engine errors to a short status line.
func describeError(err error) string {
	switch {
	case errors.Is(err, engine.ErrLoginRequired):
		return "login required (run: wishdo login)"
	case engine.IsValidation(err):
		return err.Error()
	default:
		return err.Error()
	}
}

// View renders the TUI.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	var b strings.Builder
	b.WriteString("Tasks\n")
	b.WriteString(strings.Repeat("─", min(m.width, 60)))
	b.WriteString("\n")

	if m.snapshot.State == engine.StateLoading && len(m.snapshot.Tasks) == 0 {
		b.WriteString("Loading...\n")
	} else if len(m.snapshot.Tasks) == 0 {
		b.WriteString("No tasks\n")
	}

	for i := range m.snapshot.Tasks {
		t := &m.snapshot.Tasks[i]

		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}

		marker := "[ ]"
		if t.Completed {
			marker = "[x]"
		}

		star := " "
		if m.engine.Starred(t) {
			star = m.starStyle.Render("*")
		}

		body := t.Body
		if t.Completed {
			body = m.completedStyle.Render(body)
		} else if i == m.cursor {
			body = m.selectedStyle.Render(body)
		}

		due := ""
		if t.DueDate != nil {
			due = "  due " + t.DueDate.Format("2006-01-02")
		}

		b.WriteString(cursor + " " + marker + star + " " + body + due + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	switch m.mode {
	case ModeAdd:
		return m.renderDialog("Add Task", m.textInput.View(), "Enter: confirm  Esc: cancel")
	case ModeEdit:
		return m.renderDialog("Edit Task", m.textInput.View(), "Enter: confirm  Esc: cancel")
	case ModeSearch:
		return m.renderDialog("Search", m.textInput.View(), "Enter: apply  Esc: clear")
	case ModeHelp:
		return m.renderDialog("Help", helpText, "Press any key to close")
	case ModeConfirmDelete:
		return m.renderDialog("Delete selected task?", "", "y: yes  n: no")
	}

	return b.String()
}

const helpText = `Navigation:
  j/k    Move cursor
  n/p    Next / previous page

Actions:
  a      Add task
  e      Edit task
  c      Toggle completion
  s      Toggle star
  d      Delete (with confirm)
  r      Refresh from server

Filters:
  /      Search
  f      Cycle status filter
  *      Starred only

q quits`

func (m *Model) renderStatusBar() string {
	var parts []string
	parts = append(parts, statusLabel(m.status))
	if m.starred {
		parts = append(parts, "starred")
	}
	if m.snapshot.PageCount > 1 {
		parts = append(parts, pageLabel(m.snapshot.Page, m.snapshot.PageCount))
	}
	left := strings.Join(parts, "  ")

	right := "?:help  q:quit"
	if m.statusMsg != "" {
		right = m.errorStyle.Render(m.statusMsg)
	} else if m.snapshot.State == engine.StateErrored && m.snapshot.Err != nil {
		right = m.errorStyle.Render("offline: " + m.snapshot.Err.Error())
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func statusLabel(s backend.Status) string {
	switch s {
	case backend.StatusActive:
		return "filter: active"
	case backend.StatusCompleted:
		return "filter: completed"
	default:
		return "filter: all"
	}
}

func pageLabel(page, count int) string {
	return fmt.Sprintf("page %d/%d", page, count)
}

func (m *Model) renderDialog(title, body, help string) string {
	content := title
	if body != "" {
		content += "\n\n" + body
	}
	content += "\n\n" + m.helpStyle.Render(help)
	dialog := m.dialogStyle.Render(content)

	lines := strings.Split(dialog, "\n")
	topPad := (m.height - len(lines)) / 2
	if topPad < 0 {
		topPad = 0
	}
	leftPad := 0
	if w := lipgloss.Width(dialog); m.width > w {
		leftPad = (m.width - w) / 2
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
