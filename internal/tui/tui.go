// Package tui provides a terminal user interface over the task synchronizer.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"todosync/backend"
	"todosync/internal/synchronizer"
	"todosync/internal/views"
)

// Backend is the subset of the synchronizer the TUI drives.
type Backend interface {
	Load(ctx context.Context) ([]backend.Task, error)
	Add(ctx context.Context, input backend.NewTask) (*backend.Task, error)
	Toggle(ctx context.Context, ref backend.Ref) (bool, error)
	Delete(ctx context.Context, ref backend.Ref) (bool, error)
	Edit(ctx context.Context, ref backend.Ref, text string) (bool, error)
	Reorder(ctx context.Context, ids []int64) (bool, error)
	Tasks() []backend.Task
	Mode() synchronizer.Mode
}

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeSearch
	ModeHelp
	ModeConfirmDelete
)

// Model represents the TUI state
type Model struct {
	backend Backend
	ctx     context.Context

	tasks   []backend.Task
	visible []backend.Task
	query   views.Query
	cursor  int
	conn    synchronizer.Mode
	status  string
	err     error

	mode      Mode
	textInput textinput.Model
	progress  progress.Model

	width  int
	height int

	paneStyle      lipgloss.Style
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	errorStyle     lipgloss.Style
	onlineStyle    lipgloss.Style
	offlineStyle   lipgloss.Style
}

// opDoneMsg reports a finished synchronizer call.
type opDoneMsg struct {
	note string
	err  error
}

// New creates a new TUI model
func New(b Backend) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	return &Model{
		backend:   b,
		ctx:       context.Background(),
		textInput: ti,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		query:     views.Query{Status: views.StatusAll},
		conn:      b.Mode(),
		paneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
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
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		onlineStyle:  badge.Background(lipgloss.Color("28")).Foreground(lipgloss.Color("231")),
		offlineStyle: badge.Background(lipgloss.Color("124")).Foreground(lipgloss.Color("231")),
	}
}

// Init loads the collection.
func (m *Model) Init() tea.Cmd {
	return m.run("", func(ctx context.Context) error {
		_, err := m.backend.Load(ctx)
		return err
	})
}

// run executes fn off the UI loop and reports back with opDoneMsg.
func (m *Model) run(note string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{note: note, err: fn(m.ctx)}
	}
}

func (m *Model) selected() (backend.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return backend.Task{}, false
	}
	return m.visible[m.cursor], true
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case opDoneMsg:
		m.err = msg.err
		if msg.err == nil && msg.note != "" {
			m.status = msg.note
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd:
			return m.handleAddMode(msg)
		case ModeEdit:
			return m.handleEditMode(msg)
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
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}

	case "a":
		return m, m.openInput(ModeAdd, "New task...", "")

	case "e":
		if task, ok := m.selected(); ok {
			return m, m.openInput(ModeEdit, "", task.Text)
		}

	case " ", "x", "c":
		if task, ok := m.selected(); ok {
			note := "Task Updated!"
			return m, m.run(note, func(ctx context.Context) error {
				_, err := m.backend.Toggle(ctx, backend.ByID(task.ID))
				return err
			})
		}

	case "d":
		if _, ok := m.selected(); ok {
			m.mode = ModeConfirmDelete
		}

	case "K", "shift+up":
		return m, m.move(-1)

	case "J", "shift+down":
		return m, m.move(1)

	case "f":
		m.query.Status = m.query.Status.Next()
		m.applyQuery()

	case "/":
		return m, m.openInput(ModeSearch, "Search...", m.query.Search)

	case "r":
		return m, m.Init()

	case "?":
		m.mode = ModeHelp
	}
	return m, nil
}

func (m *Model) openInput(mode Mode, placeholder, value string) tea.Cmd {
	m.mode = mode
	m.textInput.Reset()
	m.textInput.Placeholder = placeholder
	m.textInput.SetValue(value)
	m.textInput.Focus()
	return textinput.Blink
}

// move swaps the selected task with its neighbour in the full collection.
func (m *Model) move(delta int) tea.Cmd {
	task, ok := m.selected()
	if !ok {
		return nil
	}
	idx := backend.ByID(task.ID).Resolve(m.tasks)
	target := idx + delta
	if idx < 0 || target < 0 || target >= len(m.tasks) {
		return nil
	}

	ids := backend.IDs(m.tasks)
	ids[idx], ids[target] = ids[target], ids[idx]
	m.cursor += delta
	return m.run("", func(ctx context.Context) error {
		_, err := m.backend.Reorder(ctx, ids)
		return err
	})
}

func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := m.textInput.Value()
		m.mode = ModeNormal
		return m, m.run("Task Saved!", func(ctx context.Context) error {
			_, err := m.backend.Add(ctx, backend.NewTask{Text: value})
			return err
		})

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := m.textInput.Value()
		m.mode = ModeNormal
		if task, ok := m.selected(); ok {
			return m, m.run("Task Updated!", func(ctx context.Context) error {
				_, err := m.backend.Edit(ctx, backend.ByID(task.ID), value)
				return err
			})
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.query.Search = m.textInput.Value()
		m.applyQuery()
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.query.Search = ""
		m.applyQuery()
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if task, ok := m.selected(); ok {
			return m, m.run("Task deleted", func(ctx context.Context) error {
				_, err := m.backend.Delete(ctx, backend.ByID(task.ID))
				return err
			})
		}
	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

// refresh pulls the collection and mode from the backend.
func (m *Model) refresh() {
	m.tasks = m.backend.Tasks()
	m.conn = m.backend.Mode()
	m.applyQuery()
}

func (m *Model) applyQuery() {
	m.visible = views.Apply(m.tasks, m.query)
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderInputDialog("Add New Task", "Enter: save  Esc: cancel")
	case ModeEdit:
		title := "Edit Task"
		if task, ok := m.selected(); ok {
			title = "Edit: " + task.Text
		}
		return m.renderInputDialog(title, "Enter: save  Esc: cancel")
	case ModeSearch:
		return m.renderInputDialog("Search Tasks", "Enter: search  Esc: clear")
	case ModeHelp:
		return m.renderHelpDialog()
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.paneStyle.Width(m.width - 2).Height(m.height - 6).Render(m.renderTasks()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderHeader() string {
	badge := m.onlineStyle.Render(synchronizer.ModeOnline.String())
	if m.conn == synchronizer.ModeOffline {
		badge = m.offlineStyle.Render(synchronizer.ModeOffline.String())
	}
	summary := views.Summarize(m.tasks)
	bar := m.progress.ViewAs(float64(summary.Percent) / 100)
	return fmt.Sprintf("%s  %s  %s", badge, bar, views.FormatSummary(summary))
}

func (m *Model) renderTasks() string {
	var b strings.Builder
	title := "Tasks"
	if m.query.Status != views.StatusAll {
		title += " (" + string(m.query.Status) + ")"
	}
	b.WriteString(title + "\n")

	if len(m.visible) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	for i, task := range m.visible {
		cursor := " "
		text := task.Text
		switch {
		case task.Completed:
			text = m.completedStyle.Render(text)
		case i == m.cursor:
			text = m.selectedStyle.Render(text)
		}
		if i == m.cursor {
			cursor = ">"
		}

		check := "[ ]"
		if task.Completed {
			check = "[✓]"
		}
		line := cursor + " " + check + " " + text
		if task.Category != "" {
			line += m.helpStyle.Render(" {" + task.Category + "}")
		}
		if task.DueDate != "" {
			line += m.helpStyle.Render(" due " + strings.TrimSpace(task.DueDate+" "+task.TimeSlot))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := m.status
	if m.err != nil {
		left = m.errorStyle.Render(firstLine(m.err.Error()))
	}

	right := "q:quit  ?:help"
	if m.query.Search != "" {
		right = "Search: " + m.query.Search + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (m *Model) renderInputDialog(title, hint string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render(hint),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up

Actions:
  a      Add new task
  e      Edit selected task
  space  Toggle task completion
  d      Delete task (with confirm)
  J/K    Move task down/up
  f      Cycle all/active/completed
  /      Search tasks
  r      Reload

General:
  ?      Show this help
  q      Quit

Press any key to close`

	return m.centerDialog(m.dialogStyle.Render(help))
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := "Delete selected task?"
	if task, ok := m.selected(); ok {
		title = fmt.Sprintf("Delete %q?", task.Text)
	}
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.helpStyle.Render("y: yes  n: no"),
	)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
