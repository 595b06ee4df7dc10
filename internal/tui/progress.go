package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// maxEvents is how many finished-task lines the view keeps.
const maxEvents = 10

// ProgressMsg carries a progress snapshot into the model.
type ProgressMsg struct {
	Progress models.BatchProgress
}

// DoneMsg reports that the batch finished. Err is set when it was rejected.
type DoneMsg struct {
	Result *models.BatchExecutionResult
	Err    error
}

// event is one finished task shown in the activity list.
type event struct {
	at     time.Time
	taskID string
	state  models.TaskState
}

// ProgressModel shows the progress of one batch run.
type ProgressModel struct {
	title    string
	total    int
	onCancel func()

	snapshot   models.BatchProgress
	events     []event
	result     *models.BatchExecutionResult
	err        error
	done       bool
	cancelling bool
	width      int

	bar     progress.Model
	spinner spinner.Model

	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	successStyle lipgloss.Style
	failedStyle  lipgloss.Style
	skippedStyle lipgloss.Style
	runningStyle lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewProgressModel creates a model for a batch of total tasks. onCancel is
// called once when the user presses q or ctrl+c while the batch runs.
func NewProgressModel(title string, total int, onCancel func()) *ProgressModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &ProgressModel{
		title:    title,
		total:    total,
		onCancel: onCancel,
		snapshot: models.BatchProgress{TotalCount: total},
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  s,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		failedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		skippedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		runningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		hintStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// NewProgressProgram wraps a ProgressModel in a bubbletea program. Feed it
// with Send(ProgressMsg{...}) and finish with Send(DoneMsg{...}).
func NewProgressProgram(title string, total int, onCancel func()) (*tea.Program, *ProgressModel) {
	m := NewProgressModel(title, total, onCancel)
	return tea.NewProgram(m), m
}

// Init implements tea.Model.
func (m *ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				if m.onCancel != nil {
					m.onCancel()
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-20, 10), 60)

	case ProgressMsg:
		m.snapshot = msg.Progress
		if msg.Progress.LastTaskID != "" && msg.Progress.LastState.Terminal() {
			m.events = append(m.events, event{at: time.Now(), taskID: msg.Progress.LastTaskID, state: msg.Progress.LastState})
			if len(m.events) > maxEvents {
				m.events = m.events[len(m.events)-maxEvents:]
			}
		}

	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Cancelling reports whether the user asked to cancel the batch.
func (m *ProgressModel) Cancelling() bool {
	return m.cancelling
}

// Done reports whether the batch has finished.
func (m *ProgressModel) Done() bool {
	return m.done
}

// Percent returns the share of tasks in a terminal state.
func (m *ProgressModel) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	p := m.snapshot
	return float64(p.CompletedCount+p.FailedCount+p.SkippedCount) / float64(m.total)
}

// View implements tea.Model.
func (m *ProgressModel) View() string {
	var b strings.Builder

	title := m.title
	if title == "" {
		title = "Batch"
	}
	b.WriteString(m.headerStyle.Render(title))
	b.WriteString("\n")

	status := m.spinner.View() + " running"
	switch {
	case m.done && m.err != nil:
		status = m.failedStyle.Render("rejected: " + m.err.Error())
	case m.done && m.result != nil && m.result.Cancelled:
		status = m.skippedStyle.Render("cancelled")
	case m.done && m.result != nil && m.result.Succeeded():
		status = m.successStyle.Render("completed")
	case m.done:
		status = m.failedStyle.Render("completed with failures")
	case m.cancelling:
		status = m.skippedStyle.Render("cancelling...")
	}
	b.WriteString(m.labelStyle.Render("Status:"))
	b.WriteString(status)
	b.WriteString("\n")

	p := m.snapshot
	b.WriteString(m.labelStyle.Render("Tasks:"))
	b.WriteString(fmt.Sprintf("%s ok  %s failed  %s skipped  %s/%d",
		m.successStyle.Render(fmt.Sprintf("%d", p.CompletedCount)),
		m.failedStyle.Render(fmt.Sprintf("%d", p.FailedCount)),
		m.skippedStyle.Render(fmt.Sprintf("%d", p.SkippedCount)),
		m.valueStyle.Render(fmt.Sprintf("%d", p.CompletedCount+p.FailedCount+p.SkippedCount)),
		m.total))
	b.WriteString("\n")

	b.WriteString(m.labelStyle.Render("Elapsed:"))
	b.WriteString(m.valueStyle.Render(p.Elapsed.Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n")

	if len(p.RunningTaskIDs) > 0 {
		running := append([]string(nil), p.RunningTaskIDs...)
		sort.Strings(running)
		b.WriteString("\n")
		b.WriteString(m.labelStyle.Render("Running:"))
		b.WriteString(m.runningStyle.Render(strings.Join(running, ", ")))
		b.WriteString("\n")
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(fmt.Sprintf("  %s  %s %s\n", e.at.Format("15:04:05"), m.stateMark(e.state), e.taskID))
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.hintStyle.Render("q to exit"))
	} else {
		b.WriteString(m.hintStyle.Render("q / ctrl+c to cancel the batch"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *ProgressModel) stateMark(s models.TaskState) string {
	switch s {
	case models.TaskStateSucceeded:
		return m.successStyle.Render("✓")
	case models.TaskStateFailed:
		return m.failedStyle.Render("✗")
	case models.TaskStateSkipped:
		return m.skippedStyle.Render("-")
	}
	return "?"
}
