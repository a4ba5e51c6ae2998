// Package ui renders the interactive conversion dashboard: one row per task
// with live progress, plus batch-level controls for pause, resume and stop.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/yhl9/chaptervox/tts"
)

// eventMsg wraps a scheduler event for the bubbletea loop.
type eventMsg tts.Event

// eventsClosedMsg signals that the scheduler's event stream ended.
type eventsClosedMsg struct{}

// taskRow is the UI-side record of one task.
type taskRow struct {
	id        string
	name      string
	status    tts.TaskStatus
	progress  int
	remaining float64
	errMsg    string
	result    *tts.AudioMeta
}

// Model is the dashboard's bubbletea model.
type Model struct {
	cfg       Config
	scheduler *tts.Scheduler
	events    <-chan tts.Event

	rows    []taskRow
	index   map[string]int
	overall float64

	bar     progress.Model
	spin    spinner.Model
	width   int
	done    bool
	started time.Time
}

// NewProgram builds the bubbletea program around an already-populated
// scheduler. The caller starts processing before or after Run; the dashboard
// reflects whatever the scheduler emits.
func NewProgram(cfg Config, scheduler *tts.Scheduler) *tea.Program {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5A56E0"))

	m := Model{
		cfg:       cfg,
		scheduler: scheduler,
		events:    scheduler.Subscribe(),
		index:     make(map[string]int),
		bar:       progress.New(progress.WithDefaultGradient()),
		spin:      sp,
		width:     80,
		started:   time.Now(),
	}
	for _, t := range scheduler.Tasks() {
		m.upsert(t)
	}
	return tea.NewProgram(&m)
}

// waitForEvent blocks on the scheduler's event channel.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.spin.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.cfg.MaxWidth > 0 && m.width > int(m.cfg.MaxWidth) {
			m.width = int(m.cfg.MaxWidth)
		}
		m.bar.Width = m.width - 10
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.scheduler.IsProcessing() {
				_ = m.scheduler.StopProcessing()
			}
			return m, tea.Quit
		case "p":
			_ = m.scheduler.PauseProcessing()
			return m, nil
		case "r":
			_ = m.scheduler.ResumeProcessing()
			return m, nil
		case "s":
			_ = m.scheduler.StopProcessing()
			return m, nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(tts.Event(msg))
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// apply folds one scheduler event into the row table.
func (m *Model) apply(ev tts.Event) {
	switch ev.Type {
	case tts.EventOverallProgress:
		m.overall = ev.Overall
		return
	case tts.EventTaskRemoved:
		if i, ok := m.index[ev.Task.ID]; ok {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			delete(m.index, ev.Task.ID)
			for j := i; j < len(m.rows); j++ {
				m.index[m.rows[j].id] = j
			}
		}
		return
	}
	m.upsert(ev.Task)

	// The batch is done when nothing can make further progress.
	if !m.scheduler.IsProcessing() {
		allSettled := true
		for _, r := range m.rows {
			if !r.status.IsTerminal() {
				allSettled = false
				break
			}
		}
		m.done = allSettled && len(m.rows) > 0
	}
}

func (m *Model) upsert(t tts.Task) {
	row := taskRow{
		id:        t.ID,
		name:      t.FilePath,
		status:    t.Status,
		progress:  t.Progress,
		remaining: t.EstimatedRemaining,
		errMsg:    t.ErrorMessage,
		result:    t.Result,
	}
	if i, ok := m.index[t.ID]; ok {
		m.rows[i] = row
		return
	}
	m.index[t.ID] = len(m.rows)
	m.rows = append(m.rows, row)
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("chaptervox"))
	b.WriteString("\n\n")

	for _, r := range m.rows {
		if !m.cfg.ShowCompleted && r.status == tts.StatusCompleted {
			continue
		}
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.overall / 100))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("p pause · r resume · s stop · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderRow(r taskRow) string {
	nameWidth := m.width - 30
	if nameWidth < 16 {
		nameWidth = 16
	}
	name := truncate.StringWithTail(r.name, uint(nameWidth), "…")

	var detail string
	switch r.status {
	case tts.StatusProcessing:
		detail = fmt.Sprintf("%s %3d%%", m.spin.View(), r.progress)
		if r.remaining > 0 {
			detail += fmt.Sprintf("  ~%s left", (time.Duration(r.remaining) * time.Second).Round(time.Second))
		}
	case tts.StatusCompleted:
		if r.result != nil {
			detail = fmt.Sprintf("%s · %s", r.result.Format, humanize.Bytes(uint64(r.result.SizeBytes)))
		} else {
			detail = "done"
		}
	case tts.StatusFailed:
		detail = errorStyle.Render(truncate.StringWithTail(r.errMsg, 40, "…"))
	default:
		detail = statusStyle(string(r.status)).Render(string(r.status))
	}

	return fmt.Sprintf(" %s %-*s %s", statusIcon(string(r.status)), nameWidth, name, detail)
}

func (m *Model) statusLine() string {
	var completed, failed, cancelled int
	for _, r := range m.rows {
		switch r.status {
		case tts.StatusCompleted:
			completed++
		case tts.StatusFailed:
			failed++
		case tts.StatusCancelled:
			cancelled++
		}
	}
	state := "running"
	switch {
	case m.done:
		state = "finished"
	case m.scheduler.IsPaused():
		state = "paused"
	}
	line := fmt.Sprintf(" %s · %d/%d done · %d failed · %d cancelled · %s",
		state, completed, len(m.rows), failed, cancelled,
		time.Since(m.started).Round(time.Second))
	return statusBarStyle.Render(line)
}
