// Package tui provides a Bubble Tea monitor for a running playback.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/clippi/internal/obs"
	"github.com/fakeyudi/clippi/internal/recorder"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	frameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	recordingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pausedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	idleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	fileStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

var commandStyles = map[obs.RecordingAction]lipgloss.Style{
	obs.Start:   lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
	obs.Unpause: lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
	obs.Pause:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	obs.Stop:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
}

// ── Messages ────────────

// StatusMsg carries a recorder status snapshot into the program.
type StatusMsg recorder.Status

// DoneMsg reports that playback has finished. The monitor quits on it.
type DoneMsg struct {
	Err error
}

// ── Model ────────────────────

// headerRows is title(1) + four status rows + blank(1); the status bar adds one more.
const headerRows = 7

// Model is the root Bubble Tea model of the playback monitor.
type Model struct {
	queue    string
	spinner  spinner.Model
	viewport viewport.Model
	status   recorder.Status
	lines    []string
	width    int
	height   int
	ready    bool
	done     bool
	err      error
}

// New creates a monitor for the queue at queuePath.
func New(queuePath string) Model {
	return Model{
		queue:   filepath.Base(queuePath),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Err returns the playback error delivered with DoneMsg, if any.
func (m Model) Err() error { return m.err }

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return m.spinner.Tick }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - headerRows - 1
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refreshLog()
		return m, nil

	case StatusMsg:
		m.apply(recorder.Status(msg))
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if msg.Err != nil {
			m.lines = append(m.lines, errorStyle.Render("  ✗ "+msg.Err.Error()))
		}
		m.refreshLog()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply records st and appends log lines for a new file or command.
func (m *Model) apply(st recorder.Status) {
	prev := m.status
	m.status = st
	if st.File != "" && st.File != prev.File {
		m.lines = append(m.lines, fileStyle.Render("  ▶ "+filepath.Base(st.File)))
	}
	if st.LastCommand != "" && st.LastCommand != prev.LastCommand {
		m.lines = append(m.lines, fmt.Sprintf("    %s  %s",
			frameStyle.Render(fmt.Sprintf("frame %6d", st.Frame)),
			commandStyles[st.LastCommand].Render(string(st.LastCommand)),
		))
	}
	if st.Done && !prev.Done {
		m.lines = append(m.lines, dimStyle.Render("  queue finished"))
	}
	m.refreshLog()
}

func (m *Model) refreshLog() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  clippi  " + m.queue)

	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-8s", label)) + "  " + value + "\n")
	}
	row("State", m.stateView())
	file := dimStyle.Render("waiting for dolphin…")
	if m.status.File != "" {
		file = filepath.Base(m.status.File)
	}
	row("Replay", file)
	row("Frame", frameStyle.Render(fmt.Sprint(m.status.Frame)))
	row("Window", windowView(m.status.Window))

	hint := "  ↑/↓ scroll  q quit"
	if m.done {
		hint = "  done  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint)

	return lipgloss.JoinVertical(lipgloss.Left, title, sb.String(), m.viewport.View(), statusBar)
}

func (m Model) stateView() string {
	label := m.status.State.String()
	switch {
	case m.done:
		return idleStyle.Render("finished")
	case m.status.Recording && m.status.State == recorder.Recording:
		return recordingStyle.Render("● " + label)
	case m.status.State == recorder.PausedBetweenFiles:
		return pausedStyle.Render("❚❚ " + label)
	}
	return m.spinner.View() + " " + idleStyle.Render(label)
}

func windowView(w recorder.Window) string {
	bound := func(f int) string {
		if f == recorder.NoFrame {
			return "–"
		}
		return fmt.Sprint(f)
	}
	s := bound(w.StartFrame) + " → " + bound(w.EndFrame)
	if !w.Armed() {
		s = dimStyle.Render(s)
	}
	return s
}
