// Package recorder turns Dolphin playback events into OBS recording commands.
//
// Machine decides what to do for each event; Recorder carries those
// decisions out against the recording backend, one event at a time.
package recorder

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fakeyudi/clippi/internal/dolphin"
	"github.com/fakeyudi/clippi/internal/obs"
	"github.com/fakeyudi/clippi/internal/session"
)

// NoFrame marks an unset window bound. It matches the frame Dolphin reports
// for an omitted playback start.
const NoFrame = -123

// Settings are the frame constants the machine works with.
type Settings struct {
	// StartOffset is added to the playback start frame to skip the load-in.
	StartOffset int
	// GuardFrames and MarginFrames drive end-frame resolution: an end marker
	// more than GuardFrames before the game end is pulled in by MarginFrames,
	// anything later is clamped to the game end.
	GuardFrames  int
	MarginFrames int
	// RecordAsOneFile pauses between replays instead of stopping.
	RecordAsOneFile bool
}

// DefaultSettings returns offset +90, guard 120, margin 60, one file.
func DefaultSettings() Settings {
	return Settings{
		StartOffset:     90,
		GuardFrames:     120,
		MarginFrames:    60,
		RecordAsOneFile: true,
	}
}

// State is the coarse recording state.
type State int

const (
	Idle State = iota
	AwaitingStart
	Recording
	PausedBetweenFiles
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingStart:
		return "awaiting start"
	case Recording:
		return "recording"
	case PausedBetweenFiles:
		return "paused between files"
	}
	return "unknown"
}

// Window is the frame range of the current replay that should be recorded.
// A bound only fires while it is armed.
type Window struct {
	StartFrame    int
	EndFrame      int
	LastGameFrame int

	startArmed bool
	endArmed   bool
}

func newWindow() Window {
	return Window{StartFrame: NoFrame, EndFrame: NoFrame, LastGameFrame: NoFrame}
}

// Armed reports whether either bound can still fire.
func (w Window) Armed() bool {
	return w.startArmed || w.endArmed
}

// ActionKind says what an Action asks the orchestrator to do.
type ActionKind int

const (
	// SetFilename points the backend at a new output filename.
	SetFilename ActionKind = iota + 1
	// Command sends a recording command to the backend.
	Command
	// Terminate kills the playback process.
	Terminate
)

// Action is one side effect decided by the Machine.
type Action struct {
	Kind ActionKind
	// Command is set for Command actions.
	Command obs.RecordingAction
	// Delay asks for the post-game grace delay before the command is sent.
	Delay bool
	// Basename is the loaded replay's file name, for SetFilename.
	Basename string
}

// Machine is the recording state machine. It owns the frame window and
// mutates the session it was given; it performs no I/O itself.
type Machine struct {
	settings Settings
	session  *session.Session
	window   Window
	state    State
	logger   *slog.Logger
}

// NewMachine returns a Machine in the Idle state.
func NewMachine(settings Settings, sess *session.Session, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Machine{
		settings: settings,
		session:  sess,
		window:   newWindow(),
		state:    Idle,
		logger:   logger,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Window returns a copy of the current frame window.
func (m *Machine) Window() Window { return m.window }

// Handle applies one playback event and returns the actions it triggers, in
// the order they must be carried out.
func (m *Machine) Handle(ev dolphin.Event) []Action {
	switch ev.Kind {
	case dolphin.FileLoaded:
		m.resetWindow()
		m.state = AwaitingStart
		if !m.settings.RecordAsOneFile || !m.session.RecordingStarted {
			return []Action{{Kind: SetFilename, Basename: filepath.Base(ev.Path)}}
		}

	case dolphin.PlaybackStartFrame:
		m.window.StartFrame = ev.Frame + m.settings.StartOffset
		m.window.startArmed = true
		m.validate()

	case dolphin.GameEndFrame:
		m.window.LastGameFrame = ev.Frame

	case dolphin.PlaybackEndFrame:
		m.window.EndFrame = ev.Frame
		m.window.endArmed = true
		m.resolveEnd()
		m.validate()

	case dolphin.CurrentFrame:
		return m.onFrame(ev.Frame)

	case dolphin.Quit:
		if m.state != Recording {
			m.resetWindow()
			return nil
		}
		m.resetWindow()
		m.state = PausedBetweenFiles
		return []Action{{Kind: Command, Command: m.endCommand()}}

	case dolphin.QueueEmpty:
		m.resetWindow()
		m.state = Idle
		return []Action{
			{Kind: Command, Command: obs.Stop},
			{Kind: Terminate},
		}
	}
	return nil
}

// resolveEnd applies the end-frame policy once both the game end and the
// playback end are known.
func (m *Machine) resolveEnd() {
	w := &m.window
	switch {
	case w.LastGameFrame == NoFrame:
		// No game end reported; trust the playback end as given.
	case w.EndFrame+m.settings.GuardFrames < w.LastGameFrame:
		w.EndFrame -= m.settings.MarginFrames
	default:
		m.session.WaitForGameEnd = true
		w.EndFrame = w.LastGameFrame
	}
}

// validate nulls the window when both bounds are known and inverted.
func (m *Machine) validate() {
	w := m.window
	if !w.startArmed || !w.endArmed || w.StartFrame <= w.EndFrame {
		return
	}
	m.logger.Warn("ignoring inverted frame window", "start", w.StartFrame, "end", w.EndFrame)
	m.resetWindow()
}

func (m *Machine) onFrame(frame int) []Action {
	var actions []Action
	w := &m.window

	if w.startArmed && frame == w.StartFrame {
		w.startArmed = false
		cmd := obs.Start
		if m.session.RecordingStarted && m.settings.RecordAsOneFile {
			cmd = obs.Unpause
		}
		m.session.RecordingStarted = true
		m.state = Recording
		actions = append(actions, Action{Kind: Command, Command: cmd})
	}

	if w.endArmed && frame == w.EndFrame {
		actions = append(actions, Action{
			Kind:    Command,
			Command: m.endCommand(),
			Delay:   m.session.WaitForGameEnd,
		})
		m.resetWindow()
		m.state = PausedBetweenFiles
	}
	return actions
}

func (m *Machine) endCommand() obs.RecordingAction {
	if m.settings.RecordAsOneFile {
		return obs.Pause
	}
	return obs.Stop
}

func (m *Machine) resetWindow() {
	m.window = newWindow()
	m.session.WaitForGameEnd = false
}
