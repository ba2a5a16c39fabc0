package dolphin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Launcher owns at most one running playback Dolphin at a time.
type Launcher struct {
	// ExecPath is the full path to the Dolphin binary.
	ExecPath string
	// ISOPath is the Melee ISO. When it exists Dolphin boots the game in
	// batch mode; otherwise only the queue file is passed.
	ISOPath string

	logger  *slog.Logger
	mu      sync.Mutex
	current *Process
}

// NewLauncher returns a Launcher for the Dolphin installed in dir.
func NewLauncher(dir, isoPath, goos string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Launcher{
		ExecPath: ExecutablePath(dir, goos),
		ISOPath:  isoPath,
		logger:   logger,
	}
}

// Check reports an *ExecutableNotFoundError if the executable is missing.
func (l *Launcher) Check() error {
	if _, err := os.Stat(l.ExecPath); err != nil {
		return &ExecutableNotFoundError{Path: l.ExecPath, Err: err}
	}
	return nil
}

// Args returns the command line arguments for playing queuePath.
func (l *Launcher) Args(queuePath string) []string {
	args := []string{"-i", queuePath}
	if l.ISOPath != "" {
		if _, err := os.Stat(l.ISOPath); err == nil {
			args = append(args, "-b", "-e", l.ISOPath)
		}
	}
	return args
}

// Launch starts Dolphin on queuePath, killing any instance this Launcher
// started earlier. The executable is checked before anything is spawned.
func (l *Launcher) Launch(ctx context.Context, queuePath string) (*Process, error) {
	if err := l.Check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		if err := l.current.Kill(); err != nil {
			l.logger.Warn("failed to kill previous dolphin", "err", err)
		}
		<-l.current.Done()
		l.current = nil
	}

	cmd := exec.Command(l.ExecPath, l.Args(queuePath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("dolphin stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting dolphin: %w", err)
	}
	l.logger.Info("dolphin started", "pid", cmd.Process.Pid, "queue", queuePath)

	p := newProcess(cmd, stdout, l.logger)
	l.current = p
	return p, nil
}

// Process is a running playback Dolphin.
type Process struct {
	cmd    *exec.Cmd
	events <-chan Event
	done   chan struct{}
	err    error
}

func newProcess(cmd *exec.Cmd, stdout io.Reader, logger *slog.Logger) *Process {
	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	p.events = stream(stdout, logger, func() {
		p.err = cmd.Wait()
		logger.Info("dolphin exited", "pid", cmd.Process.Pid, "err", p.err)
		close(p.done)
	})
	return p
}

// Events delivers parsed playback events in output order. It is closed after
// the process has exited and every buffered event has been received.
func (p *Process) Events() <-chan Event {
	return p.events
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error. Only meaningful after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Kill terminates the process. Killing a process that has already exited is
// a no-op.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing dolphin: %w", err)
	}
	return nil
}
