package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fakeyudi/clippi/internal/clock"
	"github.com/fakeyudi/clippi/internal/dolphin"
	"github.com/fakeyudi/clippi/internal/obs"
	"github.com/fakeyudi/clippi/internal/session"
)

// cleanupTimeout bounds the backend calls made while tearing a session down.
const cleanupTimeout = 5 * time.Second

// Backend is the recording tool the orchestrator drives. *obs.Client
// satisfies it.
type Backend interface {
	IsConnected() bool
	IsRecording() bool
	SetRecordingState(ctx context.Context, action obs.RecordingAction) error
	FilenameFormat(ctx context.Context) (string, error)
	SetFilenameFormat(ctx context.Context, format string) error
}

// Playback is a running playback process.
type Playback interface {
	// Events is closed once the process has exited.
	Events() <-chan dolphin.Event
	Kill() error
}

// Launcher starts playback processes.
type Launcher interface {
	// Check fails fast when the playback executable is unavailable.
	Check() error
	Launch(ctx context.Context, queuePath string) (Playback, error)
}

type dolphinLauncher struct {
	l *dolphin.Launcher
}

// DolphinLauncher adapts a *dolphin.Launcher to Launcher.
func DolphinLauncher(l *dolphin.Launcher) Launcher {
	return dolphinLauncher{l: l}
}

func (d dolphinLauncher) Check() error { return d.l.Check() }

func (d dolphinLauncher) Launch(ctx context.Context, queuePath string) (Playback, error) {
	p, err := d.l.Launch(ctx, queuePath)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options control one Play call.
type Options struct {
	Record          bool
	RecordAsOneFile bool
	// OutputFilename overrides every per-file name when set.
	OutputFilename string
	// OutputFolder is prefixed to the filename format when set.
	OutputFolder string
	// GameEndDelay is the grace period before the final PAUSE/STOP of a
	// replay that runs to its last game frame.
	GameEndDelay time.Duration

	StartOffset  int
	GuardFrames  int
	MarginFrames int

	// OnStatus, if set, is called from the playback goroutine after every
	// handled event. It must not block.
	OnStatus func(Status)
}

// DefaultOptions mirrors the defaults of the desktop app: no recording, one
// combined file in ProjectClippi, one second of grace.
func DefaultOptions() Options {
	s := DefaultSettings()
	return Options{
		RecordAsOneFile: s.RecordAsOneFile,
		OutputFolder:    "ProjectClippi",
		GameEndDelay:    time.Second,
		StartOffset:     s.StartOffset,
		GuardFrames:     s.GuardFrames,
		MarginFrames:    s.MarginFrames,
	}
}

func (o Options) settings() Settings {
	return Settings{
		StartOffset:     o.StartOffset,
		GuardFrames:     o.GuardFrames,
		MarginFrames:    o.MarginFrames,
		RecordAsOneFile: o.RecordAsOneFile,
	}
}

// Status is a snapshot of a running playback, for display.
type Status struct {
	Queue       string
	State       State
	File        string
	Frame       int
	Window      Window
	LastCommand obs.RecordingAction
	Recording   bool
	Done        bool
}

// Recorder plays queues and records them. At most one playback is active at
// a time.
type Recorder struct {
	backend  Backend
	launcher Launcher
	store    session.Store
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	current *run
}

type run struct {
	playback Playback
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a Recorder. backend may be nil, in which case every recording
// command is skipped. store and clk default to an in-memory store and the
// real clock.
func New(backend Backend, launcher Launcher, store session.Store, clk clock.Clock, logger *slog.Logger) *Recorder {
	if store == nil {
		store = &session.MemoryStore{}
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{
		backend:  backend,
		launcher: launcher,
		store:    store,
		clock:    clk,
		logger:   logger,
	}
}

// Play launches playback of queuePath and blocks until the queue finishes,
// the process exits, Kill is called or ctx is cancelled. Cleanup (stop the
// recording, restore the filename format, reset the session) has completed
// by the time Play returns.
//
// A missing playback executable is reported before anything is spawned, as
// the *dolphin.ExecutableNotFoundError from the launcher.
func (r *Recorder) Play(ctx context.Context, queuePath string, opts Options) error {
	if err := r.launcher.Check(); err != nil {
		return err
	}
	if err := r.Kill(); err != nil {
		r.logger.Warn("failed to kill previous playback", "err", err)
	}

	sess := session.New(queuePath, opts.Record, opts.RecordAsOneFile)
	r.recoverFormat(sess)
	if opts.Record && !sess.FilenameSaved && r.ready() {
		format, err := r.backend.FilenameFormat(ctx)
		if err != nil {
			r.logger.Warn("could not read obs filename format, leaving it untouched", "err", err)
		} else {
			sess.SavedFilenameFormat = format
			sess.FilenameSaved = true
		}
	}
	r.save(sess)

	pb, err := r.launcher.Launch(ctx, queuePath)
	if err != nil {
		r.cleanup(ctx, sess, opts)
		return fmt.Errorf("launching playback: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cur := &run{playback: pb, cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.current = cur
	r.mu.Unlock()
	defer func() {
		cancel()
		r.cleanup(ctx, sess, opts)
		r.mu.Lock()
		if r.current == cur {
			r.current = nil
		}
		r.mu.Unlock()
		close(cur.done)
	}()

	r.consume(runCtx, pb, sess, opts)
	return nil
}

// recoverFormat carries the saved filename format over from a session left
// behind by a run that could not restore it. OBS still holds that run's
// override, so reading the format back would lose the user's own.
func (r *Recorder) recoverFormat(sess *session.Session) {
	stale, err := r.store.Load()
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			r.logger.Warn("could not read previous session", "err", err)
		}
		return
	}
	if !stale.FilenameSaved {
		return
	}
	r.logger.Info("recovering filename format from an unfinished session",
		"session", stale.ID, "format", stale.SavedFilenameFormat)
	sess.SavedFilenameFormat = stale.SavedFilenameFormat
	sess.FilenameSaved = true
}

// Kill terminates the active playback and waits until its cleanup has run.
// Events still buffered from the process are discarded. It is a no-op when
// nothing is playing.
func (r *Recorder) Kill() error {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur == nil {
		return nil
	}
	cur.cancel()
	err := cur.playback.Kill()
	<-cur.done
	return err
}

// consume handles events strictly one at a time until the stream closes.
func (r *Recorder) consume(ctx context.Context, pb Playback, sess *session.Session, opts Options) {
	m := NewMachine(opts.settings(), sess, r.logger)
	st := Status{Queue: sess.QueuePath}
	events := pb.Events()
	terminated := false

	for {
		if ctx.Err() != nil {
			r.terminate(pb)
			drain(events)
			return
		}
		var ev dolphin.Event
		var ok bool
		select {
		case ev, ok = <-events:
		case <-ctx.Done():
			continue
		}
		if !ok {
			r.logger.Debug("playback stream closed")
			return
		}
		if terminated {
			continue
		}

		r.logger.Debug("playback event", "event", ev)
		for _, a := range m.Handle(ev) {
			if ctx.Err() != nil {
				break
			}
			switch a.Kind {
			case SetFilename:
				r.setFilename(ctx, a.Basename, sess, opts)
			case Command:
				if a.Delay && !r.wait(ctx, opts.GameEndDelay) {
					continue
				}
				if r.command(ctx, a.Command, opts) {
					st.LastCommand = a.Command
				}
				r.save(sess)
			case Terminate:
				terminated = true
				r.terminate(pb)
			}
		}

		switch ev.Kind {
		case dolphin.FileLoaded:
			st.File = ev.Path
		case dolphin.CurrentFrame:
			st.Frame = ev.Frame
		}
		st.State = m.State()
		st.Window = m.Window()
		st.Recording = r.ready() && r.backend.IsRecording()
		r.notify(opts, st)
	}
}

// wait blocks for the grace delay. Events keep queueing in the playback
// stream meanwhile. It reports false if ctx ended first.
func (r *Recorder) wait(ctx context.Context, d time.Duration) bool {
	r.logger.Debug("waiting for game end", "delay", d)
	select {
	case <-r.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Recorder) ready() bool {
	return r.backend != nil && r.backend.IsConnected()
}

// command sends action to the backend and reports whether it was sent.
func (r *Recorder) command(ctx context.Context, action obs.RecordingAction, opts Options) bool {
	if !opts.Record {
		r.logger.Debug("recording disabled, skipping command", "command", action)
		return false
	}
	if !r.ready() {
		r.logger.Warn("obs not connected, skipping command", "command", action)
		return false
	}
	switch action {
	case obs.Pause, obs.Stop:
		if !r.backend.IsRecording() {
			r.logger.Debug("obs not recording, skipping command", "command", action)
			return false
		}
	case obs.Unpause:
		if !r.backend.IsRecording() {
			action = obs.Start
		}
	}
	if err := r.backend.SetRecordingState(ctx, action); err != nil {
		r.logger.Warn("recording command failed", "command", action, "err", err)
		return false
	}
	r.logger.Info("recording command", "command", action)
	return true
}

func (r *Recorder) setFilename(ctx context.Context, basename string, sess *session.Session, opts Options) {
	if !opts.Record || !r.ready() {
		return
	}
	if !sess.FilenameSaved {
		r.logger.Debug("filename format was never captured, not overriding it")
		return
	}
	if r.backend.IsRecording() {
		r.logger.Debug("obs is recording, keeping the current filename")
		return
	}
	name := ComposeFilename(basename, sess.SavedFilenameFormat, opts)
	if err := r.backend.SetFilenameFormat(ctx, name); err != nil {
		r.logger.Warn("could not set obs filename format", "err", err)
		return
	}
	r.logger.Info("obs filename set", "format", name)
}

// ComposeFilename picks the filename format for a replay: the explicit
// override, else the replay's own name when files are not combined, else
// the saved format. The output folder, if any, is prefixed.
func ComposeFilename(basename, saved string, opts Options) string {
	name := saved
	switch {
	case opts.OutputFilename != "":
		name = opts.OutputFilename
	case !opts.RecordAsOneFile && basename != "":
		name = strings.TrimSuffix(basename, filepath.Ext(basename))
	}
	if opts.OutputFolder != "" {
		name = filepath.Join(opts.OutputFolder, name)
	}
	return name
}

func (r *Recorder) terminate(pb Playback) {
	if err := pb.Kill(); err != nil {
		r.logger.Warn("failed to kill playback", "err", err)
	}
}

// cleanup stops any active recording, restores the saved filename format and
// resets the session. The persisted session is only removed once nothing is
// left to restore.
func (r *Recorder) cleanup(ctx context.Context, sess *session.Session, opts Options) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if sess.Record && r.ready() && r.backend.IsRecording() {
		if err := r.backend.SetRecordingState(cctx, obs.Stop); err != nil {
			r.logger.Warn("could not stop recording during cleanup", "err", err)
		} else {
			r.logger.Info("recording command", "command", obs.Stop)
		}
	}

	restored := true
	if sess.FilenameSaved {
		restored = Restore(cctx, r.backend, sess) == nil
		if !restored {
			r.logger.Warn("filename format not restored, run `clippi restore` once obs is back",
				"format", sess.SavedFilenameFormat)
		}
	}

	if restored {
		sess.Reset()
		if err := r.store.Delete(); err != nil {
			r.logger.Warn("could not delete session", "err", err)
		}
	} else {
		r.save(sess)
	}
	r.notify(opts, Status{Queue: sess.QueuePath, State: Idle, Done: true})
}

// Restore writes the session's saved filename format back to the backend.
func Restore(ctx context.Context, backend Backend, sess *session.Session) error {
	if !sess.FilenameSaved {
		return nil
	}
	if backend == nil || !backend.IsConnected() {
		return obs.ErrNotConnected
	}
	return backend.SetFilenameFormat(ctx, sess.SavedFilenameFormat)
}

func (r *Recorder) save(sess *session.Session) {
	if err := r.store.Save(sess); err != nil {
		r.logger.Warn("could not persist session", "err", err)
	}
}

func (r *Recorder) notify(opts Options, st Status) {
	if opts.OnStatus != nil {
		opts.OnStatus(st)
	}
}

func drain(events <-chan dolphin.Event) {
	for range events {
	}
}
