package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fakeyudi/clippi/internal/dolphin"
	"github.com/fakeyudi/clippi/internal/obs"
	"github.com/fakeyudi/clippi/internal/queue"
	"github.com/fakeyudi/clippi/internal/recorder"
	"github.com/fakeyudi/clippi/internal/session"
	"github.com/fakeyudi/clippi/internal/tui"
)

var (
	playQueueFile      string
	playRecord         bool
	playOneFile        bool
	playOutputFilename string
	playOutputFolder   string
	playMonitor        bool
)

var playCmd = &cobra.Command{
	Use:   "play [replays or folders...]",
	Short: "Play replays in Dolphin, recording them with OBS if asked",
	Long: `Play replays in Dolphin, in the order given. Folders are expanded to the
.slp files they contain. With --record, OBS starts, pauses and stops in step
with the games so only gameplay ends up in the recording.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if playQueueFile == "" && len(args) == 0 {
			return errors.New("give replays to play or --queue <file>")
		}

		queuePath, cleanup, err := prepareQueue(args)
		if err != nil {
			return err
		}
		if queuePath == "" {
			cmd.Println("No replays to play.")
			return nil
		}
		defer cleanup()

		cmd.SilenceUsage = true
		return runPlay(cmd, queuePath, playOptions(cmd))
	},
}

// prepareQueue returns the queue file to hand to Dolphin, writing a temp file
// for loose replays. An empty path means there is nothing to play.
func prepareQueue(args []string) (string, func(), error) {
	noop := func() {}
	if playQueueFile != "" {
		q, err := queue.Load(playQueueFile)
		if err != nil {
			return "", noop, err
		}
		if q.Empty() {
			return "", noop, nil
		}
		return playQueueFile, noop, nil
	}

	q := queue.FromFiles(expandReplays(args))
	if q.Empty() {
		return "", noop, nil
	}
	path, err := queue.WriteTemp(q, "", time.Now())
	if err != nil {
		return "", noop, err
	}
	return path, func() { os.Remove(path) }, nil
}

// expandReplays replaces every folder in args with its replays, sorted by
// name. Files are passed through untouched.
func expandReplays(args []string) []string {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err == nil && !d.IsDir() && queue.IsReplay(path) {
				found = append(found, path)
			}
			return nil
		})
		sort.Strings(found)
		out = append(out, found...)
	}
	return out
}

// addRecordFlags registers the recording flags shared by play and watch.
func addRecordFlags(fs *pflag.FlagSet) {
	fs.BoolVarP(&playRecord, "record", "r", false, "record with OBS (default from setup)")
	fs.BoolVar(&playOneFile, "one-file", true, "combine all replays into one recording")
	fs.StringVar(&playOutputFilename, "output-filename", "", "OBS filename format override")
	fs.StringVar(&playOutputFolder, "output-folder", "", "folder prefixed to the OBS filename")
}

// playOptions merges the play flags over the config and profile defaults.
func playOptions(cmd *cobra.Command) recorder.Options {
	opts := recorder.DefaultOptions()
	opts.Record = activeProfile != nil && activeProfile.Record
	if cmd.Flags().Changed("record") {
		opts.Record = playRecord
	}
	opts.RecordAsOneFile = cfg.OneFile()
	if cmd.Flags().Changed("one-file") {
		opts.RecordAsOneFile = playOneFile
	}
	opts.OutputFolder = cfg.OutputFolder
	if cmd.Flags().Changed("output-folder") {
		opts.OutputFolder = playOutputFolder
	}
	opts.OutputFilename = cfg.OutputFilename
	if playOutputFilename != "" {
		opts.OutputFilename = playOutputFilename
	}
	opts.GameEndDelay = cfg.GameEndDelay()
	opts.StartOffset = cfg.StartFrameOffset
	opts.GuardFrames = cfg.GuardFrames
	opts.MarginFrames = cfg.MarginFrames
	return opts
}

func runPlay(cmd *cobra.Command, queuePath string, opts recorder.Options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log := logger
	if playMonitor {
		// The monitor owns the terminal; logs go to a file instead.
		f, err := openLogFile()
		if err != nil {
			return err
		}
		defer f.Close()
		log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	client := maybeConnectOBS(ctx, cmd, opts.Record)
	if client != nil {
		defer client.Close()
	}
	rec, err := newRecorder(client, log)
	if err != nil {
		return err
	}

	if !playMonitor {
		return playError(rec.Play(ctx, queuePath, opts))
	}
	return runMonitor(ctx, rec, queuePath, opts)
}

// maybeConnectOBS connects when recording is wanted. A failed connection is
// reported and playback continues without recording.
func maybeConnectOBS(ctx context.Context, cmd *cobra.Command, record bool) *obs.Client {
	if !record {
		return nil
	}
	client, err := connectOBS(ctx)
	if err != nil {
		logger.Warn("obs unavailable, playing without recording", "err", err)
		cmd.PrintErrln("  ⚠ Could not reach OBS; replays will play without recording.")
		return nil
	}
	return client
}

func runMonitor(ctx context.Context, rec *recorder.Recorder, queuePath string, opts recorder.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(queuePath), tea.WithAltScreen())
	opts.OnStatus = func(s recorder.Status) { p.Send(tui.StatusMsg(s)) }

	errc := make(chan error, 1)
	go func() {
		err := rec.Play(ctx, queuePath, opts)
		errc <- err
		p.Send(tui.DoneMsg{Err: err})
	}()

	_, runErr := p.Run()
	// Quitting the monitor early stops playback.
	cancel()
	playErr := <-errc
	if runErr != nil {
		return runErr
	}
	return playError(playErr)
}

func openLogFile() (io.WriteCloser, error) {
	dir, err := session.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "clippi.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// playError attaches the platform's install hint to a missing executable.
func playError(err error) error {
	var nf *dolphin.ExecutableNotFoundError
	if errors.As(err, &nf) {
		return fmt.Errorf("%w\n%s", err, dolphin.Remediation(runtime.GOOS))
	}
	return err
}

func init() {
	playCmd.Flags().StringVarP(&playQueueFile, "queue", "q", "", "play a saved queue file")
	playCmd.Flags().BoolVarP(&playMonitor, "monitor", "m", false, "show a live playback monitor")
	addRecordFlags(playCmd.Flags())
	rootCmd.AddCommand(playCmd)
}
