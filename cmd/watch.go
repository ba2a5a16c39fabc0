package cmd

import (
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/clippi/internal/dolphin"
	"github.com/fakeyudi/clippi/internal/queue"
	"github.com/fakeyudi/clippi/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <folder>",
	Short: "Play (and record) every new replay saved to a folder",
	Long: `Watch a Slippi replay folder and play each replay once the console has
finished writing it. Recording flags are the same as for play.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		opts := playOptions(cmd)
		client := maybeConnectOBS(ctx, cmd, opts.Record)
		if client != nil {
			defer client.Close()
		}
		rec, err := newRecorder(client, logger)
		if err != nil {
			return err
		}

		replays, err := watch.Replays(ctx, args[0], cfg.WatchSettle(), logger)
		if err != nil {
			return err
		}
		cmd.Printf("Watching %s for new replays (Ctrl-C to stop)\n", args[0])

		for path := range replays {
			cmd.Printf("▶ %s\n", filepath.Base(path))
			qp, err := queue.WriteTemp(queue.New(queue.Item{Path: path}), "", time.Now())
			if err != nil {
				return err
			}
			err = rec.Play(ctx, qp, opts)
			os.Remove(qp)
			var nf *dolphin.ExecutableNotFoundError
			if errors.As(err, &nf) {
				return playError(err)
			}
			if err != nil {
				logger.Warn("playback failed", "replay", path, "err", err)
			}
		}
		return nil
	},
}

func init() {
	addRecordFlags(watchCmd.Flags())
	rootCmd.AddCommand(watchCmd)
}
