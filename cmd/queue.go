package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/clippi/internal/queue"
)

var queueOutput string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Save and inspect Dolphin queue files",
}

var queueSaveCmd = &cobra.Command{
	Use:   "save -o <file> <replays or folders...>",
	Short: "Write replays to a queue file for later playback",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if queueOutput == "" {
			return errors.New("--output is required")
		}
		q := queue.FromFiles(expandReplays(args))
		if q.Empty() {
			return errors.New("no .slp replays among the given paths")
		}
		if err := queue.Save(q, queueOutput); err != nil {
			return err
		}
		cmd.Printf("✓ Saved %d replay(s) to %s\n", len(q.Items), queueOutput)
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "List the replays in a queue file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queue.Load(args[0])
		if err != nil {
			return err
		}
		out, err := (&queue.TextRenderer{}).Render(q)
		if err != nil {
			return err
		}
		cmd.Print(string(out))
		return nil
	},
}

func init() {
	queueSaveCmd.Flags().StringVarP(&queueOutput, "output", "o", "", "queue file to write")
	queueCmd.AddCommand(queueSaveCmd, queueShowCmd)
	rootCmd.AddCommand(queueCmd)
}
