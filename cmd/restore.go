package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/clippi/internal/recorder"
	"github.com/fakeyudi/clippi/internal/session"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Put back the OBS filename format left behind by an interrupted run",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore()
		if err != nil {
			return err
		}
		s, err := store.Load()
		if errors.Is(err, session.ErrNoSession) {
			cmd.Println("Nothing to restore.")
			return nil
		}
		if err != nil {
			return err
		}
		if !s.FilenameSaved {
			cmd.Println("Nothing to restore.")
			return store.Delete()
		}

		client, err := connectOBS(cmd.Context())
		if err != nil {
			return fmt.Errorf("connecting to obs: %w", err)
		}
		defer client.Close()

		if err := recorder.Restore(cmd.Context(), client, s); err != nil {
			return fmt.Errorf("restoring filename format: %w", err)
		}
		if err := store.Delete(); err != nil {
			return err
		}
		cmd.Printf("✓ OBS filename format restored to %q\n", s.SavedFilenameFormat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
