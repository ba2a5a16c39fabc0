package cmd

import (
	"errors"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/clippi/internal/session"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the OBS connection and any unfinished playback session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connectOBS(cmd.Context())
		if err != nil {
			cmd.Printf("OBS:      %s %s\n", warnStyle.Render("not connected"), dimStyle.Render("("+cfg.OBSAddress+")"))
		} else {
			state := "idle"
			switch {
			case client.IsPaused():
				state = "recording (paused)"
			case client.IsRecording():
				state = "recording"
			}
			cmd.Printf("OBS:      %s %s, %s\n", okStyle.Render("connected"), dimStyle.Render("("+cfg.OBSAddress+")"), state)
			client.Close()
		}

		store, err := session.NewStore()
		if err != nil {
			return err
		}
		s, err := store.Load()
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				cmd.Println("Session:  none")
				return nil
			}
			return err
		}

		cmd.Printf("Session:  %s\n", s.ID)
		cmd.Printf("Queue:    %s\n", s.QueuePath)
		cmd.Printf("Started:  %s (%s ago)\n", s.StartTime.Format(time.RFC3339), time.Since(s.StartTime).Round(time.Second))
		cmd.Printf("Record:   %v (one file: %v, started: %v)\n", s.Record, s.RecordAsOneFile, s.RecordingStarted)
		if s.FilenameSaved {
			cmd.Printf("Filename: %q %s\n", s.SavedFilenameFormat, warnStyle.Render("not restored, run 'clippi restore'"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
