package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/clippi/internal/config"
	"github.com/fakeyudi/clippi/internal/dolphin"
	"github.com/fakeyudi/clippi/internal/obs"
	"github.com/fakeyudi/clippi/internal/profile"
	"github.com/fakeyudi/clippi/internal/recorder"
	"github.com/fakeyudi/clippi/internal/session"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// activeProfile holds the loaded user profile.
var activeProfile *profile.Profile

var verbose bool

// logger is the structured logger handed to every component.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// connectTimeout bounds the obs-websocket handshake.
const connectTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "clippi",
	Short: "Play Slippi replays in Dolphin and record them with OBS",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(cmd.ErrOrStderr())
		activeProfile = nil

		// Skip setup check for the setup command itself.
		if cmd.Name() == "setup" {
			return nil
		}

		// First-run: profile missing → run setup wizard automatically.
		// Only do this when stdin is an interactive terminal.
		if !profile.Exists() {
			if term.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to clippi! Looks like this is your first time.")
				if err := runSetup(cmd, true); err != nil {
					return err
				}
			}
			// Non-interactive (tests, pipes): continue with defaults, no profile required.
		}

		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = applyProfile(config.Merge(global, project), activeProfile)
		return nil
	},
}

// applyProfile fills config gaps with the values gathered during setup.
func applyProfile(c config.Config, p *profile.Profile) config.Config {
	if p == nil {
		return c
	}
	if c.DolphinPath == "" {
		c.DolphinPath = p.DolphinPath
	}
	if c.MeleeISOPath == "" {
		c.MeleeISOPath = p.MeleeISOPath
	}
	if (c.OBSAddress == "" || c.OBSAddress == obs.DefaultAddress) && p.OBSAddress != "" {
		c.OBSAddress = p.OBSAddress
	}
	if c.OBSPassword == "" {
		c.OBSPassword = p.OBSPassword
	}
	return c
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// dolphinDir is the configured Dolphin directory, or the Slippi Desktop App
// default on platforms that have one.
func dolphinDir() string {
	if cfg.DolphinPath != "" {
		return cfg.DolphinPath
	}
	return dolphin.DefaultDir(runtime.GOOS)
}

// connectOBS dials obs-websocket with the configured address and password.
func connectOBS(ctx context.Context) (*obs.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return obs.Connect(ctx, cfg.OBSAddress, cfg.OBSPassword, logger)
}

// newRecorder wires a Recorder to the configured Dolphin and the on-disk
// session store. client may be nil.
func newRecorder(client *obs.Client, log *slog.Logger) (*recorder.Recorder, error) {
	store, err := session.NewStore()
	if err != nil {
		return nil, err
	}
	launcher := dolphin.NewLauncher(dolphinDir(), cfg.MeleeISOPath, runtime.GOOS, log)

	var backend recorder.Backend
	if client != nil {
		backend = client
	}
	return recorder.New(backend, recorder.DolphinLauncher(launcher), store, nil, log), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}
