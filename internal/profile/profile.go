// Package profile manages the user's persistent clippi profile.
// The profile is stored at ~/.config/clippi/profile.json and is created
// once via the interactive setup flow, then referenced on every command.
package profile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fakeyudi/clippi/internal/dolphin"
	"github.com/fakeyudi/clippi/internal/obs"
)

// Profile holds the machine-specific settings gathered during setup.
type Profile struct {
	DolphinPath  string `json:"dolphin_path"`
	MeleeISOPath string `json:"melee_iso_path"`
	OBSAddress   string `json:"obs_address"`
	OBSPassword  string `json:"obs_password"`
	Record       bool   `json:"record"` // record by default when playing
}

// profilePath returns the path to the profile file.
func profilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// ConfigDir returns the clippi config directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clippi"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := profilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'clippi setup' to configure: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk, creating the config directory if needed.
// The file holds the OBS password, so it is only readable by the user.
func Save(prof *Profile) error {
	p, err := profilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

// Defaults returns the profile offered on first run.
func Defaults() *Profile {
	return &Profile{
		DolphinPath: dolphin.DefaultDir(runtime.GOOS),
		OBSAddress:  obs.DefaultAddress,
	}
}

// RunSetup runs the interactive setup wizard reading answers from in and
// writing prompts to out. If existing is non-nil, it is used as the default
// for each prompt (edit mode).
func RunSetup(in io.Reader, out io.Writer, existing *Profile) (*Profile, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askBool := func(prompt string, defaultVal bool) (bool, error) {
		def := "n"
		if defaultVal {
			def = "y"
		}
		ans, err := ask(prompt+" (y/n)", def)
		if err != nil {
			return false, err
		}
		return strings.ToLower(ans) == "y" || strings.ToLower(ans) == "yes", nil
	}

	prof := Defaults()
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │    clippi · first-time setup    │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	prof.DolphinPath, err = ask("  Playback Dolphin directory", prof.DolphinPath)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(dolphin.ExecutablePath(prof.DolphinPath, runtime.GOOS)); statErr != nil {
		fmt.Fprintf(out, "  ⚠ %s\n", dolphin.Remediation(runtime.GOOS))
	}

	prof.MeleeISOPath, err = ask("  Melee ISO (optional)", prof.MeleeISOPath)
	if err != nil {
		return nil, err
	}

	prof.OBSAddress, err = ask("  obs-websocket address", prof.OBSAddress)
	if err != nil {
		return nil, err
	}

	prof.OBSPassword, err = ask("  obs-websocket password (blank if none)", prof.OBSPassword)
	if err != nil {
		return nil, err
	}

	prof.Record, err = askBool("  Record with OBS by default", prof.Record)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	return prof, nil
}
