package dolphin

import (
	"os"
	"path/filepath"
)

// DownloadURL is where macOS and Windows users get a playback Dolphin.
const DownloadURL = "https://slippi.gg/downloads"

// InstallerURL documents building a playback Dolphin on Linux.
const InstallerURL = "https://github.com/project-slippi/Slippi-FM-installer/blob/master/README.md"

// ExecutableName returns the Dolphin executable (or bundle) name for goos.
func ExecutableName(goos string) string {
	switch goos {
	case "windows":
		return "Dolphin.exe"
	case "darwin":
		return "Dolphin.app"
	default:
		return "dolphin-emu"
	}
}

// ExecutablePath joins dir with the platform executable. On macOS it points
// inside the app bundle at the actual binary.
func ExecutablePath(dir, goos string) string {
	exec := filepath.Join(dir, ExecutableName(goos))
	if goos == "darwin" {
		return filepath.Join(exec, "Contents", "MacOS", "Dolphin")
	}
	return exec
}

// DefaultDir returns where the Slippi Desktop App installs its playback
// Dolphin. There is no default on Linux; users build their own.
func DefaultDir(goos string) string {
	if goos != "darwin" && goos != "windows" {
		return ""
	}
	appData, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(appData, "Slippi Desktop App", "dolphin")
}

// Remediation returns the message shown to a user whose Dolphin could not
// be launched.
func Remediation(goos string) string {
	if goos == "darwin" || goos == "windows" {
		return "Error loading Dolphin. Download the Slippi Desktop App: " + DownloadURL
	}
	return "Error loading Dolphin. Build a Playback Dolphin with Slippi-FM-Installer and then set the playback path: " + InstallerURL
}

// ExecutableNotFoundError is returned before any process is spawned when the
// configured Dolphin executable does not exist.
type ExecutableNotFoundError struct {
	Path string
	Err  error
}

func (e *ExecutableNotFoundError) Error() string {
	return "dolphin executable doesn't exist at path: " + e.Path
}

func (e *ExecutableNotFoundError) Unwrap() error {
	return e.Err
}
