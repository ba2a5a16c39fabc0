package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fakeyudi/clippi/internal/obs"
)

// Config holds all configurable clippi settings. Zero values mean "unset"
// and fall through to the next layer in Merge.
type Config struct {
	DolphinPath  string `json:"dolphin_path"`   // directory holding the playback Dolphin
	MeleeISOPath string `json:"melee_iso_path"` // optional; enables batch boot

	OBSAddress  string `json:"obs_address"`
	OBSPassword string `json:"obs_password"`

	OutputFolder    string `json:"output_folder"`
	OutputFilename  string `json:"output_filename"`
	RecordAsOneFile *bool  `json:"record_as_one_file,omitempty"`
	GameEndDelayMs  int    `json:"game_end_delay_ms"`

	StartFrameOffset int `json:"start_frame_offset"`
	GuardFrames      int `json:"guard_frames"`
	MarginFrames     int `json:"margin_frames"`

	WatchSettleMs int `json:"watch_settle_ms"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	oneFile := true
	return Config{
		OBSAddress:       obs.DefaultAddress,
		OutputFolder:     "ProjectClippi",
		RecordAsOneFile:  &oneFile,
		GameEndDelayMs:   1000,
		StartFrameOffset: 90,
		GuardFrames:      120,
		MarginFrames:     60,
		WatchSettleMs:    2000,
	}
}

// GameEndDelay is the grace delay before the final command of a replay.
func (c Config) GameEndDelay() time.Duration {
	return time.Duration(c.GameEndDelayMs) * time.Millisecond
}

// WatchSettle is how long a new replay must stay unchanged before it is played.
func (c Config) WatchSettle() time.Duration {
	return time.Duration(c.WatchSettleMs) * time.Millisecond
}

// OneFile reports the record-as-one-file setting, defaulting to true.
func (c Config) OneFile() bool {
	return c.RecordAsOneFile == nil || *c.RecordAsOneFile
}

// Dir returns ~/.config/clippi.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clippi"), nil
}

// LoadGlobal reads ~/.config/clippi/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return loadFile(filepath.Join(dir, "config.json"), true)
}

// LoadProject reads .clippiconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".clippiconfig", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// overlay copies every set field of src onto dst.
func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	setString(&dst.DolphinPath, src.DolphinPath)
	setString(&dst.MeleeISOPath, src.MeleeISOPath)
	setString(&dst.OBSAddress, src.OBSAddress)
	setString(&dst.OBSPassword, src.OBSPassword)
	setString(&dst.OutputFolder, src.OutputFolder)
	setString(&dst.OutputFilename, src.OutputFilename)
	if src.RecordAsOneFile != nil {
		v := *src.RecordAsOneFile
		dst.RecordAsOneFile = &v
	}
	setInt(&dst.GameEndDelayMs, src.GameEndDelayMs)
	setInt(&dst.StartFrameOffset, src.StartFrameOffset)
	setInt(&dst.GuardFrames, src.GuardFrames)
	setInt(&dst.MarginFrames, src.MarginFrames)
	setInt(&dst.WatchSettleMs, src.WatchSettleMs)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
