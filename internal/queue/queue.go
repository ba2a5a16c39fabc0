// Package queue models the Dolphin playback queue and its JSON file format:
//
//	{ "mode": "queue", ..., "queue": [{ "path": "..." }, ...] }
package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Item is one replay in playback order.
type Item struct {
	Path       string `json:"path"`
	StartFrame *int   `json:"startFrame,omitempty"`
	EndFrame   *int   `json:"endFrame,omitempty"`
}

// Options are the queue-level settings Dolphin reads next to the item list.
type Options struct {
	Mode               string `json:"mode"`
	Replay             string `json:"replay,omitempty"`
	IsRealTimeMode     bool   `json:"isRealTimeMode"`
	OutputOverlayFiles bool   `json:"outputOverlayFiles"`
	CommandID          string `json:"commandId,omitempty"`
}

// DefaultOptions plays the items as a queue.
func DefaultOptions() Options {
	return Options{Mode: "queue"}
}

// Queue is a complete queue file.
type Queue struct {
	Options
	Items []Item `json:"queue"`
}

// New returns a queue with default options.
func New(items ...Item) *Queue {
	return &Queue{Options: DefaultOptions(), Items: items}
}

// IsReplay reports whether path names a Slippi replay.
func IsReplay(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".slp")
}

// FromFiles builds a queue from paths, keeping only .slp files, in order.
// The result may be empty.
func FromFiles(paths []string) *Queue {
	q := New()
	for _, p := range paths {
		if IsReplay(p) {
			q.Items = append(q.Items, Item{Path: p})
		}
	}
	return q
}

// Empty reports whether there is nothing to play.
func (q *Queue) Empty() bool {
	return q == nil || len(q.Items) == 0
}

// Save writes q to path atomically via a temp file in the same directory.
func Save(q *Queue, path string) (err error) {
	data, err := (&JSONRenderer{}).Render(q)
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*.json.tmp")
	if err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving queue: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	return nil
}

// Load reads a queue file.
func Load(path string) (*Queue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	return (&JSONParser{}).Parse(data)
}

// WriteTemp saves q under dir as <unixms>_dolphin_queue.json and returns the
// path. An empty dir means os.TempDir().
func WriteTemp(q *Queue, dir string, now time.Time) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_dolphin_queue.json", now.UnixMilli()))
	if err := Save(q, path); err != nil {
		return "", err
	}
	return path, nil
}
