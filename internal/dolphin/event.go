// Package dolphin launches a playback Dolphin and turns its stdout log into
// typed playback events.
//
// Dolphin prints these markers while it plays a queue, roughly in this order:
//
//	[FILE_PATH] <path>            a new replay became the playback target
//	[PLAYBACK_START_FRAME] <n>    frame playback commences (-123 if omitted)
//	[GAME_END_FRAME] <n>          last frame of the game
//	[PLAYBACK_END_FRAME] <n>      frame playback ends at (MAX_INT if omitted)
//	[CURRENT_FRAME] <n>           the frame currently being played back
//	[LRAS]                        the game was force-quit
//	[NO_GAME]                     no more files in the queue
package dolphin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a playback event.
type Kind int

const (
	FileLoaded Kind = iota + 1
	PlaybackStartFrame
	GameEndFrame
	PlaybackEndFrame
	CurrentFrame
	Quit
	QueueEmpty
)

var kindNames = map[Kind]string{
	FileLoaded:         "FileLoaded",
	PlaybackStartFrame: "PlaybackStartFrame",
	GameEndFrame:       "GameEndFrame",
	PlaybackEndFrame:   "PlaybackEndFrame",
	CurrentFrame:       "CurrentFrame",
	Quit:               "Quit",
	QueueEmpty:         "QueueEmpty",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one typed playback event. Path is set for FileLoaded, Frame for
// the frame events.
type Event struct {
	Kind  Kind
	Frame int
	Path  string
}

func (e Event) String() string {
	switch e.Kind {
	case FileLoaded:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Path)
	case Quit, QueueEmpty:
		return e.Kind.String()
	default:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Frame)
	}
}

// ErrUnrecognized is returned by ParseLine for lines that carry no known tag.
var ErrUnrecognized = errors.New("unrecognized dolphin output")

// PayloadError is returned when a known tag carries a malformed argument.
type PayloadError struct {
	Tag     string
	Payload string
	Err     error
}

func (e *PayloadError) Error() string {
	return "malformed payload for " + e.Tag + ": " + strconv.Quote(e.Payload) + ": " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

var frameTags = map[string]Kind{
	"[PLAYBACK_START_FRAME]": PlaybackStartFrame,
	"[GAME_END_FRAME]":       GameEndFrame,
	"[PLAYBACK_END_FRAME]":   PlaybackEndFrame,
	"[CURRENT_FRAME]":        CurrentFrame,
}

// ParseLine converts one line of Dolphin output into an Event.
// Blank lines return nil, nil. Lines without a known tag return an error
// wrapping ErrUnrecognized; known tags with a bad argument return a
// *PayloadError. Either way the caller should log and move on.
func ParseLine(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	tag, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch tag {
	case "[FILE_PATH]":
		if rest == "" {
			return nil, &PayloadError{Tag: tag, Payload: rest, Err: errors.New("missing path")}
		}
		return &Event{Kind: FileLoaded, Path: rest}, nil
	case "[LRAS]":
		return &Event{Kind: Quit}, nil
	case "[NO_GAME]":
		return &Event{Kind: QueueEmpty}, nil
	}

	kind, ok := frameTags[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, line)
	}
	frame, err := strconv.Atoi(rest)
	if err != nil {
		return nil, &PayloadError{Tag: tag, Payload: rest, Err: err}
	}
	return &Event{Kind: kind, Frame: frame}, nil
}
