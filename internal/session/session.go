package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the recording state of one queue load. It is created when the
// queue is handed to Dolphin and reset when the queue finishes or playback is
// killed.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	QueuePath string    `json:"queue_path"`

	Record          bool `json:"record"`
	RecordAsOneFile bool `json:"record_as_one_file"`

	// RecordingStarted is set by the first START so later start frames
	// resume instead of starting again.
	RecordingStarted bool `json:"recording_started"`
	// WaitForGameEnd is set when the current window ends on the last game
	// frame and the end command must wait for the grace delay.
	WaitForGameEnd bool `json:"wait_for_game_end"`

	// SavedFilenameFormat is the user's OBS filename format, captured before
	// it is overridden. FilenameSaved distinguishes "captured" from "empty".
	SavedFilenameFormat string `json:"saved_filename_format"`
	FilenameSaved       bool   `json:"filename_saved"`
}

// New returns a fresh session for queuePath.
func New(queuePath string, record, recordAsOneFile bool) *Session {
	return &Session{
		ID:              uuid.New().String(),
		StartTime:       time.Now(),
		QueuePath:       queuePath,
		Record:          record,
		RecordAsOneFile: recordAsOneFile,
	}
}

// Reset returns the session to its default, non-recording values.
func (s *Session) Reset() {
	s.RecordingStarted = false
	s.WaitForGameEnd = false
	s.SavedFilenameFormat = ""
	s.FilenameSaved = false
}
