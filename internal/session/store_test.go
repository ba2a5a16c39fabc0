package session_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/clippi/internal/session"
)

// generateSession produces an arbitrary Session value. Times are truncated
// to seconds to keep JSON round-trips exact.
func generateSession(t *rapid.T) *session.Session {
	sec := rapid.Int64Range(0, 1_700_000_000).Draw(t, "unix_sec")
	return &session.Session{
		ID:                  rapid.StringN(1, 36, -1).Draw(t, "id"),
		StartTime:           time.Unix(sec, 0).UTC(),
		QueuePath:           rapid.StringN(1, 100, -1).Draw(t, "queue_path"),
		Record:              rapid.Bool().Draw(t, "record"),
		RecordAsOneFile:     rapid.Bool().Draw(t, "one_file"),
		RecordingStarted:    rapid.Bool().Draw(t, "started"),
		WaitForGameEnd:      rapid.Bool().Draw(t, "wait"),
		SavedFilenameFormat: rapid.String().Draw(t, "format"),
		FilenameSaved:       rapid.Bool().Draw(t, "saved"),
	}
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store, err := session.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rapid.Check(t, func(t *rapid.T) {
		original := generateSession(t)
		if err := store.Save(original); err != nil {
			t.Fatalf("Save: %v", err)
		}
		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !loaded.StartTime.Equal(original.StartTime) {
			t.Fatalf("StartTime mismatch: got %v, want %v", loaded.StartTime, original.StartTime)
		}
		loaded.StartTime = original.StartTime
		if *loaded != *original {
			t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", *loaded, *original)
		}
	})
}

func TestLoadReturnsErrNoSession(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store, err := session.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got: %v", err)
	}
}

func TestDeleteThenLoad(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store, err := session.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save(session.New("q.json", true, true)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("Load after Delete: %v", err)
	}
}

func TestNewStoreFailsInUnwritableDir(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root; permission checks are ineffective")
	}

	tmp := t.TempDir()
	if err := os.Chmod(tmp, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(tmp, 0o755) })
	t.Setenv("XDG_DATA_HOME", tmp)

	if _, err := session.NewStore(); err == nil {
		t.Fatal("expected error creating store in unwritable directory, got nil")
	}
}

func TestResetClearsRecordingState(t *testing.T) {
	s := session.New("q.json", true, false)
	s.RecordingStarted = true
	s.WaitForGameEnd = true
	s.SavedFilenameFormat = "%CCYY-%MM-%DD"
	s.FilenameSaved = true

	s.Reset()

	if s.RecordingStarted || s.WaitForGameEnd || s.SavedFilenameFormat != "" || s.FilenameSaved {
		t.Errorf("Reset left recording state behind: %+v", *s)
	}
	if s.QueuePath != "q.json" || !s.Record || s.ID == "" {
		t.Errorf("Reset should keep identity fields: %+v", *s)
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	var m session.MemoryStore
	s := session.New("q.json", true, true)
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}
	s.RecordingStarted = true

	got, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.RecordingStarted {
		t.Error("MemoryStore should store a copy, not the caller's pointer")
	}
}
