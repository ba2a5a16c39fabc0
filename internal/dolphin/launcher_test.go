package dolphin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestExecutablePath(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"windows", filepath.Join("dir", "Dolphin.exe")},
		{"darwin", filepath.Join("dir", "Dolphin.app", "Contents", "MacOS", "Dolphin")},
		{"linux", filepath.Join("dir", "dolphin-emu")},
	}
	for _, tt := range tests {
		if got := ExecutablePath("dir", tt.goos); got != tt.want {
			t.Errorf("ExecutablePath(%s) = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestRemediationDiffersByPlatform(t *testing.T) {
	for _, goos := range []string{"darwin", "windows"} {
		if !strings.Contains(Remediation(goos), DownloadURL) {
			t.Errorf("Remediation(%s) should point at %s", goos, DownloadURL)
		}
	}
	if !strings.Contains(Remediation("linux"), "Slippi-FM-Installer") {
		t.Errorf("Remediation(linux) = %q, want installer guidance", Remediation("linux"))
	}
	if DefaultDir("linux") != "" {
		t.Error("DefaultDir(linux) should be empty")
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	l := NewLauncher(t.TempDir(), "", runtime.GOOS, nil)
	_, err := l.Launch(context.Background(), "queue.json")

	var nf *ExecutableNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Launch err = %v, want *ExecutableNotFoundError", err)
	}
	if nf.Path != l.ExecPath {
		t.Errorf("error path = %q, want %q", nf.Path, l.ExecPath)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should unwrap to os.ErrNotExist: %v", err)
	}
}

func TestArgsAddsBatchFlagsOnlyWhenISOExists(t *testing.T) {
	dir := t.TempDir()
	l := NewLauncher(dir, filepath.Join(dir, "missing.iso"), "linux", nil)
	if got := l.Args("q.json"); !slices.Equal(got, []string{"-i", "q.json"}) {
		t.Errorf("Args without ISO = %v", got)
	}

	iso := filepath.Join(dir, "melee.iso")
	if err := os.WriteFile(iso, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	l.ISOPath = iso
	if got := l.Args("q.json"); !slices.Equal(got, []string{"-i", "q.json", "-b", "-e", iso}) {
		t.Errorf("Args with ISO = %v", got)
	}
}

// fakeDolphin writes a shell script named like the linux executable.
func fakeDolphin(t *testing.T, body string) *Launcher {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a unix shell")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(ExecutablePath(dir, "linux"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return NewLauncher(dir, "", "linux", discardLogger())
}

func TestLaunchStreamsEventsAndCloses(t *testing.T) {
	l := fakeDolphin(t, `echo "[FILE_PATH] $2"
echo "not a tag"
echo "[CURRENT_FRAME] 10"
echo "[NO_GAME]"`)

	p, err := l.Launch(context.Background(), "/tmp/q.json")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	got := collect(t, p.Events())
	want := []Event{
		{Kind: FileLoaded, Path: "/tmp/q.json"},
		{Kind: CurrentFrame, Frame: 10},
		{Kind: QueueEmpty},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	<-p.Done()
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil for clean exit", p.Err())
	}
	if err := p.Kill(); err != nil {
		t.Errorf("Kill after exit: %v", err)
	}
}

func TestKillIsIdempotent(t *testing.T) {
	l := fakeDolphin(t, "exec sleep 30")
	p, err := l.Launch(context.Background(), "q.json")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.Kill(); err != nil {
			t.Fatalf("Kill #%d: %v", i, err)
		}
	}
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
	collect(t, p.Events())
	if err := p.Kill(); err != nil {
		t.Errorf("Kill after exit: %v", err)
	}
}

func TestLaunchReplacesPreviousInstance(t *testing.T) {
	l := fakeDolphin(t, "exec sleep 30")
	first, err := l.Launch(context.Background(), "a.json")
	if err != nil {
		t.Fatalf("first Launch: %v", err)
	}
	go func() {
		for range first.Events() {
		}
	}()

	second, err := l.Launch(context.Background(), "b.json")
	if err != nil {
		t.Fatalf("second Launch: %v", err)
	}
	defer second.Kill()

	select {
	case <-first.Done():
	default:
		t.Fatal("previous instance still running after second Launch")
	}
}
