package profile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunSetupTakesAnswers(t *testing.T) {
	in := strings.NewReader("/opt/slippi\n/games/melee.iso\n127.0.0.1:4444\nhunter2\ny\n")
	var out bytes.Buffer

	prof, err := RunSetup(in, &out, nil)
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	want := Profile{
		DolphinPath:  "/opt/slippi",
		MeleeISOPath: "/games/melee.iso",
		OBSAddress:   "127.0.0.1:4444",
		OBSPassword:  "hunter2",
		Record:       true,
	}
	if *prof != want {
		t.Errorf("profile = %+v, want %+v", *prof, want)
	}
	// /opt/slippi has no Dolphin in the test environment.
	if !strings.Contains(out.String(), "Error loading Dolphin") {
		t.Errorf("expected a remediation hint, got:\n%s", out.String())
	}
}

func TestRunSetupKeepsExistingOnBlankAnswers(t *testing.T) {
	existing := &Profile{
		DolphinPath: "/opt/slippi",
		OBSAddress:  "localhost:4455",
		OBSPassword: "pw",
		Record:      true,
	}
	prof, err := RunSetup(strings.NewReader("\n\n\n\n\n"), &bytes.Buffer{}, existing)
	if err != nil {
		t.Fatalf("RunSetup: %v", err)
	}
	if *prof != *existing {
		t.Errorf("profile = %+v, want %+v", *prof, *existing)
	}
}

func TestRunSetupAbortsOnEOF(t *testing.T) {
	if _, err := RunSetup(strings.NewReader(""), &bytes.Buffer{}, nil); err == nil {
		t.Error("expected an error when input ends before the first answer")
	}
}

func TestSaveLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if Exists() {
		t.Fatal("profile should not exist in a fresh home")
	}
	prof := &Profile{DolphinPath: "/opt/slippi", OBSAddress: "localhost:4455", OBSPassword: "pw"}
	if err := Save(prof); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists() {
		t.Fatal("profile should exist after Save")
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *prof {
		t.Errorf("loaded %+v, want %+v", *got, *prof)
	}

	info, err := os.Stat(filepath.Join(home, ".config", "clippi", "profile.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("profile mode = %o, want 600", perm)
	}
}

func TestLoadMalformed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "clippi")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "profile.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "malformed profile") {
		t.Errorf("err = %v, want malformed profile error", err)
	}
}
