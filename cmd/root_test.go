package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stderr.String(), err
}

func TestRootCommandStatus(t *testing.T) {
	tests := []struct {
		line string
		code int
	}{
		{"true", 0},
		{"exit 3", 3},
		{"cd /nonexistent-jobsh-dir", 1},
		{"echo 'unterminated", 2},
		{"jobsh-no-such-command-xyz", 127},
	}
	for _, tt := range tests {
		_, err := runRoot(t, "--no-history", "-c", tt.line)
		code := 0
		var exit *exitError
		if errors.As(err, &exit) {
			code = exit.code
		} else if err != nil {
			t.Fatalf("-c %q: unexpected error %v", tt.line, err)
		}
		if code != tt.code {
			t.Errorf("-c %q exited %d, want %d", tt.line, code, tt.code)
		}
	}
}

func TestRootCommandReportsErrors(t *testing.T) {
	out, _ := runRoot(t, "--no-history", "-c", "jobsh-no-such-command-xyz")
	if !strings.Contains(out, "jobsh: jobsh-no-such-command-xyz: command not found") {
		t.Errorf("stderr = %q", out)
	}
}

func TestRootCommandConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobshrc.yaml")

	if err := os.WriteFile(path, []byte("color: sometimes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runRoot(t, "--config", path, "-c", "true"); err == nil {
		t.Error("invalid config accepted")
	}

	if err := os.WriteFile(path, []byte("env:\n  JOBSH_GREETING: hi\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	if _, err := runRoot(t, "--config", path, "-c", "printenv JOBSH_GREETING > "+out); err != nil {
		t.Fatalf("printenv failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi\n" {
		t.Errorf("config env not exported: %q", got)
	}
}

func TestRootCommandLogLevel(t *testing.T) {
	if _, err := runRoot(t, "--log-level", "loud", "-c", "true"); err == nil {
		t.Error("invalid --log-level accepted")
	}
	if _, err := runRoot(t, "--log-level", "debug", "-c", "true"); err != nil {
		t.Errorf("--log-level debug: %v", err)
	}
}

func TestRootCommandRejectsArgs(t *testing.T) {
	if _, err := runRoot(t, "extra"); err == nil {
		t.Error("positional argument accepted")
	}
}
