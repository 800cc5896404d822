package jobsh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCdWithDash(t *testing.T) {
	sh := newTestShell(t)
	start := sh.Dir
	subDir := filepath.Join(start, "subdir")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	if res := sh.Run("cd subdir"); res.Status != 0 {
		t.Fatalf("cd subdir failed: %+v", res)
	}
	if sh.Dir != subDir {
		t.Errorf("Dir = %q, want %q", sh.Dir, subDir)
	}
	if sh.Env.Value("OLDPWD") != start || sh.Env.Value("PWD") != subDir {
		t.Errorf("OLDPWD = %q, PWD = %q", sh.Env.Value("OLDPWD"), sh.Env.Value("PWD"))
	}

	if res := sh.Run("cd -"); res.Status != 0 {
		t.Fatalf("cd - failed: %+v", res)
	}
	if sh.Dir != start {
		t.Errorf("after cd -, Dir = %q, want %q", sh.Dir, start)
	}
	if got := readStream(t, sh.Stdout); got != start+"\n" {
		t.Errorf("cd - printed %q", got)
	}
}

func TestCdDoesNotMoveTheProcess(t *testing.T) {
	before, _ := os.Getwd()
	sh := newTestShell(t)
	sh.Run("cd /")
	after, _ := os.Getwd()
	if before != after || sh.Dir != "/" {
		t.Errorf("process cwd %q -> %q, shell dir %q", before, after, sh.Dir)
	}
}

func TestCdHome(t *testing.T) {
	sh := newTestShell(t)
	home := t.TempDir()
	sh.Env.Set("HOME", home)

	sh.Run("cd")
	if sh.Dir != home {
		t.Errorf("cd with no args: Dir = %q, want %q", sh.Dir, home)
	}

	sh.Env.Set("HOME", "")
	if res := sh.Run("cd"); res.Status != StatusFailure {
		t.Errorf("cd with empty HOME: status %d", res.Status)
	}
}

func TestCdErrors(t *testing.T) {
	sh := newTestShell(t)
	writeTestFile(t, filepath.Join(sh.Dir, "file"), "", 0644)

	tests := []struct {
		line string
		want string
	}{
		{"cd missing", "cd: missing: no such file or directory"},
		{"cd file", "cd: file: not a directory"},
		{"cd a b", "cd: too many arguments"},
		{"cd -", "cd: OLDPWD not set"},
	}
	for _, tt := range tests {
		before := len(readStream(t, sh.Stderr))
		dir := sh.Dir
		res := sh.Run(tt.line)
		if res.Status != StatusFailure {
			t.Errorf("%q: status %d", tt.line, res.Status)
		}
		if sh.Dir != dir {
			t.Errorf("%q changed Dir to %q", tt.line, sh.Dir)
		}
		msg := strings.TrimSpace(readStream(t, sh.Stderr)[before:])
		if msg != tt.want {
			t.Errorf("%q printed %q, want %q", tt.line, msg, tt.want)
		}
	}
}
