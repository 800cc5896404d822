package jobsh

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRedirection(t *testing.T) {
	requireTool(t, "echo", "cat", "sort")
	sh := newTestShell(t)
	testFilePath := filepath.Join(sh.Dir, "test.txt")

	t.Run("Output redirection", func(t *testing.T) {
		res := sh.Run("echo 'test content' > test.txt")
		if res.Err != nil || res.Status != 0 {
			t.Fatalf("Run: status %d, err %v", res.Status, res.Err)
		}
		if got := readFile(t, testFilePath); got != "test content\n" {
			t.Errorf("file content = %q", got)
		}
		if got := readStream(t, sh.Stdout); got != "" {
			t.Errorf("redirected output leaked to stdout: %q", got)
		}
	})

	t.Run("Append redirection", func(t *testing.T) {
		sh.Run("echo 'more' >> test.txt")
		if got := readFile(t, testFilePath); got != "test content\nmore\n" {
			t.Errorf("file content = %q", got)
		}
	})

	t.Run("Truncating redirection", func(t *testing.T) {
		sh.Run("echo b > test.txt; echo a >> test.txt")
		if got := readFile(t, testFilePath); got != "b\na\n" {
			t.Errorf("file content = %q", got)
		}
	})

	t.Run("Input redirection", func(t *testing.T) {
		res := sh.Run("sort < test.txt > sorted.txt")
		if res.Err != nil {
			t.Fatalf("Run error: %v", res.Err)
		}
		if got := readFile(t, filepath.Join(sh.Dir, "sorted.txt")); got != "a\nb\n" {
			t.Errorf("sorted content = %q", got)
		}
	})

	t.Run("Redirect overrides pipe", func(t *testing.T) {
		res := sh.Run("echo ignored | cat < test.txt > piped.txt")
		if res.Err != nil {
			t.Fatalf("Run error: %v", res.Err)
		}
		if got := readFile(t, filepath.Join(sh.Dir, "piped.txt")); got != "b\na\n" {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("Expanded target", func(t *testing.T) {
		sh.Env.Set("NAME", "from-var.txt")
		sh.Run("echo x > $NAME")
		if _, err := os.Stat(filepath.Join(sh.Dir, "from-var.txt")); err != nil {
			t.Errorf("expanded target not created: %v", err)
		}
	})

	t.Run("Builtin output redirection", func(t *testing.T) {
		sh.Run("pwd > where.txt")
		if got := readFile(t, filepath.Join(sh.Dir, "where.txt")); got != sh.Dir+"\n" {
			t.Errorf("pwd wrote %q", got)
		}
	})
}

func TestRedirectionErrors(t *testing.T) {
	requireTool(t, "cat")
	sh := newTestShell(t)

	res := sh.Run("cat < missing.txt")
	if !errors.Is(res.Err, ErrRedirect) {
		t.Errorf("error = %v, want ErrRedirect", res.Err)
	}
	if res.Status != StatusFailure {
		t.Errorf("status = %d, want %d", res.Status, StatusFailure)
	}

	res = sh.Run("pwd > no/such/dir/out")
	if !errors.Is(res.Err, ErrRedirect) {
		t.Errorf("builtin redirect error = %v, want ErrRedirect", res.Err)
	}
}
