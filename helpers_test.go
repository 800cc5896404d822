package jobsh

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// newTestShell returns a shell rooted in a temp dir whose stdout and stderr
// are temp files, so children write to real descriptors.
func newTestShell(t *testing.T, opts ...Option) *Shell {
	t.Helper()

	dir := t.TempDir()
	streams := t.TempDir()
	stdout, err := os.Create(filepath.Join(streams, "stdout"))
	if err != nil {
		t.Fatalf("create stdout: %v", err)
	}
	stderr, err := os.Create(filepath.Join(streams, "stderr"))
	if err != nil {
		t.Fatalf("create stderr: %v", err)
	}
	t.Cleanup(func() {
		stdout.Close()
		stderr.Close()
	})

	env := NewEnvironment()
	env.Set("PATH", os.Getenv("PATH"))
	env.Set("HOME", dir)

	base := []Option{WithEnvironment(env), WithDir(dir), WithStdio(nil, stdout, stderr)}
	sh, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(sh.Close)
	return sh
}

func readStream(t *testing.T, f *os.File) string {
	t.Helper()
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read %s: %v", f.Name(), err)
	}
	return string(data)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func requireTool(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := SearchPath(name, EnvironmentFrom(os.Environ()), "/"); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
	}
}

// reapUntilDone polls the job table until every job in ids has terminated.
// One reap can finish several jobs, so all of them are kept.
func reapUntilDone(t *testing.T, sh *Shell, ids ...int) map[int]JobResult {
	t.Helper()
	done := make(map[int]JobResult)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, job := range sh.Jobs.ReapNonblocking() {
			done[job.ID] = job.Result()
		}
		missing := false
		for _, id := range ids {
			if _, ok := done[id]; !ok {
				missing = true
			}
		}
		if !missing {
			return done
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, id := range ids {
		if _, ok := done[id]; !ok {
			t.Fatalf("job %d did not finish", id)
		}
	}
	return done
}

// countingResolver wraps SearchPath and records every lookup.
func countingResolver(calls *int) PathResolver {
	return func(name string, env *Environment, dir string) (string, error) {
		*calls++
		return SearchPath(name, env, dir)
	}
}

// Wait statuses as the Linux kernel encodes them.
func exitedStatus(code int) unix.WaitStatus { return unix.WaitStatus(code << 8) }
func signaledStatus(sig syscall.Signal) unix.WaitStatus { return unix.WaitStatus(sig) }
func stoppedStatus(sig syscall.Signal) unix.WaitStatus { return unix.WaitStatus(0x7f | int(sig)<<8) }

const continuedStatus = unix.WaitStatus(0xffff)

// fakeProcs scripts wait4 results per pid and records signals sent.
type fakeProcs struct {
	queue map[int][]unix.WaitStatus
	calls int
	sent  []string
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{queue: make(map[int][]unix.WaitStatus)}
}

func (f *fakeProcs) push(pid int, statuses ...unix.WaitStatus) {
	f.queue[pid] = append(f.queue[pid], statuses...)
}

func (f *fakeProcs) wait4(pid int, ws *unix.WaitStatus, options int) (int, error) {
	f.calls++
	q := f.queue[pid]
	if len(q) == 0 {
		if options&unix.WNOHANG != 0 {
			return 0, nil
		}
		return 0, unix.ECHILD
	}
	*ws = q[0]
	f.queue[pid] = q[1:]
	return pid, nil
}

func (f *fakeProcs) kill(pid int, sig syscall.Signal) error {
	f.sent = append(f.sent, fmt.Sprintf("%d %s", pid, signalName(sig)))
	return nil
}

func (f *fakeProcs) table() *JobTable {
	return NewJobTable(WithWait(f.wait4), WithKill(f.kill))
}

func (f *fakeProcs) options() Option {
	return WithJobTableOptions(WithWait(f.wait4), WithKill(f.kill))
}

func writeTestFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
