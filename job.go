package jobsh

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// State is the lifecycle state of a job member or of a whole job.
type State int

const (
	StateRunning State = iota
	StateStopped
	StateExited
	StateSignaled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateExited:
		return "Exited"
	case StateSignaled:
		return "Signaled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateExited || s == StateSignaled
}

// JobResult is the state of a job together with its exit code or signal.
type JobResult struct {
	State  State
	Code   int
	Signal syscall.Signal
}

func Exited(code int) JobResult {
	return JobResult{State: StateExited, Code: code}
}

func Signaled(sig syscall.Signal) JobResult {
	return JobResult{State: StateSignaled, Signal: sig}
}

// ExitStatus is the value recorded in $? for this result.
func (r JobResult) ExitStatus() int {
	switch r.State {
	case StateExited:
		return r.Code
	case StateSignaled:
		return 128 + int(r.Signal)
	case StateStopped:
		return 128 + int(syscall.SIGTSTP)
	default:
		return 0
	}
}

func (r JobResult) String() string {
	switch r.State {
	case StateExited:
		if r.Code == 0 {
			return "Done"
		}
		return fmt.Sprintf("Exit %d", r.Code)
	case StateSignaled:
		return "Killed by signal " + signalName(r.Signal)
	default:
		return r.State.String()
	}
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("%d", int(sig))
}

type member struct {
	pid    int
	result JobResult
}

// Job is the runtime record of one spawned pipeline. Pids are in stage order
// and never change after registration.
type Job struct {
	ID         int
	Command    string
	Pids       []int
	Pgid       int
	Background bool

	members []*member
	result  JobResult
}

// Result returns the job's overall state.
func (j *Job) Result() JobResult {
	return j.result
}

// Leader is the pid of the first stage.
func (j *Job) Leader() int {
	return j.Pids[0]
}

// refresh recomputes the overall state from the members. A job is terminal
// only when every member is, and then reports the last member's result.
func (j *Job) refresh() {
	allDone, stopped := true, false
	for _, m := range j.members {
		if !m.result.State.Terminal() {
			allDone = false
		}
		if m.result.State == StateStopped {
			stopped = true
		}
	}
	switch {
	case allDone:
		j.result = j.members[len(j.members)-1].result
	case stopped:
		j.result = JobResult{State: StateStopped}
	default:
		j.result = JobResult{State: StateRunning}
	}
}

// WaitFunc has the signature of unix.Wait4 without the rusage argument.
type WaitFunc func(pid int, status *unix.WaitStatus, options int) (int, error)

// KillFunc has the signature of unix.Kill.
type KillFunc func(pid int, sig syscall.Signal) error

func wait4(pid int, status *unix.WaitStatus, options int) (int, error) {
	return unix.Wait4(pid, status, options, nil)
}

// JobTable owns every spawned pipeline until it has terminated and been
// reported. It is used from the shell's goroutine only.
type JobTable struct {
	jobs   map[int]*Job
	nextID int

	wait4 WaitFunc
	kill  KillFunc
	log   *slog.Logger

	// Terminal handed to foreground jobs; -1 when not interactive.
	tty       int
	shellPgid int
	relay     *signalRelay
}

type JobTableOption func(*JobTable)

// WithWait replaces the wait primitive.
func WithWait(fn WaitFunc) JobTableOption {
	return func(t *JobTable) { t.wait4 = fn }
}

// WithKill replaces the signal primitive.
func WithKill(fn KillFunc) JobTableOption {
	return func(t *JobTable) { t.kill = fn }
}

func WithTableLogger(log *slog.Logger) JobTableOption {
	return func(t *JobTable) { t.log = log }
}

// WithTerminal makes foreground waits hand the controlling terminal at fd to
// the job's process group.
func WithTerminal(fd, shellPgid int) JobTableOption {
	return func(t *JobTable) {
		t.tty = fd
		t.shellPgid = shellPgid
	}
}

// WithSignalForwarding relays SIGINT, SIGQUIT and SIGTSTP received by the
// shell to the foreground job's process group. Close releases the handler.
func WithSignalForwarding() JobTableOption {
	return func(t *JobTable) { t.relay = newSignalRelay(nil, nil) }
}

func NewJobTable(opts ...JobTableOption) *JobTable {
	t := &JobTable{
		jobs:   make(map[int]*Job),
		nextID: 1,
		wait4:  wait4,
		kill:   unix.Kill,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tty:    -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.relay != nil {
		t.relay.kill = t.kill
		t.relay.log = t.log
		go t.relay.run()
	}
	return t
}

// Close stops signal forwarding.
func (t *JobTable) Close() {
	if t.relay != nil {
		t.relay.Close()
		t.relay = nil
	}
}

// Register records a spawned pipeline as Running and returns its job id.
// Ids start at 1 and are never reused.
func (t *JobTable) Register(command string, pgid int, pids []int, background bool) int {
	job := &Job{
		ID:         t.nextID,
		Command:    command,
		Pids:       append([]int(nil), pids...),
		Pgid:       pgid,
		Background: background,
		result:     JobResult{State: StateRunning},
	}
	for _, pid := range pids {
		job.members = append(job.members, &member{pid: pid, result: JobResult{State: StateRunning}})
	}
	t.jobs[job.ID] = job
	t.nextID++
	t.log.Debug("job registered", "job", job.ID, "pgid", pgid, "pids", pids, "background", background)
	return job.ID
}

func (t *JobTable) Get(id int) (*Job, bool) {
	job, ok := t.jobs[id]
	return job, ok
}

// List returns the tracked jobs ordered by id.
func (t *JobTable) List() []*Job {
	jobs := make([]*Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs
}

// Len is the number of tracked jobs.
func (t *JobTable) Len() int {
	return len(t.jobs)
}

// Current returns the most recently registered job that is not terminal.
func (t *JobTable) Current() (*Job, bool) {
	jobs := t.List()
	for i := len(jobs) - 1; i >= 0; i-- {
		if !jobs[i].result.State.Terminal() {
			return jobs[i], true
		}
	}
	return nil, false
}

// MarkReported removes a terminal job. Jobs that are still alive stay.
func (t *JobTable) MarkReported(id int) {
	job, ok := t.jobs[id]
	if !ok || !job.result.State.Terminal() {
		return
	}
	delete(t.jobs, id)
}

// ReapNonblocking polls every live member without blocking and returns the
// jobs whose overall state became terminal during this call.
func (t *JobTable) ReapNonblocking() []*Job {
	var done []*Job
	for _, job := range t.List() {
		if job.result.State.Terminal() {
			continue
		}
		for _, m := range job.members {
			if m.result.State.Terminal() {
				continue
			}
			t.poll(job, m, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED)
		}
		job.refresh()
		if job.result.State.Terminal() {
			done = append(done, job)
		}
	}
	return done
}

// poll runs one wait4 on m and applies the reported transition.
func (t *JobTable) poll(job *Job, m *member, options int) {
	var ws unix.WaitStatus
	var (
		pid int
		err error
	)
	for {
		pid, err = t.wait4(m.pid, &ws, options)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, unix.ECHILD) {
			// Reaped elsewhere; the status is lost.
			t.log.Warn("child already reaped", "job", job.ID, "pid", m.pid)
			m.result = Exited(0)
			return
		}
		t.log.Error("wait4 failed", "job", job.ID, "pid", m.pid, "err", err)
		m.result = Exited(StatusFailure)
		return
	}
	if pid == 0 {
		return
	}
	m.result = transition(m.result, ws)
	t.log.Debug("member changed state", "job", job.ID, "pid", m.pid, "state", m.result.State)
}

func transition(prev JobResult, ws unix.WaitStatus) JobResult {
	switch {
	case ws.Exited():
		return Exited(ws.ExitStatus())
	case ws.Signaled():
		return Signaled(ws.Signal())
	case ws.Stopped():
		return JobResult{State: StateStopped}
	case ws.Continued():
		return JobResult{State: StateRunning}
	default:
		return prev
	}
}

// WaitForeground blocks until job id is terminal or stopped. Terminal jobs
// are removed since the caller reports their status directly.
func (t *JobTable) WaitForeground(id int) (JobResult, error) {
	return t.foreground(id, false)
}

// ResumeForeground gives job id the terminal, continues it and waits as
// WaitForeground does.
func (t *JobTable) ResumeForeground(id int) (JobResult, error) {
	return t.foreground(id, true)
}

func (t *JobTable) foreground(id int, resume bool) (JobResult, error) {
	job, ok := t.jobs[id]
	if !ok {
		return JobResult{}, fmt.Errorf("%%%d: no such job", id)
	}
	if job.result.State.Terminal() {
		t.MarkReported(id)
		return job.result, nil
	}

	if t.relay != nil {
		stop := t.relay.forward(job.Pgid)
		defer stop()
	}
	if t.tty >= 0 {
		t.setForeground(job.Pgid)
		defer t.setForeground(t.shellPgid)
	}
	if resume {
		if err := t.Continue(id, false); err != nil {
			return JobResult{}, err
		}
	}
	job.Background = false

	result := t.block(job)
	if result.State.Terminal() {
		t.MarkReported(id)
	}
	return result, nil
}

// Wait blocks until job id has terminated or stopped, leaving the report
// to the caller.
func (t *JobTable) Wait(id int) (JobResult, error) {
	job, ok := t.jobs[id]
	if !ok {
		return JobResult{}, fmt.Errorf("%%%d: no such job", id)
	}
	return t.block(job), nil
}

func (t *JobTable) block(job *Job) JobResult {
	for {
		job.refresh()
		if job.result.State.Terminal() || job.result.State == StateStopped {
			return job.result
		}
		for _, m := range job.members {
			if m.result.State == StateRunning {
				t.poll(job, m, unix.WUNTRACED)
				break
			}
		}
	}
}

// Continue sends SIGCONT to the job's process group and marks its stopped
// members running.
func (t *JobTable) Continue(id int, background bool) error {
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%%%d: no such job", id)
	}
	if job.result.State.Terminal() {
		return fmt.Errorf("%%%d: job has terminated", id)
	}
	if err := t.kill(-job.Pgid, syscall.SIGCONT); err != nil {
		return fmt.Errorf("%%%d: %w", id, err)
	}
	for _, m := range job.members {
		if m.result.State == StateStopped {
			m.result = JobResult{State: StateRunning}
		}
	}
	job.Background = background
	job.refresh()
	return nil
}

// Signal delivers sig to the job's process group. Stopped jobs are also
// continued so the signal can take effect.
func (t *JobTable) Signal(id int, sig syscall.Signal) error {
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%%%d: no such job", id)
	}
	if err := t.kill(-job.Pgid, sig); err != nil {
		return fmt.Errorf("%%%d: %w", id, err)
	}
	if job.result.State == StateStopped && sig != syscall.SIGCONT {
		return t.kill(-job.Pgid, syscall.SIGCONT)
	}
	return nil
}

// setForeground hands the terminal to pgid. SIGTTOU is blocked on this
// thread only, so children never inherit a changed disposition.
func (t *JobTable) setForeground(pgid int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	restore := blockSignal(unix.SIGTTOU)
	defer restore()

	if err := unix.IoctlSetPointerInt(t.tty, unix.TIOCSPGRP, pgid); err != nil {
		t.log.Debug("tcsetpgrp failed", "pgid", pgid, "err", err)
	}
}

// blockSignal adds sig to the calling thread's signal mask until restore is
// called. The caller must hold its OS thread.
func blockSignal(sig syscall.Signal) (restore func()) {
	var set, old unix.Sigset_t
	bits := uint(unsafe.Sizeof(set.Val[0]) * 8)
	n := uint(sig) - 1
	set.Val[n/bits] |= 1 << (n % bits)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &old); err != nil {
		return func() {}
	}
	return func() { unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil) }
}
