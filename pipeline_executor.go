package jobsh

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"jobsh/parser"
)

// Outcome is what executing one job spec produced. Builtins run in-process
// and have no job; background jobs have no result yet.
type Outcome struct {
	JobID      int
	Pid        int
	Background bool
	Builtin    bool
	Result     JobResult
}

// Notice is the "[id] pid" line announced for a background job.
func (o Outcome) Notice() string {
	if !o.Background || o.JobID == 0 {
		return ""
	}
	return fmt.Sprintf("[%d] %d", o.JobID, o.Pid)
}

// Execute runs one job spec. Every stage is expanded before anything is
// spawned. A lone builtin runs in-process; otherwise each stage becomes a
// child process in the process group of the first stage, registered with the
// job table. Foreground jobs are waited for until they finish or stop.
func (sh *Shell) Execute(spec *parser.JobSpec) (Outcome, error) {
	x := NewExpander(sh.Env, &sh.Params)
	stages := make([]*ExpandedStage, 0, len(spec.Stages))
	for _, st := range spec.Stages {
		es, err := x.Expand(st)
		if err != nil {
			return Outcome{}, &ExecError{Name: st.Name.Raw, Err: err}
		}
		stages = append(stages, es)
	}

	if len(stages) == 1 {
		if b, ok := builtins[stages[0].Name]; ok {
			if spec.Background {
				sh.Log.Debug("builtin runs in the foreground", "builtin", stages[0].Name)
			}
			return sh.runBuiltin(b, stages[0])
		}
	} else {
		for _, st := range stages {
			if IsBuiltin(st.Name) {
				return Outcome{}, &ExecError{Name: st.Name, Err: ErrBuiltinInPipeline}
			}
		}
	}

	return sh.spawnPipeline(parser.Format(spec), stages, spec.Background)
}

func (sh *Shell) runBuiltin(b Builtin, st *ExpandedStage) (Outcome, error) {
	redir, err := openRedirections(st, sh.Dir)
	if err != nil {
		return Outcome{}, err
	}
	defer redir.Close()

	call := &BuiltinCall{
		Name:   st.Name,
		Args:   st.Args,
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
	if sh.Stdin != nil {
		call.Stdin = sh.Stdin
	}
	if sh.Stdout != nil {
		call.Stdout = sh.Stdout
	}
	if sh.Stderr != nil {
		call.Stderr = sh.Stderr
	}
	if redir.in != nil {
		call.Stdin = redir.in
	}
	if redir.out != nil {
		call.Stdout = redir.out
	}

	if err := b(sh, call); err != nil {
		fmt.Fprintf(call.Stderr, "%s: %v\n", st.Name, err)
		if call.Status == 0 {
			call.Status = StatusFailure
		}
	}
	return Outcome{Builtin: true, Result: Exited(call.Status)}, nil
}

// spawnPipeline starts the stages left to right. If stage k cannot be
// started the earlier stages keep running and are tracked as a background
// job so they are still reaped.
func (sh *Shell) spawnPipeline(command string, stages []*ExpandedStage, background bool) (Outcome, error) {
	var (
		pids     []int
		pgid     int
		prevRead *os.File
		spawnErr error
	)

	for i, st := range stages {
		var stdin, stdout *os.File = sh.Stdin, sh.Stdout
		if prevRead != nil {
			stdin = prevRead
		}

		var nextRead, pipeWrite *os.File
		if i < len(stages)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				spawnErr = &ExecError{Name: st.Name, Err: fmt.Errorf("%w: %v", ErrSpawnFailed, err)}
				break
			}
			nextRead, pipeWrite = r, w
			stdout = w
		}

		pid, err := sh.startStage(st, stdin, stdout, pgid, i == 0 && !background)

		// The children hold their own copies of the pipe ends.
		closeFile(prevRead)
		closeFile(pipeWrite)
		prevRead = nextRead

		if err != nil {
			spawnErr = err
			break
		}
		if pgid == 0 {
			pgid = pid
		}
		pids = append(pids, pid)
	}
	closeFile(prevRead)

	if len(pids) == 0 {
		return Outcome{}, spawnErr
	}

	last := pids[len(pids)-1]
	if spawnErr != nil {
		id := sh.Jobs.Register(command, pgid, pids, true)
		sh.Params.LastBackgroundPID = last
		sh.Log.Warn("pipeline partially started", "job", id, "started", len(pids), "stages", len(stages), "err", spawnErr)
		return Outcome{JobID: id, Pid: last, Background: true}, spawnErr
	}

	id := sh.Jobs.Register(command, pgid, pids, background)
	if background {
		sh.Params.LastBackgroundPID = last
		return Outcome{JobID: id, Pid: last, Background: true}, nil
	}

	result, err := sh.Jobs.WaitForeground(id)
	if err != nil {
		return Outcome{JobID: id, Pid: last}, err
	}
	return Outcome{JobID: id, Pid: last, Result: result}, nil
}

// startStage resolves and starts one stage, returning its pid. The process
// is released at once: the job table reaps it with wait4.
func (sh *Shell) startStage(st *ExpandedStage, stdin, stdout *os.File, pgid int, foreground bool) (int, error) {
	path, err := sh.Resolve(st.Name, sh.Env, sh.Dir)
	if err != nil {
		return 0, &ExecError{Name: st.Name, Err: err}
	}

	redir, err := openRedirections(st, sh.Dir)
	if err != nil {
		return 0, err
	}
	defer redir.Close()
	if redir.in != nil {
		stdin = redir.in
	}
	if redir.out != nil {
		stdout = redir.out
	}

	cmd := &exec.Cmd{
		Path:        path,
		Args:        st.Argv(),
		Env:         sh.Env.Environ(),
		Dir:         sh.Dir,
		Stdin:       fileOrNil(stdin),
		Stdout:      writerOrNil(stdout),
		Stderr:      writerOrNil(sh.Stderr),
		SysProcAttr: sh.procAttr(pgid, foreground),
	}
	if err := cmd.Start(); err != nil {
		return 0, &ExecError{Name: st.Name, Err: fmt.Errorf("%w: %v", ErrSpawnFailed, err)}
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		sh.Log.Debug("release failed", "pid", pid, "err", err)
	}
	sh.Log.Debug("stage started", "name", st.Name, "path", path, "pid", pid, "pgid", pgid)
	return pid, nil
}

// procAttr places the child in process group pgid, or a new group led by
// itself when pgid is 0. A foreground leader is also given the terminal.
func (sh *Shell) procAttr(pgid int, foreground bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	if foreground && pgid == 0 && sh.tty >= 0 {
		attr.Foreground = true
		attr.Ctty = sh.tty
	}
	return attr
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}

// A nil *os.File must reach exec.Cmd as a nil interface so the child gets
// the null device.
func fileOrNil(f *os.File) io.Reader {
	if f == nil {
		return nil
	}
	return f
}

func writerOrNil(f *os.File) io.Writer {
	if f == nil {
		return nil
	}
	return f
}
