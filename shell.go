package jobsh

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"jobsh/parser"
)

// HistorySource lists previously entered lines, oldest first. n <= 0 means
// all of them.
type HistorySource interface {
	Recent(n int) ([]string, error)
}

// Shell owns the state one interactive session mutates: variables, the
// working directory, special parameters and the job table.
type Shell struct {
	Env     *Environment
	Jobs    *JobTable
	Params  Params
	Dir     string
	Resolve PathResolver
	History HistorySource
	Log     *slog.Logger
	Color   bool

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	tty        int
	tableOpts  []JobTableOption
	jobControl bool

	exitWarned bool
	exiting    bool
	exitCode   int
}

type Option func(*Shell)

func WithEnvironment(env *Environment) Option {
	return func(sh *Shell) { sh.Env = env }
}

func WithDir(dir string) Option {
	return func(sh *Shell) { sh.Dir = dir }
}

func WithStdio(stdin, stdout, stderr *os.File) Option {
	return func(sh *Shell) {
		sh.Stdin, sh.Stdout, sh.Stderr = stdin, stdout, stderr
	}
}

func WithResolver(r PathResolver) Option {
	return func(sh *Shell) { sh.Resolve = r }
}

func WithLogger(log *slog.Logger) Option {
	return func(sh *Shell) { sh.Log = log }
}

func WithHistory(h HistorySource) Option {
	return func(sh *Shell) { sh.History = h }
}

func WithColor(enabled bool) Option {
	return func(sh *Shell) { sh.Color = enabled }
}

// WithJobControl enables terminal handover and signal forwarding when the
// shell's stdin is a terminal.
func WithJobControl() Option {
	return func(sh *Shell) { sh.jobControl = true }
}

// WithJobTableOptions passes options through to the job table.
func WithJobTableOptions(opts ...JobTableOption) Option {
	return func(sh *Shell) { sh.tableOpts = append(sh.tableOpts, opts...) }
}

// New returns a shell with the process environment and working directory
// unless overridden.
func New(opts ...Option) (*Shell, error) {
	sh := &Shell{
		Resolve: SearchPath,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		tty:     -1,
	}
	for _, opt := range opts {
		opt(sh)
	}

	if sh.Env == nil {
		sh.Env = EnvironmentFrom(os.Environ())
	}
	if sh.Dir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		sh.Dir = dir
	}
	sh.Params.ShellPID = os.Getpid()

	tableOpts := []JobTableOption{WithTableLogger(sh.Log)}
	if sh.jobControl && sh.Stdin != nil && term.IsTerminal(int(sh.Stdin.Fd())) {
		fd := int(sh.Stdin.Fd())
		pgid := unix.Getpgrp()
		sh.tty = fd
		tableOpts = append(tableOpts, WithTerminal(fd, pgid), WithSignalForwarding())
		sh.Log.Debug("job control enabled", "tty", fd, "pgid", pgid)
	}
	sh.Jobs = NewJobTable(append(tableOpts, sh.tableOpts...)...)
	return sh, nil
}

// Close releases the signal handlers installed for job control.
func (sh *Shell) Close() {
	sh.Jobs.Close()
}

// LineResult is the outcome of one input line. Status is the status of the
// last job spec run; Err joins every error the line produced.
type LineResult struct {
	Status   int
	Outcomes []Outcome
	Err      error
	Exit     bool
}

// Run tokenizes, parses and executes one line. Lex and parse errors discard
// the whole line; an execution error aborts only its own job spec.
func (sh *Shell) Run(line string) LineResult {
	specs, err := parser.ParseLine(line)
	if err != nil {
		sh.Params.LastStatus = StatusUsage
		return LineResult{Status: StatusUsage, Err: err}
	}

	res := LineResult{Status: sh.Params.LastStatus}
	var errs []error
	for _, spec := range specs {
		out, err := sh.Execute(spec)
		switch {
		case err != nil:
			errs = append(errs, err)
			res.Status = errorStatus(err)
		case out.Background:
			res.Status = 0
		default:
			res.Status = out.Result.ExitStatus()
		}
		if out.JobID != 0 || out.Builtin {
			res.Outcomes = append(res.Outcomes, out)
		}
		sh.Params.LastStatus = res.Status

		if sh.exiting {
			res.Exit = true
			res.Status = sh.exitCode
			break
		}
	}
	res.Err = errors.Join(errs...)
	return res
}

// ReportJobs reaps finished jobs, writes a notice for each and forgets them.
func (sh *Shell) ReportJobs(w io.Writer) int {
	done := sh.Jobs.ReapNonblocking()
	WriteNotices(w, done, sh.Color)
	for _, job := range done {
		sh.Jobs.MarkReported(job.ID)
	}
	return len(done)
}

// Stopped reports the foreground jobs of res that were stopped rather than
// finished, for the caller to announce.
func (sh *Shell) Stopped(res LineResult) []*Job {
	var stopped []*Job
	for _, out := range res.Outcomes {
		if out.Builtin || out.Background || out.Result.State != StateStopped {
			continue
		}
		if job, ok := sh.Jobs.Get(out.JobID); ok {
			stopped = append(stopped, job)
		}
	}
	return stopped
}

func (sh *Shell) requestExit(code int) {
	sh.exiting = true
	sh.exitCode = code
}

// Exiting reports whether the exit builtin has run.
func (sh *Shell) Exiting() (bool, int) {
	return sh.exiting, sh.exitCode
}

// Notices renders the "[id] pid" lines of background outcomes.
func (res LineResult) Notices() string {
	var lines []string
	for _, out := range res.Outcomes {
		if n := out.Notice(); n != "" {
			lines = append(lines, n)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
