package jobsh

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"
)

// BuiltinCall carries the arguments and streams of one builtin invocation.
// A builtin sets Status for a non-zero result that is not an error.
type BuiltinCall struct {
	Name   string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Status int
}

// Builtin is a command run inside the shell process. A returned error is
// printed as "name: err" and yields status 1 unless Status is already set.
type Builtin func(sh *Shell, call *BuiltinCall) error

var (
	builtins    map[string]Builtin
	builtinHelp map[string]string
)

func init() {
	builtins = map[string]Builtin{
		"cd":      cd,
		"pwd":     pwd,
		"exit":    exitShell,
		"export":  export,
		"unset":   unset,
		"jobs":    jobs,
		"fg":      fg,
		"bg":      bg,
		"wait":    wait,
		"kill":    kill,
		"history": history,
		"help":    help,
	}
	builtinHelp = map[string]string{
		"cd":      "cd [dir|-]: change the working directory",
		"pwd":     "pwd: print the working directory",
		"exit":    "exit [n]: leave the shell with status n",
		"export":  "export [-p] [name[=value] ...]: set variables for spawned commands",
		"unset":   "unset name ...: remove variables",
		"jobs":    "jobs [-l|-p] [%job ...]: list jobs",
		"fg":      "fg [%job]: continue a job in the foreground",
		"bg":      "bg [%job ...]: continue stopped jobs in the background",
		"wait":    "wait [%job|pid ...]: wait for jobs to finish",
		"kill":    "kill [-s sig | -sig] %job|pid ...: send a signal",
		"history": "history [n]: show the last n recorded lines",
		"help":    "help [builtin]: describe builtins",
	}
}

// IsBuiltin reports whether name runs in-process.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// BuiltinNames returns the registered builtin names, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cd(sh *Shell, call *BuiltinCall) error {
	var (
		target string
		show   bool
	)
	switch {
	case len(call.Args) > 1:
		return errors.New("too many arguments")
	case len(call.Args) == 0:
		home, ok := sh.Env.Get("HOME")
		if !ok || home == "" {
			return errors.New("HOME not set")
		}
		target = home
	case call.Args[0] == "-":
		prev, ok := sh.Env.Get("OLDPWD")
		if !ok || prev == "" {
			return errors.New("OLDPWD not set")
		}
		target, show = prev, true
	default:
		target = call.Args[0]
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(sh.Dir, target)
	}
	target = filepath.Clean(target)
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("%s: %w", call.argOr(0, target), unwrapPathError(err))
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", call.argOr(0, target))
	}

	sh.Log.Debug("changing directory", "from", sh.Dir, "to", target)
	sh.Env.Set("OLDPWD", sh.Dir)
	sh.Env.Set("PWD", target)
	sh.Dir = target
	if show {
		fmt.Fprintln(call.Stdout, target)
	}
	return nil
}

func pwd(sh *Shell, call *BuiltinCall) error {
	_, err := fmt.Fprintln(call.Stdout, sh.Dir)
	return err
}

func exitShell(sh *Shell, call *BuiltinCall) error {
	code := sh.Params.LastStatus
	if len(call.Args) > 0 {
		n, err := strconv.Atoi(call.Args[0])
		if err != nil {
			fmt.Fprintf(call.Stderr, "exit: %s: numeric argument required\n", call.Args[0])
			n = StatusUsage
		}
		code = n & 0xff
	}

	if !sh.exitWarned {
		for _, job := range sh.Jobs.List() {
			if job.Result().State == StateStopped {
				sh.exitWarned = true
				call.Status = StatusFailure
				fmt.Fprintln(call.Stderr, "There are stopped jobs.")
				return nil
			}
		}
	}

	sh.requestExit(code)
	call.Status = code
	return nil
}

func export(sh *Shell, call *BuiltinCall) error {
	set := getopt.New()
	set.SetProgram(call.Name)
	set.SetParameters("[name[=value] ...]")
	printAll := set.BoolLong("print", 'p', "print all variables")
	if err := set.Getopt(append([]string{call.Name}, call.Args...), nil); err != nil {
		call.Status = StatusUsage
		return err
	}

	args := set.Args()
	if *printAll || len(args) == 0 {
		for _, name := range sh.Env.Names() {
			fmt.Fprintf(call.Stdout, "export %s=%s\n", name, strconv.Quote(sh.Env.Value(name)))
		}
		return nil
	}

	var errs []error
	for _, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		if !isName(name) {
			errs = append(errs, fmt.Errorf("%q: not a valid identifier", arg))
			continue
		}
		if !hasValue {
			// Every variable is already exported.
			continue
		}
		if err := sh.Env.Set(name, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func unset(sh *Shell, call *BuiltinCall) error {
	var errs []error
	for _, name := range call.Args {
		if !isName(name) {
			errs = append(errs, fmt.Errorf("%q: not a valid identifier", name))
			continue
		}
		sh.Env.Unset(name)
	}
	return errors.Join(errs...)
}

func jobs(sh *Shell, call *BuiltinCall) error {
	set := getopt.New()
	set.SetProgram(call.Name)
	set.SetParameters("[%job ...]")
	long := set.BoolLong("long", 'l', "include process ids")
	pidsOnly := set.BoolLong("pids", 'p', "print process group leaders only")
	if err := set.Getopt(append([]string{call.Name}, call.Args...), nil); err != nil {
		call.Status = StatusUsage
		return err
	}

	sh.Jobs.ReapNonblocking()

	list := sh.Jobs.List()
	if args := set.Args(); len(args) > 0 {
		list = list[:0:0]
		for _, arg := range args {
			job, err := sh.findJob(arg)
			if err != nil {
				return err
			}
			list = append(list, job)
		}
	}

	current, _ := sh.Jobs.Current()
	for _, job := range list {
		if *pidsOnly {
			fmt.Fprintln(call.Stdout, job.Leader())
			continue
		}
		fmt.Fprintln(call.Stdout, FormatJob(job, job == current, *long, sh.Color))
	}
	for _, job := range list {
		sh.Jobs.MarkReported(job.ID)
	}
	return nil
}

func fg(sh *Shell, call *BuiltinCall) error {
	if len(call.Args) > 1 {
		return errors.New("too many arguments")
	}
	job, err := sh.findJob(call.argOr(0, "%+"))
	if err != nil {
		return err
	}

	fmt.Fprintln(call.Stdout, job.Command)
	result, err := sh.Jobs.ResumeForeground(job.ID)
	if err != nil {
		return err
	}
	if result.State == StateStopped {
		fmt.Fprintln(call.Stderr)
		fmt.Fprintln(call.Stderr, FormatJob(job, true, false, sh.Color))
	}
	call.Status = result.ExitStatus()
	return nil
}

func bg(sh *Shell, call *BuiltinCall) error {
	targets := call.Args
	if len(targets) == 0 {
		targets = []string{"%+"}
	}
	var errs []error
	for _, arg := range targets {
		job, err := sh.findJob(arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := sh.Jobs.Continue(job.ID, true); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(call.Stdout, "[%d] %s\n", job.ID, job.Command)
	}
	return errors.Join(errs...)
}

func wait(sh *Shell, call *BuiltinCall) error {
	var targets []*Job
	if len(call.Args) == 0 {
		targets = sh.Jobs.List()
	}
	for _, arg := range call.Args {
		job, err := sh.findJob(arg)
		if err != nil {
			call.Status = StatusNotFound
			return err
		}
		targets = append(targets, job)
	}

	status := 0
	for _, job := range targets {
		result, err := sh.Jobs.Wait(job.ID)
		if err != nil {
			return err
		}
		status = result.ExitStatus()
		sh.Jobs.MarkReported(job.ID)
	}
	call.Status = status
	return nil
}

func kill(sh *Shell, call *BuiltinCall) error {
	sig := syscall.SIGTERM
	args := call.Args

	if len(args) > 0 && len(args[0]) > 1 && args[0][0] == '-' && !isKillOption(args[0]) {
		s, err := parseSignal(args[0][1:])
		if err != nil {
			call.Status = StatusUsage
			return err
		}
		sig, args = s, args[1:]
	} else {
		set := getopt.New()
		set.SetProgram(call.Name)
		set.SetParameters("%job|pid ...")
		name := set.StringLong("signal", 's', "", "signal to send", "sig")
		list := set.BoolLong("list", 'l', "list signal names")
		if err := set.Getopt(append([]string{call.Name}, args...), nil); err != nil {
			call.Status = StatusUsage
			return err
		}
		if *list {
			for s := syscall.Signal(1); s < 32; s++ {
				if n := unix.SignalName(s); n != "" {
					fmt.Fprintf(call.Stdout, "%2d) %s\n", int(s), n)
				}
			}
			return nil
		}
		if *name != "" {
			s, err := parseSignal(*name)
			if err != nil {
				call.Status = StatusUsage
				return err
			}
			sig = s
		}
		args = set.Args()
	}

	if len(args) == 0 {
		call.Status = StatusUsage
		return errors.New("usage: kill [-s sig | -sig] %job|pid ...")
	}

	var errs []error
	for _, arg := range args {
		if strings.HasPrefix(arg, "%") {
			job, err := sh.findJob(arg)
			if err == nil {
				err = sh.Jobs.Signal(job.ID, sig)
			}
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		pid, err := strconv.Atoi(arg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: arguments must be process or job IDs", arg))
			continue
		}
		if err := sh.Jobs.kill(pid, sig); err != nil {
			errs = append(errs, fmt.Errorf("(%d) - %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

func isKillOption(arg string) bool {
	return arg == "--" || strings.HasPrefix(arg, "-s") || strings.HasPrefix(arg, "-l") ||
		strings.HasPrefix(arg, "--signal") || strings.HasPrefix(arg, "--list")
}

// parseSignal accepts "9", "KILL", "kill" or "SIGKILL".
func parseSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n >= 65 {
			return 0, fmt.Errorf("%s: invalid signal specification", s)
		}
		return syscall.Signal(n), nil
	}
	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("%s: invalid signal specification", s)
	}
	return sig, nil
}

func history(sh *Shell, call *BuiltinCall) error {
	if sh.History == nil {
		return errors.New("history is disabled")
	}
	n := 0
	if len(call.Args) > 0 {
		var err error
		if n, err = strconv.Atoi(call.Args[0]); err != nil || n < 0 {
			call.Status = StatusUsage
			return fmt.Errorf("%s: numeric argument required", call.Args[0])
		}
	}
	lines, err := sh.History.Recent(n)
	if err != nil {
		return err
	}
	for i, line := range lines {
		fmt.Fprintf(call.Stdout, "%5d  %s\n", i+1, line)
	}
	return nil
}

func help(sh *Shell, call *BuiltinCall) error {
	if len(call.Args) > 0 {
		text, ok := builtinHelp[call.Args[0]]
		if !ok {
			return fmt.Errorf("no help topics match %q", call.Args[0])
		}
		fmt.Fprintln(call.Stdout, text)
		return nil
	}
	fmt.Fprintln(call.Stdout, "Builtin commands:")
	for _, name := range BuiltinNames() {
		fmt.Fprintf(call.Stdout, "  %s\n", builtinHelp[name])
	}
	return nil
}

// findJob resolves a job reference: %N, %+ or %% for the current job, %-
// for the previous one, or a pid belonging to a job.
func (sh *Shell) findJob(ref string) (*Job, error) {
	switch ref {
	case "%+", "%%", "%":
		if job, ok := sh.Jobs.Current(); ok {
			return job, nil
		}
		return nil, errors.New("no current job")
	case "%-":
		list := sh.Jobs.List()
		live := list[:0:0]
		for _, job := range list {
			if !job.Result().State.Terminal() {
				live = append(live, job)
			}
		}
		if len(live) < 2 {
			return nil, errors.New("no previous job")
		}
		return live[len(live)-2], nil
	}

	if strings.HasPrefix(ref, "%") {
		id, err := strconv.Atoi(ref[1:])
		if err != nil {
			return nil, fmt.Errorf("%s: no such job", ref)
		}
		if job, ok := sh.Jobs.Get(id); ok {
			return job, nil
		}
		return nil, fmt.Errorf("%s: no such job", ref)
	}

	pid, err := strconv.Atoi(ref)
	if err != nil {
		return nil, fmt.Errorf("%s: not a pid or valid job spec", ref)
	}
	for _, job := range sh.Jobs.List() {
		for _, p := range job.Pids {
			if p == pid {
				return job, nil
			}
		}
	}
	return nil, fmt.Errorf("pid %d is not a child of this shell", pid)
}

func (c *BuiltinCall) argOr(i int, fallback string) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return fallback
}

func unwrapPathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
