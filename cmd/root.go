package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jobsh"
	"jobsh/config"
	"jobsh/history"
)

// exitError carries a non-zero shell status out of cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func statusError(status int) error {
	if status == 0 {
		return nil
	}
	return &exitError{code: status}
}

type rootOptions struct {
	configPath string
	command    string
	logLevel   string
	noHistory  bool
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	cmd := &cobra.Command{
		Use:   "jobsh",
		Short: "An interactive shell with pipelines, redirection and job control",
		Long: `jobsh reads command lines, runs pipelines in their own process groups
and tracks them as jobs that can be stopped, resumed and waited on.

  jobsh                 start an interactive session
  jobsh -c 'ls | wc -l' run one line and exit with its status`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.config/jobsh/jobshrc.yaml)")
	cmd.Flags().StringVarP(&opts.command, "command", "c", "", "run one command line and exit")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not read or record history")
	return cmd
}

func run(cmd *cobra.Command, opts rootOptions) error {
	home, _ := os.UserHomeDir()
	fs := afero.NewOsFs()

	path := opts.configPath
	if path == "" {
		path = config.DefaultPath(home)
	}
	cfg, err := config.Load(fs, path)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logOut := cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		f, err := cfg.OpenLog(fs, home)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	env := jobsh.EnvironmentFrom(os.Environ())
	for name, value := range cfg.Env {
		if err := env.Set(name, value); err != nil {
			return err
		}
	}

	interactive := opts.command == "" && term.IsTerminal(int(os.Stdin.Fd()))
	shOpts := []jobsh.Option{
		jobsh.WithEnvironment(env),
		jobsh.WithLogger(logger),
		jobsh.WithColor(cfg.ColorEnabled(term.IsTerminal(int(os.Stderr.Fd())))),
	}
	if interactive {
		shOpts = append(shOpts, jobsh.WithJobControl())
	}

	var store *history.Store
	if cfg.History.Enabled && !opts.noHistory && opts.command == "" {
		store, err = history.Open(cfg.HistoryPath(home))
		if err != nil {
			logger.Warn("history disabled", "path", cfg.HistoryPath(home), "err", err)
		} else {
			defer store.Close()
			shOpts = append(shOpts, jobsh.WithHistory(store))
			logger.Debug("history session started", "session", store.Session().ID)
		}
	}

	sh, err := jobsh.New(shOpts...)
	if err != nil {
		return err
	}
	defer sh.Close()

	if opts.command != "" {
		res := sh.Run(opts.command)
		report(cmd.ErrOrStderr(), sh, res)
		return statusError(res.Status)
	}

	status, err := repl(sh, cfg, store, logger)
	if err != nil {
		return err
	}
	return statusError(status)
}

// report writes what one line left for the user to see: background job
// numbers, stopped foreground jobs and errors.
func report(w io.Writer, sh *jobsh.Shell, res jobsh.LineResult) {
	fmt.Fprint(w, res.Notices())
	for _, job := range sh.Stopped(res) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, jobsh.FormatJob(job, true, false, sh.Color))
	}
	if res.Err != nil {
		for _, line := range strings.Split(res.Err.Error(), "\n") {
			fmt.Fprintf(w, "jobsh: %s\n", line)
		}
	}
}
