package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"jobsh"
	"jobsh/config"
	"jobsh/history"
)

const historyPreload = 1000

func repl(sh *jobsh.Shell, cfg *config.Configuration, store *history.Store, log *slog.Logger) (int, error) {
	completer := jobsh.NewCompleter(sh)
	if store != nil {
		completer.UseArguments(store)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 sh.Prompt(cfg.Prompt),
		AutoComplete:           completer,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		HistoryLimit:           historyPreload,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return 0, err
	}
	defer rl.Close()

	if store != nil {
		lines, err := store.Recent(historyPreload)
		if err != nil {
			log.Warn("failed to load history", "err", err)
		}
		for _, line := range lines {
			rl.SaveHistory(line)
		}
	}

	for {
		sh.ReportJobs(rl.Stderr())
		rl.SetPrompt(sh.Prompt(cfg.Prompt))

		line, err := rl.Readline()
		eof := false
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			line, eof = "exit", true
		case err != nil:
			return 0, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		start := time.Now()
		res := sh.Run(line)
		if !eof {
			rl.SaveHistory(line)
			if store != nil {
				if err := store.Record(line, sh.Dir, res.Status, start, time.Since(start)); err != nil {
					log.Warn("failed to record history", "err", err)
				}
			}
		}
		report(rl.Stderr(), sh, res)

		if res.Exit {
			return res.Status, nil
		}
	}
}
