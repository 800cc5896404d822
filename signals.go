package jobsh

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// forwardedSignals are relayed to the foreground job instead of acting on
// the shell.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTSTP}

// signalRelay catches interactive signals for the life of the shell and
// passes them to the process group of the job being waited on, if any.
type signalRelay struct {
	target atomic.Int64
	sigs   chan os.Signal
	done   chan struct{}
	kill   KillFunc
	log    *slog.Logger
}

// newSignalRelay installs the handler. run must be started once kill and
// log are set.
func newSignalRelay(kill KillFunc, log *slog.Logger) *signalRelay {
	r := &signalRelay{
		sigs: make(chan os.Signal, 4),
		done: make(chan struct{}),
		kill: kill,
		log:  log,
	}
	signal.Notify(r.sigs, forwardedSignals...)
	return r
}

func (r *signalRelay) run() {
	for {
		select {
		case sig := <-r.sigs:
			pgid := int(r.target.Load())
			s := sig.(syscall.Signal)
			if pgid == 0 {
				r.log.Debug("signal ignored at prompt", "signal", signalName(s))
				continue
			}
			if err := r.kill(-pgid, s); err != nil {
				r.log.Debug("forwarding signal failed", "signal", signalName(s), "pgid", pgid, "err", err)
			}
		case <-r.done:
			return
		}
	}
}

// forward directs signals to pgid until the returned function is called.
func (r *signalRelay) forward(pgid int) (stop func()) {
	r.target.Store(int64(pgid))
	return func() { r.target.Store(0) }
}

func (r *signalRelay) Close() {
	signal.Stop(r.sigs)
	close(r.done)
}
