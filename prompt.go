package jobsh

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultPrompt = "%u@%h:%W%$ "

// Prompt expands format against the shell's state:
//
//	%u user   %h host   %w working dir   %W working dir with ~
//	%d date   %t time   %? last status   %j job count   %$ $ or #
func (sh *Shell) Prompt(format string) string {
	if format == "" {
		format = DefaultPrompt
	}
	hostname, _ := os.Hostname()
	if i := strings.IndexByte(hostname, '.'); i > 0 {
		hostname = hostname[:i]
	}
	sign := "$"
	if os.Geteuid() == 0 {
		sign = "#"
	}
	now := time.Now()

	r := strings.NewReplacer(
		"%u", sh.Env.Value("USER"),
		"%h", hostname,
		"%w", sh.Dir,
		"%W", sh.shortenPath(sh.Dir),
		"%d", now.Format("2006-01-02"),
		"%t", now.Format("15:04:05"),
		"%?", strconv.Itoa(sh.Params.LastStatus),
		"%j", strconv.Itoa(sh.Jobs.Len()),
		"%$", sign,
		"%%", "%",
	)
	return r.Replace(format)
}

func (sh *Shell) shortenPath(path string) string {
	home := sh.Env.Value("HOME")
	if home == "" || home == "/" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+"/") {
		return "~" + path[len(home):]
	}
	return path
}
