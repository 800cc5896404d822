package jobsh

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

func stateColor(r JobResult) *color.Color {
	switch r.State {
	case StateExited:
		if r.Code == 0 {
			return color.New(color.FgGreen)
		}
		return color.New(color.FgRed)
	case StateSignaled:
		return color.New(color.FgRed, color.Bold)
	case StateStopped:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// FormatJob renders a job the way the jobs builtin lists it:
//
//	[2]+  Stopped                 sleep 100
//
// long adds the pid of every stage.
func FormatJob(job *Job, current, long, colorize bool) string {
	marker := " "
	if current {
		marker = "+"
	}

	result := job.Result()
	c := stateColor(result)
	if colorize {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	state := c.Sprintf("%-22s", result.String())

	var b strings.Builder
	fmt.Fprintf(&b, "[%d]%s  ", job.ID, marker)
	if long {
		pids := make([]string, len(job.Pids))
		for i, pid := range job.Pids {
			pids[i] = fmt.Sprint(pid)
		}
		fmt.Fprintf(&b, "%s ", strings.Join(pids, ","))
	}
	fmt.Fprintf(&b, "%s  %s", state, job.Command)
	return b.String()
}

// WriteNotices writes one completion line per job.
func WriteNotices(w io.Writer, jobs []*Job, colorize bool) {
	for _, job := range jobs {
		fmt.Fprintln(w, FormatJob(job, false, false, colorize))
	}
}
