package jobsh

import (
	"path/filepath"
	"testing"
)

func TestPrompt(t *testing.T) {
	procs := newFakeProcs()
	sh := newTestShell(t, procs.options())
	home := sh.Env.Value("HOME")
	sh.Dir = filepath.Join(home, "src")
	sh.Env.Set("USER", "ada")
	sh.Params.LastStatus = 3
	sh.Jobs.Register("sleep 9 &", 10, []int{10}, true)

	tests := []struct {
		format string
		want   string
	}{
		{"%u> ", "ada> "},
		{"%W", "~/src"},
		{"%w", sh.Dir},
		{"[%?] %j", "[3] 1"},
		{"100%%", "100%"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := sh.Prompt(tt.format); got != tt.want {
			t.Errorf("Prompt(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}

	sh.Dir = home
	if got := sh.Prompt("%W"); got != "~" {
		t.Errorf("home dir shortened to %q", got)
	}
	sh.Dir = home + "other"
	if got := sh.Prompt("%W"); got != home+"other" {
		t.Errorf("sibling of home shortened to %q", got)
	}
}
