package config

import (
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "%u@%h:%W%$ ", cfg.Prompt)
	assert.Equal(t, "auto", cfg.Color)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	assert.Equal(t, "/home/ada/.jobsh_history.db", cfg.HistoryPath("/home/ada"))
}

func TestLoad(t *testing.T) {
	cases := map[string]struct {
		contents string
		check    func(t *testing.T, cfg *Configuration)
		wantErr  string
	}{
		"overrides keep defaults": {
			contents: "prompt: '$ '\nenv:\n  EDITOR: vi\n",
			check: func(t *testing.T, cfg *Configuration) {
				assert.Equal(t, "$ ", cfg.Prompt)
				assert.Equal(t, map[string]string{"EDITOR": "vi"}, cfg.Env)
				assert.Equal(t, "auto", cfg.Color)
				assert.True(t, cfg.History.Enabled)
			},
		},
		"history disabled": {
			contents: "history:\n  enabled: false\n  path: ''\n",
			check: func(t *testing.T, cfg *Configuration) {
				assert.False(t, cfg.History.Enabled)
			},
		},
		"log level": {
			contents: "log:\n  level: debug\n  file: /tmp/jobsh.log\n",
			check: func(t *testing.T, cfg *Configuration) {
				assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
				assert.Equal(t, "/tmp/jobsh.log", cfg.Log.File)
			},
		},
		"unknown key": {
			contents: "promt: '$ '\n",
			wantErr:  "promt",
		},
		"bad color": {
			contents: "color: sometimes\n",
			wantErr:  "color",
		},
		"bad level": {
			contents: "log:\n  level: loud\n",
			wantErr:  "level",
		},
		"history path required": {
			contents: "history:\n  enabled: true\n  path: ''\n",
			wantErr:  "path",
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/etc/jobshrc.yaml", []byte(tc.contents), 0644))

			cfg, err := Load(fs, "/etc/jobshrc.yaml")
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "/nope/jobshrc.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestColorEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.ColorEnabled(true))
	assert.False(t, cfg.ColorEnabled(false))

	cfg.Color = "always"
	assert.True(t, cfg.ColorEnabled(false))

	cfg.Color = "never"
	assert.False(t, cfg.ColorEnabled(true))
}

func TestOpenLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	cfg.Log.File = "~/logs/jobsh.log"

	f, err := cfg.OpenLog(fs, "/home/ada")
	require.NoError(t, err)
	_, err = f.WriteString("one\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = cfg.OpenLog(fs, "/home/ada")
	require.NoError(t, err)
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := afero.ReadFile(fs, "/home/ada/logs/jobsh.log")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(got))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(""))
}
