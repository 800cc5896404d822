package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/jobshrc.yaml
var defaultConfigData []byte

const ConfigurationName = "jobshrc.yaml"

type Configuration struct {
	Prompt  string            `json:"prompt"`
	Color   string            `json:"color" validate:"oneof=auto always never"`
	History History           `json:"history"`
	Env     map[string]string `json:"env" validate:"dive,keys,required,endkeys"`
	Log     Log               `json:"log"`
}

type History struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

type Log struct {
	Level string `json:"level" validate:"oneof=debug info warn error"`
	File  string `json:"file"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// DefaultPath is $HOME/.config/jobsh/jobshrc.yaml.
func DefaultPath(home string) string {
	return filepath.Join(home, ".config", "jobsh", ConfigurationName)
}

// Load reads the configuration at path on fs over the defaults. A missing
// file yields the defaults.
func Load(fs afero.Fs, path string) (*Configuration, error) {
	out := Default()

	contents, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		return out, nil
	case err != nil:
		return nil, err
	}

	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// HistoryPath returns the history database path with a leading ~ replaced
// by home.
func (c *Configuration) HistoryPath(home string) string {
	return expandHome(c.History.Path, home)
}

// SlogLevel maps log.level to a slog level.
func (c *Configuration) SlogLevel() slog.Level {
	return ParseLevel(c.Log.Level)
}

// ParseLevel maps debug, info, warn or error to a slog level; anything else
// is warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// OpenLog opens log.file in an append only state.
func (c *Configuration) OpenLog(fs afero.Fs, home string) (afero.File, error) {
	path := expandHome(c.Log.File, home)
	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ColorEnabled resolves the color mode against whether output is a terminal.
func (c *Configuration) ColorEnabled(isTerminal bool) bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal
	}
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
