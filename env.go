package jobsh

import (
	"errors"
	"sort"
	"strings"
)

var ErrEmptyName = errors.New("variable name must not be empty")

// Environment is the shell's variable table. Every variable is exported to
// spawned processes. It is owned by one Shell and is not safe for concurrent
// use.
type Environment struct {
	vars map[string]string
}

func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]string)}
}

// EnvironmentFrom builds an Environment from KEY=VALUE entries such as
// os.Environ(). Entries without '=' or with an empty key are skipped.
func EnvironmentFrom(environ []string) *Environment {
	env := NewEnvironment()
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env.vars[name] = value
	}
	return env
}

// Get returns the value of name and whether it is set.
func (e *Environment) Get(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Value returns the value of name, or "" when unset.
func (e *Environment) Value(name string) string {
	return e.vars[name]
}

// Set assigns name. The last assignment wins.
func (e *Environment) Set(name, value string) error {
	if name == "" {
		return ErrEmptyName
	}
	e.vars[name] = value
	return nil
}

func (e *Environment) Unset(name string) {
	delete(e.vars, name)
}

func (e *Environment) Len() int {
	return len(e.vars)
}

// Names returns the variable names in sorted order.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Environ returns KEY=VALUE entries sorted by key, ready for exec.Cmd.Env.
func (e *Environment) Environ() []string {
	names := e.Names()
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = name + "=" + e.vars[name]
	}
	return out
}

// Params holds the special parameters $?, $$ and $!.
type Params struct {
	LastStatus        int
	ShellPID          int
	LastBackgroundPID int
}
