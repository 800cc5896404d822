package jobsh

import (
	"fmt"
	"strconv"
	"strings"

	"jobsh/parser"
)

// ExpandError reports a substitution the expander cannot perform. Unset
// variables are not errors; they expand to "".
type ExpandError struct {
	Word   string
	Reason string
}

func (e *ExpandError) Error() string {
	return fmt.Sprintf("%s: bad substitution: %s", e.Word, e.Reason)
}

// ExpandedRedirect is a redirection whose target has been expanded.
type ExpandedRedirect struct {
	Path   string
	Append bool
}

// ExpandedStage is a stage with every word resolved to its final string.
type ExpandedStage struct {
	Name   string
	Args   []string
	Input  *ExpandedRedirect
	Output *ExpandedRedirect
}

// Argv returns the program name followed by its arguments.
func (s *ExpandedStage) Argv() []string {
	return append([]string{s.Name}, s.Args...)
}

// Expander resolves $NAME, ${NAME}, $?, $$ and $! references. It only reads
// the environment.
type Expander struct {
	env    *Environment
	params *Params
}

// NewExpander returns an expander over env. params may be nil, in which case
// the special parameters expand to "".
func NewExpander(env *Environment, params *Params) *Expander {
	return &Expander{env: env, params: params}
}

// Expand resolves a stage against env without special parameters.
func Expand(stage *parser.Stage, env *Environment) (*ExpandedStage, error) {
	return NewExpander(env, nil).Expand(stage)
}

// Expand resolves every word of stage left to right.
func (x *Expander) Expand(stage *parser.Stage) (*ExpandedStage, error) {
	name, err := x.ExpandWord(stage.Name)
	if err != nil {
		return nil, err
	}
	out := &ExpandedStage{Name: name, Args: make([]string, 0, len(stage.Args))}
	for _, arg := range stage.Args {
		s, err := x.ExpandWord(arg)
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, s)
	}
	if out.Input, err = x.expandRedirect(stage.Input); err != nil {
		return nil, err
	}
	if out.Output, err = x.expandRedirect(stage.Output); err != nil {
		return nil, err
	}
	return out, nil
}

func (x *Expander) expandRedirect(r *parser.Redirect) (*ExpandedRedirect, error) {
	if r == nil {
		return nil, nil
	}
	path, err := x.ExpandWord(r.Target)
	if err != nil {
		return nil, err
	}
	return &ExpandedRedirect{Path: path, Append: r.Append}, nil
}

// ExpandWord expands one word. Literal parts are copied unchanged.
func (x *Expander) ExpandWord(w *parser.Word) (string, error) {
	if w == nil {
		return "", nil
	}
	var b strings.Builder
	for i, part := range w.Parts {
		if part.Literal {
			b.WriteString(part.Text)
			continue
		}
		text := part.Text
		if i == 0 && strings.HasPrefix(w.Raw, "~") {
			text = x.expandTilde(text)
		}
		if err := x.expandText(&b, text, w.Raw); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (x *Expander) expandTilde(text string) string {
	if text != "~" && !strings.HasPrefix(text, "~/") {
		return text
	}
	home, ok := x.env.Get("HOME")
	if !ok {
		return text
	}
	return home + text[1:]
}

func (x *Expander) expandText(b *strings.Builder, s, raw string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '`' {
			return &ExpandError{Word: raw, Reason: "command substitution is not supported"}
		}
		if c != '$' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}

		next := s[i+1]
		switch {
		case next == '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return &ExpandError{Word: raw, Reason: "missing closing }"}
			}
			name := s[i+2 : i+2+end]
			if !isName(name) && !isSpecial(name) {
				return &ExpandError{Word: raw, Reason: fmt.Sprintf("invalid name %q", name)}
			}
			b.WriteString(x.lookup(name))
			i += end + 2
		case next == '(':
			return &ExpandError{Word: raw, Reason: "command substitution is not supported"}
		case isSpecial(string(next)):
			b.WriteString(x.lookup(string(next)))
			i++
		case isNameStart(next):
			j := i + 1
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			b.WriteString(x.lookup(s[i+1 : j]))
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return nil
}

func (x *Expander) lookup(name string) string {
	if isSpecial(name) {
		if x.params == nil {
			return ""
		}
		switch name {
		case "?":
			return strconv.Itoa(x.params.LastStatus)
		case "$":
			return strconv.Itoa(x.params.ShellPID)
		case "!":
			if x.params.LastBackgroundPID == 0 {
				return ""
			}
			return strconv.Itoa(x.params.LastBackgroundPID)
		}
	}
	return x.env.Value(name)
}

func isSpecial(name string) bool {
	return name == "?" || name == "$" || name == "!"
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func isName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameChar(name[i]) {
			return false
		}
	}
	return true
}
