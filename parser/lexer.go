package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"
)

// Rule order matters: the first rule matching at the current offset wins, so
// >> has to come before >. Word swallows adjacent quoted and unquoted runs in
// one match; OpenQuote and Escape only match when a quote or backslash could
// not be closed.
var shellLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\f\v]+`},
	{Name: "Separator", Pattern: `[;\n]`},
	{Name: "Append", Pattern: `>>`},
	{Name: "RedirectOut", Pattern: `>`},
	{Name: "RedirectIn", Pattern: `<`},
	{Name: "Pipe", Pattern: `\|`},
	{Name: "Background", Pattern: `&`},
	{Name: "Word", Pattern: `(?:[^ \t\r\n\f\v;|&<>'"\\]|\\.|'[^']*'|"(?:[^"\\]|\\.)*")+`},
	{Name: "OpenQuote", Pattern: `['"]`},
	{Name: "Escape", Pattern: `\\`},
})

var (
	symbols = shellLexer.Symbols()

	whitespaceType  = symbols["Whitespace"]
	separatorType   = symbols["Separator"]
	appendType      = symbols["Append"]
	redirectOutType = symbols["RedirectOut"]
	redirectInType  = symbols["RedirectIn"]
	pipeType        = symbols["Pipe"]
	backgroundType  = symbols["Background"]
	wordType        = symbols["Word"]
	openQuoteType   = symbols["OpenQuote"]
	escapeType      = symbols["Escape"]
)

// LexError reports malformed input. Pos is a byte offset into the line.
type LexError struct {
	Reason string
	Pos    int
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at position %d: %s", e.Pos, e.Reason)
}

// Tokenize splits a command line into tokens in a single pass. Malformed
// quoting is returned as a *LexError.
func Tokenize(line string) ([]Token, error) {
	lex, err := shellLexer.LexString("", line)
	if err != nil {
		return nil, &LexError{Reason: err.Error()}
	}

	var (
		tokens  []Token
		pending *Token // redirection waiting for its target word
		offset  int
	)
	flush := func() {
		if pending != nil {
			tokens = append(tokens, *pending)
			pending = nil
		}
	}

	for {
		t, err := lex.Next()
		if err != nil {
			return nil, &LexError{Reason: err.Error(), Pos: offset}
		}
		if t.EOF() {
			break
		}
		pos := t.Pos.Offset
		offset = pos + len(t.Value)

		switch t.Type {
		case whitespaceType:
			continue
		case openQuoteType:
			return nil, &LexError{Reason: "unterminated quote " + t.Value, Pos: pos}
		case escapeType:
			return nil, &LexError{Reason: "backslash at end of input", Pos: pos}
		case wordType:
			w := scanWord(t.Value)
			if pending != nil {
				pending.Target = w
				flush()
				continue
			}
			tokens = append(tokens, Token{Kind: KindWord, Word: w, Pos: pos})
		case redirectInType:
			flush()
			pending = &Token{Kind: KindRedirectIn, Pos: pos}
		case redirectOutType, appendType:
			flush()
			pending = &Token{Kind: KindRedirectOut, Append: t.Type == appendType, Pos: pos}
		case pipeType:
			flush()
			tokens = append(tokens, Token{Kind: KindPipe, Pos: pos})
		case backgroundType:
			flush()
			tokens = append(tokens, Token{Kind: KindBackground, Pos: pos})
		case separatorType:
			flush()
			tokens = append(tokens, Token{Kind: KindSeparator, Pos: pos})
		default:
			return nil, &LexError{Reason: fmt.Sprintf("unexpected input %q", t.Value), Pos: pos}
		}
	}
	flush()
	return tokens, nil
}

// scanWord strips quoting from a raw word matched by the Word rule. The rule
// guarantees every quote is closed and every backslash has a follower.
func scanWord(raw string) *Word {
	w := &Word{Raw: raw}
	for i := 0; i < len(raw); {
		switch raw[i] {
		case '\'':
			end := strings.IndexByte(raw[i+1:], '\'')
			w.add(raw[i+1:i+1+end], true)
			i += end + 2
		case '"':
			i = scanDoubleQuoted(w, raw, i+1)
		case '\\':
			_, size := utf8.DecodeRuneInString(raw[i+1:])
			w.add(raw[i+1:i+1+size], true)
			i += 1 + size
		default:
			j := i
			for j < len(raw) && raw[j] != '\'' && raw[j] != '"' && raw[j] != '\\' {
				j++
			}
			w.add(raw[i:j], false)
			i = j
		}
	}
	if len(w.Parts) == 0 {
		w.add("", true)
	}
	return w
}

// scanDoubleQuoted consumes a double-quoted span starting just after the
// opening quote and returns the index after the closing quote. \" \\ and \$
// are escapes; any other backslash is kept as typed.
func scanDoubleQuoted(w *Word, raw string, i int) int {
	start := i
	for i < len(raw) {
		switch raw[i] {
		case '"':
			w.add(raw[start:i], false)
			return i + 1
		case '\\':
			next := raw[i+1]
			if next == '"' || next == '\\' || next == '$' {
				w.add(raw[start:i], false)
				w.add(string(next), true)
				i += 2
				start = i
				continue
			}
			i += 2
		default:
			i++
		}
	}
	return i
}
