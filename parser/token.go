package parser

import "strings"

// Kind identifies the variant of a Token.
type Kind int

const (
	KindWord Kind = iota
	KindPipe
	KindBackground
	KindRedirectIn
	KindRedirectOut
	KindSeparator
)

func (k Kind) String() string {
	switch k {
	case KindWord:
		return "Word"
	case KindPipe:
		return "Pipe"
	case KindBackground:
		return "Background"
	case KindRedirectIn:
		return "RedirectIn"
	case KindRedirectOut:
		return "RedirectOut"
	case KindSeparator:
		return "Separator"
	}
	return "Unknown"
}

// Token is one lexical element of a command line.
//
// Word is set for KindWord. Target is the path word of a redirection and is
// nil when the operator was not followed by a word. Append distinguishes >>
// from >.
type Token struct {
	Kind   Kind
	Word   *Word
	Target *Word
	Append bool
	Pos    int
}

// WordPart is a run of characters inside a word that shares one quoting
// context. Literal parts came from single quotes or backslash escapes and
// are never expanded.
type WordPart struct {
	Text    string
	Literal bool
}

// Word is a shell word with its quoting preserved for the expander.
type Word struct {
	Raw   string
	Parts []WordPart
}

// NewWord builds an unquoted word, as if typed without any quoting.
func NewWord(text string) *Word {
	return &Word{Raw: text, Parts: []WordPart{{Text: text}}}
}

// String returns the word with quotes removed and no expansion applied.
func (w *Word) String() string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range w.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// add appends a part. Parts are not merged across quoting boundaries so the
// expander sees where a variable name ends.
func (w *Word) add(text string, literal bool) {
	if text == "" && len(w.Parts) > 0 {
		return
	}
	w.Parts = append(w.Parts, WordPart{Text: text, Literal: literal})
}

// WordToken, PipeToken and friends build tokens by hand, mostly for callers
// that assemble a command graph without going through Tokenize.
func WordToken(text string) Token {
	return Token{Kind: KindWord, Word: NewWord(text)}
}

func PipeToken() Token { return Token{Kind: KindPipe} }

func BackgroundToken() Token { return Token{Kind: KindBackground} }

func SeparatorToken() Token { return Token{Kind: KindSeparator} }

func RedirectInToken(path string) Token {
	return Token{Kind: KindRedirectIn, Target: NewWord(path)}
}

func RedirectOutToken(path string, appendMode bool) Token {
	return Token{Kind: KindRedirectOut, Target: NewWord(path), Append: appendMode}
}
