package parser

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyStage          = errors.New("pipeline stage has no command")
	ErrDanglingRedirect    = errors.New("redirection has no target")
	ErrMisplacedBackground = errors.New("& may only end a pipeline")
)

// ParseError wraps one of the Err* sentinels with the byte offset of the
// offending token.
type ParseError struct {
	Err error
	Pos int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %v", e.Pos, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Redirect is an input or output redirection attached to a stage.
type Redirect struct {
	Target *Word
	Append bool
}

// Stage is one program invocation within a pipeline. Words may still hold
// unexpanded variable references.
type Stage struct {
	Name   *Word
	Args   []*Word
	Input  *Redirect
	Output *Redirect
}

func (s *Stage) empty() bool {
	return s.Name == nil && s.Input == nil && s.Output == nil
}

// JobSpec is a parsed pipeline plus its background flag.
type JobSpec struct {
	Stages     []*Stage
	Background bool
}

type parser struct {
	specs   []*JobSpec
	spec    *JobSpec
	stage   *Stage
	closed  bool // & seen; only a separator may follow
	pipePos int
}

// Parse groups tokens into job specs, one per separator-delimited pipeline.
// Empty segments (";;", a trailing ";") are dropped.
func Parse(tokens []Token) ([]*JobSpec, error) {
	p := &parser{}
	p.reset()

	end := 0
	for _, tok := range tokens {
		if err := p.feed(tok); err != nil {
			return nil, err
		}
		end = tok.Pos
	}
	if err := p.finish(end); err != nil {
		return nil, err
	}
	return p.specs, nil
}

func (p *parser) reset() {
	p.spec = &JobSpec{}
	p.stage = &Stage{}
	p.closed = false
}

func (p *parser) feed(tok Token) error {
	if p.closed && tok.Kind != KindSeparator {
		return &ParseError{Err: ErrMisplacedBackground, Pos: tok.Pos}
	}

	switch tok.Kind {
	case KindWord:
		if p.stage.Name == nil {
			p.stage.Name = tok.Word
		} else {
			p.stage.Args = append(p.stage.Args, tok.Word)
		}
	case KindRedirectIn, KindRedirectOut:
		if tok.Target == nil {
			return &ParseError{Err: ErrDanglingRedirect, Pos: tok.Pos}
		}
		r := &Redirect{Target: tok.Target, Append: tok.Append}
		if tok.Kind == KindRedirectIn {
			p.stage.Input = r
		} else {
			p.stage.Output = r
		}
	case KindPipe:
		if p.stage.Name == nil {
			return &ParseError{Err: ErrEmptyStage, Pos: tok.Pos}
		}
		p.spec.Stages = append(p.spec.Stages, p.stage)
		p.stage = &Stage{}
		p.pipePos = tok.Pos
	case KindBackground:
		if p.stage.Name == nil {
			if len(p.spec.Stages) > 0 || !p.stage.empty() {
				return &ParseError{Err: ErrEmptyStage, Pos: tok.Pos}
			}
			return &ParseError{Err: ErrMisplacedBackground, Pos: tok.Pos}
		}
		p.closed = true
	case KindSeparator:
		return p.finish(tok.Pos)
	}
	return nil
}

// finish closes the pipeline under construction.
func (p *parser) finish(pos int) error {
	if p.stage.Name == nil {
		switch {
		case len(p.spec.Stages) > 0:
			return &ParseError{Err: ErrEmptyStage, Pos: p.pipePos}
		case !p.stage.empty():
			return &ParseError{Err: ErrEmptyStage, Pos: pos}
		}
		p.reset()
		return nil
	}

	p.spec.Stages = append(p.spec.Stages, p.stage)
	p.spec.Background = p.closed
	p.specs = append(p.specs, p.spec)
	p.reset()
	return nil
}

// ParseLine tokenizes and parses a line in one step.
func ParseLine(line string) ([]*JobSpec, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}
