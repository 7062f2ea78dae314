package parser

import (
	"strings"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/token"
)

// Parser resolves a token stream into an ast.Module. The cursor is settable
// so the module walk can revisit the same token range once per pass.
type Parser struct {
	mod    *ast.Module
	tokens []token.Token
	pos    int

	types   *symbols
	funcs   *symbols
	tables  *symbols
	mems    *symbols
	globals *symbols

	labels labelStack

	// blockDepth counts open block/loop/if forms in the body being
	// parsed; a flat 'end' outside any of them is malformed.
	blockDepth int

	// code is the instruction buffer of the function body being parsed;
	// emit appends to it so deferred references can record stable offsets.
	code []ast.Instr

	defers       []deferredRef
	pendingElems []pendingElem

	funcIdx   uint32
	tableIdx  uint32
	memIdx    uint32
	globalIdx uint32

	// defined[kind] flips when the first non-import definition of that
	// kind appears; imports arriving later violate the section ordering.
	defined [4]bool
}

func New(tokens []token.Token) *Parser {
	return &Parser{
		tokens:  tokens,
		types:   newSymbols("type"),
		funcs:   newSymbols("func"),
		tables:  newSymbols("table"),
		mems:    newSymbols("memory"),
		globals: newSymbols("global"),
	}
}

// Pos returns the cursor so callers interleaving module parses with other
// directives (the script driver) can track consumption.
func (p *Parser) Pos() int { return p.pos }

// SetPos rewinds or advances the cursor.
func (p *Parser) SetPos(pos int) { p.pos = pos }

func (p *Parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peek2() *token.Token {
	if p.pos+1 >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos+1]
}

func (p *Parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

// line reports the source line at the cursor, for error positions.
func (p *Parser) line() int {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos].Line
	}
	if n := len(p.tokens); n > 0 {
		return p.tokens[n-1].Line
	}
	return 0
}

func (p *Parser) expect(typ token.Type, code errors.Code) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, errors.New(errors.ErrParseUnexpectedEOF, "%v", typ)
	}
	if t.Type != typ {
		return nil, errors.At(code, t.Line, "got %q", t.Value)
	}
	return t, nil
}

func (p *Parser) expectOpen() error {
	_, err := p.expect(token.LParen, errors.ErrWatExpectedOpen)
	return err
}

func (p *Parser) expectClose() error {
	_, err := p.expect(token.RParen, errors.ErrWatExpectedClose)
	return err
}

func (p *Parser) expectKeyword(word string, code errors.Code) error {
	t, err := p.expect(token.Ident, code)
	if err != nil {
		return err
	}
	if t.Value != word {
		return errors.At(code, t.Line, "got %q", t.Value)
	}
	return nil
}

func isName(t *token.Token) bool {
	return t != nil && t.Type == token.Ident && strings.HasPrefix(t.Value, "$")
}

func isIndex(t *token.Token) bool {
	return t != nil && (t.Type == token.Number || isName(t))
}

// symbols is one namespace's name-to-index mapping. Insertion of a name
// already present fails; that is the only duplicate detection the text
// format requires.
type symbols struct {
	m    map[string]uint32
	what string
}

func newSymbols(what string) *symbols {
	return &symbols{m: make(map[string]uint32), what: what}
}

func (s *symbols) insert(name string, line int, idx uint32) error {
	if _, dup := s.m[name]; dup {
		return errors.At(errors.ErrWatDuplicateName, line, "%s %s", s.what, name)
	}
	s.m[name] = idx
	return nil
}

func (s *symbols) lookup(name string) (uint32, bool) {
	idx, ok := s.m[name]
	return idx, ok
}

// parseIdx reads an index: a numeric token passes through verbatim, a
// $-name resolves against the namespace.
func (p *Parser) parseIdx(ns *symbols) (uint32, error) {
	t := p.peek()
	if t == nil {
		return 0, errors.New(errors.ErrWatExpectedVar, "%s index", ns.what)
	}
	if isName(t) {
		p.next()
		if idx, ok := ns.lookup(t.Value); ok {
			return idx, nil
		}
		return 0, errors.At(errors.ErrWatInvalidVar, t.Line, "%s %s", ns.what, t.Value)
	}
	if t.Type != token.Number {
		return 0, errors.At(errors.ErrWatExpectedVar, t.Line, "got %q", t.Value)
	}
	return p.parseU32()
}

// labelStack is the ordered stack of branch targets. Anonymous entries
// count toward depth but match only numeric references; the innermost
// binding of a name wins.
type labelStack struct {
	names []string
}

func (l *labelStack) push(name string) {
	l.names = append(l.names, name)
}

func (l *labelStack) pop() {
	if n := len(l.names); n > 0 {
		l.names = l.names[:n-1]
	}
}

func (l *labelStack) depth(name string) (uint32, bool) {
	for i := len(l.names) - 1; i >= 0; i-- {
		if l.names[i] != "" && l.names[i] == name {
			return uint32(len(l.names) - 1 - i), true
		}
	}
	return 0, false
}

func (l *labelStack) top() string {
	if n := len(l.names); n > 0 {
		return l.names[n-1]
	}
	return ""
}

func (l *labelStack) height() int { return len(l.names) }

func (p *Parser) parseValType() (ast.ValType, error) {
	t, err := p.expect(token.Ident, errors.ErrWatExpectedValType)
	if err != nil {
		return 0, err
	}
	switch t.Value {
	case "i32":
		return ast.ValTypeI32, nil
	case "i64":
		return ast.ValTypeI64, nil
	case "f32":
		return ast.ValTypeF32, nil
	case "f64":
		return ast.ValTypeF64, nil
	default:
		return 0, errors.At(errors.ErrWatExpectedValType, t.Line, "got %q", t.Value)
	}
}

// findOrAddType returns the index of a structurally equal signature,
// appending a fresh entry when none exists.
func (p *Parser) findOrAddType(ft ast.FuncType) uint32 {
	for i, t := range p.mod.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(p.mod.Types))
	p.mod.Types = append(p.mod.Types, ft)
	return idx
}

// emit appends one instruction to the current function body and returns
// its offset.
func (p *Parser) emit(ins ast.Instr) int {
	p.code = append(p.code, ins)
	return len(p.code) - 1
}
