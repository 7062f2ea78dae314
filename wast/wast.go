package wast

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/token"
)

// Runner evaluates a WAT script: a sequence of top-level directives over
// an environment of modules and a lazily compiled artifact. Any directive
// that adds or renames a module marks the artifact dirty; the next action
// relinks everything through the engine.
type Runner struct {
	eng *engine.Engine
	log *zap.Logger

	tokens []token.Token
	pos    int

	mods       []*scriptModule
	instances  []*engine.Instance
	byName     map[string]int
	registered map[string]int
	last       int
	dirty      bool
}

type scriptModule struct {
	name     string // module's own name, without '$'
	regName  string // alias from (register ...), wins for linking
	bin      []byte
	isBinary bool // came from (module binary ...): undecoded until the engine sees it
}

func (m *scriptModule) instanceName() string {
	if m.regName != "" {
		return m.regName
	}
	return m.name
}

// Summary counts what a run processed.
type Summary struct {
	Directives int
	Asserts    int
	Modules    int
}

func New(eng *engine.Engine, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		eng:        eng,
		log:        log,
		byName:     make(map[string]int),
		registered: make(map[string]int),
		last:       -1,
	}
}

// Run evaluates every directive in source, stopping at the first
// unexpected failure.
func (r *Runner) Run(ctx context.Context, source string) (Summary, error) {
	r.tokens = token.Tokenize(source)
	r.pos = 0
	var sum Summary

	for r.pos < len(r.tokens) {
		t := r.peek()
		if t.Type != token.LParen {
			return sum, errors.At(errors.ErrWatExpectedOpen, t.Line, "got %q", t.Value)
		}
		kw := r.peekAt(1)
		if kw == nil || kw.Type != token.Ident {
			return sum, errors.At(errors.ErrWatExpectedToken, t.Line, "directive")
		}

		r.log.Debug("directive", zap.String("keyword", kw.Value), zap.Int("line", kw.Line))

		var err error
		switch kw.Value {
		case "module":
			sm, perr := r.parseScriptModule(r.pos)
			if perr != nil {
				return sum, perr
			}
			err = r.addModule(sm, kw.Line)
			sum.Modules++

		case "register":
			err = r.runRegister()

		case "invoke", "get":
			_, err = r.runAction(ctx)

		case "assert_return":
			err = r.assertReturn(ctx)
			sum.Asserts++

		case "assert_return_canonical_nan":
			err = r.assertReturnNaN(ctx, true)
			sum.Asserts++

		case "assert_return_arithmetic_nan":
			err = r.assertReturnNaN(ctx, false)
			sum.Asserts++

		case "assert_trap":
			err = r.assertTrap(ctx)
			sum.Asserts++

		case "assert_malformed":
			err = r.assertModuleFails(ctx, checkMalformed)
			sum.Asserts++

		case "assert_invalid":
			err = r.assertModuleFails(ctx, checkInvalid)
			sum.Asserts++

		case "assert_unlinkable":
			err = r.assertModuleFails(ctx, checkUnlinkable)
			sum.Asserts++

		case "assert_exhaustion":
			err = errors.At(errors.ErrRuntimeUnsupported, kw.Line, "assert_exhaustion")

		case "script", "input", "output":
			err = r.skipForm(r.pos)

		default:
			err = errors.At(errors.ErrWatExpectedToken, kw.Line, "unknown directive %q", kw.Value)
		}

		if err != nil {
			r.log.Warn("directive failed", zap.String("keyword", kw.Value), zap.Int("line", kw.Line), zap.Error(err))
			return sum, err
		}
		sum.Directives++
	}

	return sum, nil
}

func (r *Runner) peek() *token.Token {
	if r.pos >= len(r.tokens) {
		return nil
	}
	return &r.tokens[r.pos]
}

func (r *Runner) peekAt(offset int) *token.Token {
	if r.pos+offset >= len(r.tokens) {
		return nil
	}
	return &r.tokens[r.pos+offset]
}

func (r *Runner) next() *token.Token {
	if r.pos >= len(r.tokens) {
		return nil
	}
	t := &r.tokens[r.pos]
	r.pos++
	return t
}

func (r *Runner) expect(typ token.Type, code errors.Code) (*token.Token, error) {
	t := r.next()
	if t == nil {
		return nil, errors.New(errors.ErrParseUnexpectedEOF, "%v", typ)
	}
	if t.Type != typ {
		return nil, errors.At(code, t.Line, "got %q", t.Value)
	}
	return t, nil
}

// skipForm consumes the balanced form starting at the '(' at start and
// leaves the cursor just past its close.
func (r *Runner) skipForm(start int) error {
	r.pos = start
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		t := r.next()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "unbalanced '('")
		}
		switch t.Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		}
	}
	return nil
}
