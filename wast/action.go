package wast

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/parser"
	"github.com/wasmlab/watfront/internal/token"
)

// runAction evaluates one "(invoke ...)" or "(get ...)" form at the
// cursor against the compiled artifact, relinking first if the
// environment is dirty.
func (r *Runner) runAction(ctx context.Context) (engine.Value, error) {
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return engine.Value{}, err
	}
	kw, err := r.expect(token.Ident, errors.ErrWatExpectedToken)
	if err != nil {
		return engine.Value{}, err
	}

	modIdx := r.last
	if t := r.peek(); t != nil && t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
		r.next()
		i, ok := r.byName[strings.TrimPrefix(t.Value, "$")]
		if !ok {
			return engine.Value{}, errors.At(errors.ErrParseInvalidName, t.Line, "%s", t.Value)
		}
		modIdx = i
	}
	if modIdx < 0 {
		return engine.Value{}, errors.At(errors.ErrFatalInvalidModule, kw.Line, "no module in scope")
	}

	fieldTok, err := r.expect(token.String, errors.ErrWatExpectedString)
	if err != nil {
		return engine.Value{}, err
	}
	field, err := parser.DecodeString(fieldTok.Value, fieldTok.Line)
	if err != nil {
		return engine.Value{}, err
	}

	switch kw.Value {
	case "invoke":
		var args []engine.Value
		for {
			t := r.peek()
			if t == nil || t.Type != token.LParen {
				break
			}
			p := parser.New(r.tokens)
			p.SetPos(r.pos)
			vt, bits, err := p.ParseConst()
			if err != nil {
				return engine.Value{}, err
			}
			r.pos = p.Pos()
			args = append(args, engine.Value{Type: vt, Bits: bits})
		}
		if _, err := r.expect(token.RParen, errors.ErrWatExpectedClose); err != nil {
			return engine.Value{}, err
		}
		if err := r.ensureCompiled(ctx); err != nil {
			return engine.Value{}, err
		}
		r.log.Debug("invoke",
			zap.String("symbol", engine.Mangle(r.mods[modIdx].instanceName(), string(field))),
			zap.Int("args", len(args)))
		return r.eng.Invoke(ctx, r.instances[modIdx], string(field), args)

	case "get":
		if _, err := r.expect(token.RParen, errors.ErrWatExpectedClose); err != nil {
			return engine.Value{}, err
		}
		if err := r.ensureCompiled(ctx); err != nil {
			return engine.Value{}, err
		}
		return r.eng.ReadGlobal(r.instances[modIdx], string(field))

	default:
		return engine.Value{}, errors.At(errors.ErrWatExpectedToken, kw.Line, "expected invoke or get, got %q", kw.Value)
	}
}
