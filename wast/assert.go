package wast

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/parser"
	"github.com/wasmlab/watfront/internal/token"
)

// valueEqual compares a dispatch result to an expected constant.
// Integers compare on their signed interpretation, floats on the exact
// bit pattern, so -0 differs from +0 and a NaN matches only a NaN with
// the identical bits.
func valueEqual(got engine.Value, wantType ast.ValType, wantBits uint64) bool {
	if got.Type != wantType {
		return false
	}
	switch wantType {
	case ast.ValTypeI32, ast.ValTypeF32:
		return uint32(got.Bits) == uint32(wantBits)
	default:
		return got.Bits == wantBits
	}
}

func (r *Runner) assertReturn(ctx context.Context) error {
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return err
	}
	r.next() // assert_return

	got, err := r.runAction(ctx)
	if err != nil {
		return err
	}

	if t := r.peek(); t != nil && t.Type == token.LParen {
		p := parser.New(r.tokens)
		p.SetPos(r.pos)
		wantType, wantBits, err := p.ParseConst()
		if err != nil {
			return err
		}
		r.pos = p.Pos()
		if !valueEqual(got, wantType, wantBits) {
			return errors.New(errors.ErrRuntimeAssertFailure,
				"got %s %#x, want %s %#x", got.Type, got.Bits, wantType, wantBits)
		}
	}

	_, err = r.expect(token.RParen, errors.ErrWatExpectedClose)
	return err
}

func isCanonicalNaN32(bits uint32) bool {
	return bits&0x7FFF_FFFF == 0x7FC0_0000
}

func isArithmeticNaN32(bits uint32) bool {
	return bits&0x7FC0_0000 == 0x7FC0_0000
}

func isCanonicalNaN64(bits uint64) bool {
	return bits&0x7FFF_FFFF_FFFF_FFFF == 0x7FF8_0000_0000_0000
}

func isArithmeticNaN64(bits uint64) bool {
	return bits&0x7FF8_0000_0000_0000 == 0x7FF8_0000_0000_0000
}

func (r *Runner) assertReturnNaN(ctx context.Context, canonical bool) error {
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return err
	}
	r.next() // assert_return_*_nan

	got, err := r.runAction(ctx)
	if err != nil {
		return err
	}

	ok := false
	switch got.Type {
	case ast.ValTypeF32:
		if canonical {
			ok = isCanonicalNaN32(uint32(got.Bits))
		} else {
			ok = isArithmeticNaN32(uint32(got.Bits))
		}
	case ast.ValTypeF64:
		if canonical {
			ok = isCanonicalNaN64(got.Bits)
		} else {
			ok = isArithmeticNaN64(got.Bits)
		}
	}
	if !ok {
		return errors.New(errors.ErrRuntimeAssertFailure, "got %s %#x, want NaN", got.Type, got.Bits)
	}

	_, err = r.expect(token.RParen, errors.ErrWatExpectedClose)
	return err
}

// assertTrap covers both shapes: a module whose start function must trap
// at load, and an action that must trap at dispatch.
func (r *Runner) assertTrap(ctx context.Context) error {
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return err
	}
	r.next() // assert_trap

	var verdict error
	if kw := r.peekAt(1); kw != nil && kw.Type == token.Ident && kw.Value == "module" {
		sm, err := r.parseScriptModule(r.pos)
		if err != nil {
			return err
		}
		if err := r.addModule(sm, 0); err != nil {
			return err
		}
		compileErr := r.ensureCompiled(ctx)
		// The module stays out of the environment either way: a trapping
		// start function would poison every later relink.
		r.dropLastModule()
		if !errors.HasCode(compileErr, errors.ErrRuntimeTrap) {
			verdict = errors.New(errors.ErrRuntimeAssertFailure, "module loaded without trapping")
		}
	} else {
		_, actionErr := r.runAction(ctx)
		if !errors.HasCode(actionErr, errors.ErrRuntimeTrap) {
			verdict = errors.New(errors.ErrRuntimeAssertFailure, "action did not trap")
		}
	}
	if verdict != nil {
		return verdict
	}

	return r.finishAssert()
}

// finishAssert consumes the optional failure-message string, which is
// recorded but never matched, and the directive's close.
func (r *Runner) finishAssert() error {
	if t := r.peek(); t != nil && t.Type == token.String {
		r.next()
		r.log.Debug("expected failure", zap.String("message", t.Value))
	}
	_, err := r.expect(token.RParen, errors.ErrWatExpectedClose)
	return err
}

type moduleCheck func(r *Runner, ctx context.Context, sm *scriptModule, parseErr error) error

// checkMalformed passes when the module fails to parse: text modules at
// the WAT parser, binary modules at the engine's decoder.
func checkMalformed(r *Runner, ctx context.Context, sm *scriptModule, parseErr error) error {
	if parseErr != nil {
		return nil
	}
	if sm.isBinary {
		if r.eng.Validate(ctx, sm.bin) != nil {
			return nil
		}
	}
	return errors.New(errors.ErrRuntimeAssertFailure, "module parsed successfully")
}

// checkInvalid passes when parsing succeeds but validation rejects the
// module.
func checkInvalid(r *Runner, ctx context.Context, sm *scriptModule, parseErr error) error {
	if parseErr != nil {
		return errors.Wrap(errors.ErrRuntimeAssertFailure, parseErr, "module is malformed, not invalid")
	}
	if r.eng.Validate(ctx, sm.bin) != nil {
		return nil
	}
	return errors.New(errors.ErrRuntimeAssertFailure, "module validated successfully")
}

// checkUnlinkable passes when validation succeeds but linking against the
// current environment fails.
func checkUnlinkable(r *Runner, ctx context.Context, sm *scriptModule, parseErr error) error {
	if parseErr != nil {
		return errors.Wrap(errors.ErrRuntimeAssertFailure, parseErr, "module is malformed, not unlinkable")
	}
	if err := r.eng.Validate(ctx, sm.bin); err != nil {
		return errors.Wrap(errors.ErrRuntimeAssertFailure, err, "module is invalid, not unlinkable")
	}
	if r.eng.LinkProbe(ctx, r.envUnits(), sm.bin) != nil {
		return nil
	}
	return errors.New(errors.ErrRuntimeAssertFailure, "module linked successfully")
}

// assertModuleFails runs assert_malformed / assert_invalid /
// assert_unlinkable: the inner module is parsed into scratch space, never
// added to the environment, and judged by the supplied check.
func (r *Runner) assertModuleFails(ctx context.Context, check moduleCheck) error {
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return err
	}
	r.next() // assert_* keyword

	start := r.pos
	sm, parseErr := r.parseScriptModule(start)
	if err := check(r, ctx, sm, parseErr); err != nil {
		return err
	}

	// A failed parse leaves the cursor wherever it died; resync to the
	// end of the module form.
	if err := r.skipForm(start); err != nil {
		return err
	}
	return r.finishAssert()
}
