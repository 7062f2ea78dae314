package wast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/errors"
)

func runScript(t *testing.T, source string) (Summary, error) {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(ctx) })
	return New(eng, nil).Run(ctx, source)
}

func TestAssertReturn(t *testing.T) {
	sum, err := runScript(t, `
		(module
			(func (export "add") (param i32 i32) (result i32)
				local.get 0
				local.get 1
				i32.add))
		(assert_return (invoke "add" (i32.const 1) (i32.const 2)) (i32.const 3))
		(assert_return (invoke "add" (i32.const -1) (i32.const 1)) (i32.const 0))`)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Directives)
	require.Equal(t, 2, sum.Asserts)
	require.Equal(t, 1, sum.Modules)
}

func TestAssertReturnFailure(t *testing.T) {
	_, err := runScript(t, `
		(module (func (export "two") (result i32) (i32.const 2)))
		(assert_return (invoke "two") (i32.const 3))`)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeAssertFailure), "got %v", err)
}

func TestFloatBitExactComparison(t *testing.T) {
	// -0 and +0 compare equal as floats but differ bit-wise; the driver
	// must distinguish them.
	_, err := runScript(t, `
		(module (func (export "negzero") (result f64) (f64.const -0)))
		(assert_return (invoke "negzero") (f64.const -0))`)
	require.NoError(t, err)

	_, err = runScript(t, `
		(module (func (export "negzero") (result f64) (f64.const -0)))
		(assert_return (invoke "negzero") (f64.const 0))`)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeAssertFailure), "got %v", err)
}

func TestForwardReferenceExecutes(t *testing.T) {
	_, err := runScript(t, `
		(module
			(func $a (export "go") (result i32) (call $b))
			(func $b (result i32) (i32.const 9)))
		(assert_return (invoke "go") (i32.const 9))`)
	require.NoError(t, err)
}

func TestAssertReturnCanonicalNaN(t *testing.T) {
	_, err := runScript(t, `
		(module (func (export "nan") (result f64)
			(f64.sqrt (f64.const -1))))
		(assert_return_canonical_nan (invoke "nan"))
		(assert_return_arithmetic_nan (invoke "nan"))`)
	require.NoError(t, err)
}

func TestAssertTrapAction(t *testing.T) {
	_, err := runScript(t, `
		(module (func (export "div") (param i32 i32) (result i32)
			(i32.div_s (local.get 0) (local.get 1))))
		(assert_trap (invoke "div" (i32.const 1) (i32.const 0)) "integer divide by zero")`)
	require.NoError(t, err)
}

func TestAssertTrapNotTrapping(t *testing.T) {
	_, err := runScript(t, `
		(module (func (export "ok") (result i32) (i32.const 1)))
		(assert_trap (invoke "ok") "expected trap")`)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeAssertFailure), "got %v", err)
}

func TestAssertMalformed(t *testing.T) {
	_, err := runScript(t, `
		(assert_malformed (module quote "(module (func $f) (func $f))") "duplicate name")
		(assert_malformed (module binary "junk") "magic header not detected")`)
	require.NoError(t, err)
}

func TestAssertMalformedOnWellFormed(t *testing.T) {
	_, err := runScript(t, `
		(assert_malformed (module quote "(module)") "nothing wrong here")`)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeAssertFailure), "got %v", err)
}

func TestAssertInvalid(t *testing.T) {
	_, err := runScript(t, `
		(assert_invalid (module (func (result i32))) "type mismatch")`)
	require.NoError(t, err)
}

func TestAssertInvalidOnValid(t *testing.T) {
	_, err := runScript(t, `
		(assert_invalid (module (func)) "nothing wrong here")`)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeAssertFailure), "got %v", err)
}

func TestAssertUnlinkable(t *testing.T) {
	_, err := runScript(t, `
		(assert_unlinkable (module (import "missing" "f" (func))) "unknown import")`)
	require.NoError(t, err)
}

func TestRegisterAndCrossModuleImport(t *testing.T) {
	_, err := runScript(t, `
		(module $provider
			(func (export "f") (result i32) (i32.const 42)))
		(register "lib" $provider)
		(module
			(import "lib" "f" (func $f (result i32)))
			(func (export "g") (result i32) (call $f)))
		(assert_return (invoke "g") (i32.const 42))`)
	require.NoError(t, err)
}

func TestNamedModuleActions(t *testing.T) {
	_, err := runScript(t, `
		(module $one (func (export "n") (result i32) (i32.const 1)))
		(module $two (func (export "n") (result i32) (i32.const 2)))
		(assert_return (invoke $one "n") (i32.const 1))
		(assert_return (invoke $two "n") (i32.const 2))
		(assert_return (invoke "n") (i32.const 2))`)
	require.NoError(t, err)
}

func TestGetGlobal(t *testing.T) {
	_, err := runScript(t, `
		(module (global (export "answer") i32 (i32.const 42)))
		(assert_return (get "answer") (i32.const 42))`)
	require.NoError(t, err)
}

func TestBinaryModule(t *testing.T) {
	// A minimal valid binary: magic and version only.
	_, err := runScript(t, `
		(module binary "\00asm\01\00\00\00")`)
	require.NoError(t, err)
}

func TestDuplicateModuleName(t *testing.T) {
	_, err := runScript(t, `
		(module $m)
		(module $m)`)
	require.True(t, errors.HasCode(err, errors.ErrFatalDuplicateModuleName), "got %v", err)
}

func TestSkippedDirectives(t *testing.T) {
	sum, err := runScript(t, `
		(script (module))
		(input "ignored.wast")
		(output "ignored.wasm")
		(module (func (export "f")))
		(invoke "f")`)
	require.NoError(t, err)
	require.Equal(t, 5, sum.Directives)
}

func TestAssertExhaustionUnsupported(t *testing.T) {
	_, err := runScript(t, `
		(assert_exhaustion (invoke "f") "call stack exhausted")`)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeUnsupported), "got %v", err)
}

func TestUnknownModuleReference(t *testing.T) {
	_, err := runScript(t, `
		(module (func (export "f")))
		(invoke $nope "f")`)
	require.True(t, errors.HasCode(err, errors.ErrParseInvalidName), "got %v", err)
}

func TestLazyRecompile(t *testing.T) {
	// A second module invalidates the artifact; the next action relinks
	// and still reaches the first module by name.
	_, err := runScript(t, `
		(module $a (func (export "one") (result i32) (i32.const 1)))
		(assert_return (invoke "one") (i32.const 1))
		(module $b (func (export "two") (result i32) (i32.const 2)))
		(assert_return (invoke "two") (i32.const 2))
		(assert_return (invoke $a "one") (i32.const 1))`)
	require.NoError(t, err)
}
