package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/wat"
)

func newEngine(t *testing.T) (context.Context, *Engine) {
	t.Helper()
	ctx := context.Background()
	eng, err := New(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(ctx) })
	return ctx, eng
}

func compile(t *testing.T, src string) []byte {
	t.Helper()
	bin, err := wat.Compile(src)
	require.NoError(t, err)
	return bin
}

func TestInvoke(t *testing.T) {
	ctx, eng := newEngine(t)
	bin := compile(t, `(module
		(func (export "add") (param i32 i32) (result i32)
			(i32.add (local.get 0) (local.get 1)))
		(func (export "neg") (param f64) (result f64)
			(f64.neg (local.get 0))))`)

	inst, err := eng.Instantiate(ctx, bin, "math")
	require.NoError(t, err)

	got, err := eng.Invoke(ctx, inst, "add", []Value{
		{Type: ast.ValTypeI32, Bits: 1},
		{Type: ast.ValTypeI32, Bits: 2},
	})
	require.NoError(t, err)
	require.Equal(t, ast.ValTypeI32, got.Type)
	require.Equal(t, uint64(3), got.Bits&0xFFFFFFFF)

	// Each argument lands in its own parameter slot.
	got, err = eng.Invoke(ctx, inst, "add", []Value{
		{Type: ast.ValTypeI32, Bits: 10},
		{Type: ast.ValTypeI32, Bits: 0},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10), got.Bits&0xFFFFFFFF)
}

func TestInvokeSignatureMismatch(t *testing.T) {
	ctx, eng := newEngine(t)
	bin := compile(t, `(module (func (export "one") (result i32) (i32.const 1)))`)
	inst, err := eng.Instantiate(ctx, bin, "")
	require.NoError(t, err)

	_, err = eng.Invoke(ctx, inst, "one", []Value{{Type: ast.ValTypeI32, Bits: 0}})
	require.True(t, errors.HasCode(err, errors.ErrSignatureMismatch))

	_, err = eng.Invoke(ctx, inst, "missing", nil)
	require.True(t, errors.HasCode(err, errors.ErrInvalidFunctionIndex))
}

func TestInvokeTrap(t *testing.T) {
	ctx, eng := newEngine(t)
	bin := compile(t, `(module
		(func (export "div") (param i32 i32) (result i32)
			(i32.div_s (local.get 0) (local.get 1)))
		(func (export "boom") unreachable))`)
	inst, err := eng.Instantiate(ctx, bin, "")
	require.NoError(t, err)

	_, err = eng.Invoke(ctx, inst, "div", []Value{
		{Type: ast.ValTypeI32, Bits: 1},
		{Type: ast.ValTypeI32, Bits: 0},
	})
	require.True(t, errors.HasCode(err, errors.ErrRuntimeTrap), "got %v", err)

	_, err = eng.Invoke(ctx, inst, "boom", nil)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeTrap), "got %v", err)
}

func TestReadGlobal(t *testing.T) {
	ctx, eng := newEngine(t)
	bin := compile(t, `(module (global (export "answer") i32 (i32.const 42)))`)
	inst, err := eng.Instantiate(ctx, bin, "")
	require.NoError(t, err)

	v, err := eng.ReadGlobal(inst, "answer")
	require.NoError(t, err)
	require.Equal(t, ast.ValTypeI32, v.Type)
	require.Equal(t, uint64(42), v.Bits&0xFFFFFFFF)

	_, err = eng.ReadGlobal(inst, "missing")
	require.True(t, errors.HasCode(err, errors.ErrUnknownExport))
}

func TestValidate(t *testing.T) {
	ctx, eng := newEngine(t)

	require.NoError(t, eng.Validate(ctx, compile(t, "(module)")))

	// Well formed but semantically broken: result promised, nothing
	// returned.
	bad := compile(t, "(module (func (result i32)))")
	require.Error(t, eng.Validate(ctx, bad))
}

func TestLinkProbe(t *testing.T) {
	ctx, eng := newEngine(t)

	provider := compile(t, `(module (func (export "f") (result i32) (i32.const 7)))`)
	consumer := compile(t, `(module (import "lib" "f" (func (result i32))))`)

	err := eng.LinkProbe(ctx, nil, consumer)
	require.True(t, errors.HasCode(err, errors.ErrRuntimeInit), "got %v", err)

	err = eng.LinkProbe(ctx, []Unit{{Name: "lib", Bin: provider}}, consumer)
	require.NoError(t, err)
}

func TestExportedFunctions(t *testing.T) {
	ctx, eng := newEngine(t)
	bin := compile(t, `(module
		(func (export "b") (param i64))
		(func (export "a") (result f32) (f32.const 0)))`)
	inst, err := eng.Instantiate(ctx, bin, "")
	require.NoError(t, err)

	sigs := inst.ExportedFunctions()
	require.Len(t, sigs, 2)
	require.Equal(t, "a", sigs[0].Name)
	require.Equal(t, []ast.ValType{ast.ValTypeF32}, sigs[0].Results)
	require.Equal(t, "b", sigs[1].Name)
	require.Equal(t, []ast.ValType{ast.ValTypeI64}, sigs[1].Params)
}

func TestReset(t *testing.T) {
	ctx, eng := newEngine(t)
	bin := compile(t, `(module (func (export "f")))`)

	_, err := eng.Instantiate(ctx, bin, "dup")
	require.NoError(t, err)

	// Same name again collides until the store is reset.
	_, err = eng.Instantiate(ctx, bin, "dup")
	require.Error(t, err)

	require.NoError(t, eng.Reset(ctx))
	_, err = eng.Instantiate(ctx, bin, "dup")
	require.NoError(t, err)
}

func TestMangle(t *testing.T) {
	require.Equal(t, "spectest_print", Mangle("spectest", "print"))
	require.Equal(t, "_f", Mangle("", "f"))
}
