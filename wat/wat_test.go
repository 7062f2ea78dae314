package wat

import (
	"testing"

	"github.com/wasmlab/watfront/errors"
)

// Integration tests for the public Compile() API. Unit tests are in the
// internal packages.

func TestCompile(t *testing.T) {
	t.Run("empty_module", func(t *testing.T) {
		wasm, err := Compile("(module)")
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(wasm) != 8 {
			t.Errorf("expected 8 bytes, got %d", len(wasm))
		}
		if wasm[0] != 0x00 || wasm[1] != 0x61 || wasm[2] != 0x73 || wasm[3] != 0x6D {
			t.Error("invalid WASM magic")
		}
	})

	t.Run("simple_function", func(t *testing.T) {
		wasm, err := Compile(`(module
			(func (export "add") (param i32 i32) (result i32)
				(i32.add (local.get 0) (local.get 1))))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(wasm) < 20 {
			t.Errorf("output too small: %d bytes", len(wasm))
		}
	})

	t.Run("mixed_surfaces", func(t *testing.T) {
		_, err := Compile(`(module
			(func (export "count") (param i32) (result i32)
				(local $n i32)
				local.get 0
				local.set $n
				block $done
					loop $top
						(br_if $done (i32.eqz (local.get $n)))
						(local.set $n (i32.sub (local.get $n) (i32.const 1)))
						br $top
					end
				end
				local.get $n))`)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
	})
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		wat  string
		code errors.Code
	}{
		{"missing_module", "(func)", errors.ErrWatExpectedModule},
		{"unclosed", "(module", errors.ErrParseUnexpectedEOF},
		{"unknown_instr", "(module (func (bogus)))", errors.ErrFatalUnknownInstruction},
		{"unknown_type", "(module (func (param bogus)))", errors.ErrWatExpectedValType},
		{"unknown_label", "(module (func (block (br $x))))", errors.ErrWatInvalidVar},
		{"trailing_tokens", "(module) extra", errors.ErrWatInvalidToken},
		{"duplicate_name", "(module (func $f) (func $f))", errors.ErrWatDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.wat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("error %v, want code %v", err, tt.code)
			}
		})
	}
}
