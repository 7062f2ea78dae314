// Package wat compiles the WebAssembly 1.0 text format into binary WASM.
//
// Basic usage:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Supported syntax:
//   - Folded s-expressions and flat instruction sequences, freely mixed
//   - Functions with params, results, locals (named and indexed)
//   - Symbolic names everywhere the format allows them, including forward
//     references to functions and globals
//   - Inline import/export abbreviations on func, table, memory, global
//   - Implicit type synthesis from inline param/result clauses
//   - Table/memory declarations, element and data segments, start function
//   - (memory (data ...)) and (table anyfunc (elem ...)) abbreviations
//   - Control flow: block, loop, if/then/else, br, br_if, br_table, return
//   - call and call_indirect with type references
//   - The full 1.0 numeric instruction set, in both the current spellings
//     and the legacy ones (get_local, grow_memory, i32.trunc_s/f64, ...)
//   - String escapes including \u{...} and raw hex bytes
//
// Not supported: anything past the 1.0 MVP - no SIMD, reference types,
// bulk memory, multi-value, threads, or tail calls.
//
// The extended script dialect of the test suite (assert_return and
// friends) lives in the wast package.
package wat
