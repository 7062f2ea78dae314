// Package watfront is the WebAssembly text format front-end of an
// ahead-of-time compiler toolchain: it turns WAT source into
// binary-format modules and drives the extended script dialect of the
// official test suite against a compiled artifact.
//
// # Architecture Overview
//
//	watfront/            Root package with convenience entry points
//	├── wat/             WAT text to binary-format compiler
//	├── wast/            Script driver: module env, invoke/get, assert_*
//	├── engine/          Collaborator facade over wazero: validate,
//	│                    compile, load, dispatch
//	├── errors/          Banded status codes and structured errors
//	└── cmd/watrun/      CLI: run modules and scripts, interactive invoke
//
// # Quick Start
//
// Compile a module:
//
//	wasm, err := watfront.Compile(`(module (func (export "two") (result i32) i32.const 2))`)
//
// Run a script:
//
//	sum, err := watfront.RunScript(ctx, script, nil)
//
// The parser accepts both the folded s-expression surface and flat
// instruction sequences, resolves symbolic names across the module with a
// multi-pass walk, and defers forward references until the whole body has
// been seen. Execution never interprets anything: invoke and get dispatch
// through the engine's compiled artifact.
package watfront
