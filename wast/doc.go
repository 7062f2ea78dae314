// Package wast drives the extended script dialect of the WebAssembly test
// suite: plain, binary, and quoted module forms, register, invoke, get,
// and the assert_* family.
//
// A Runner owns the environment of modules a script builds up. Execution
// is lazy: any directive that changes the environment marks the compiled
// artifact dirty, and the next invoke or get relinks every module through
// the engine before dispatching. Assertion directives are the only place
// an error is ever expected; an assertion that observes the wrong outcome
// stops the run with ErrRuntimeAssertFailure.
//
//	eng, _ := engine.New(ctx, nil)
//	defer eng.Close(ctx)
//	sum, err := wast.New(eng, logger).Run(ctx, script)
package wast
