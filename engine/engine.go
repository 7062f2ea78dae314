package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
)

// Engine wraps a wazero runtime behind the four collaborator roles the
// text front-end needs: binary-format parsing, validation, compilation,
// and dynamic loading with symbol dispatch.
type Engine struct {
	rt  wazero.Runtime
	cfg *Config
}

// Config holds runtime construction options.
type Config struct {
	// MemoryLimitPages caps linear memory per instance in 64KiB pages.
	// 0 keeps wazero's default (4GiB).
	MemoryLimitPages uint32
}

func New(ctx context.Context, cfg *Config) (*Engine, error) {
	e := &Engine{cfg: cfg}
	e.rt = e.newRuntime(ctx)
	return e, nil
}

func (e *Engine) newRuntime(ctx context.Context) wazero.Runtime {
	runtimeCfg := wazero.NewRuntimeConfig()
	if e.cfg != nil && e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	return wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
}

func (e *Engine) Close(ctx context.Context) error {
	return e.rt.Close(ctx)
}

// Reset discards every loaded instance. The script driver calls this
// whenever its environment went dirty and needs a clean relink.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.rt.Close(ctx); err != nil {
		return err
	}
	e.rt = e.newRuntime(ctx)
	return nil
}

// Validate runs the binary through wazero's decoder and validator without
// keeping the compilation.
func (e *Engine) Validate(ctx context.Context, bin []byte) error {
	compiled, err := e.rt.CompileModule(ctx, bin)
	if err != nil {
		return errors.Wrap(errors.ErrValidation, err, "compile")
	}
	return compiled.Close(ctx)
}

// Instance is one dynamically loaded module.
type Instance struct {
	mod  api.Module
	name string
}

func (i *Instance) Name() string { return i.name }

// Instantiate compiles and loads a binary under the given instance name.
// An empty name keeps the instance anonymous (unimportable by others). A
// trap out of the start function surfaces as a runtime trap, a linking
// failure as an init error.
func (e *Engine) Instantiate(ctx context.Context, bin []byte, name string) (*Instance, error) {
	compiled, err := e.rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.ErrValidation, err, "compile")
	}
	cfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	mod, err := e.rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, classifyLoadErr(err)
	}
	Logger().Debug("instantiated module", zap.String("name", name), zap.Int("binary_bytes", len(bin)))
	return &Instance{mod: mod, name: name}, nil
}

// classifyLoadErr separates start-function traps from link failures.
func classifyLoadErr(err error) error {
	if strings.Contains(err.Error(), "wasm error:") {
		return errors.Wrap(errors.ErrRuntimeTrap, err, "start")
	}
	return errors.Wrap(errors.ErrRuntimeInit, err, "instantiate")
}

// Value is one scalar crossing the dispatch boundary. A zero Type means
// void.
type Value struct {
	Bits uint64
	Type ast.ValType
}

func valueTypeOf(t ast.ValType) api.ValueType {
	switch t {
	case ast.ValTypeI32:
		return api.ValueTypeI32
	case ast.ValTypeI64:
		return api.ValueTypeI64
	case ast.ValTypeF32:
		return api.ValueTypeF32
	case ast.ValTypeF64:
		return api.ValueTypeF64
	}
	return 0
}

func valTypeOf(t api.ValueType) ast.ValType {
	switch t {
	case api.ValueTypeI32:
		return ast.ValTypeI32
	case api.ValueTypeI64:
		return ast.ValTypeI64
	case api.ValueTypeF32:
		return ast.ValTypeF32
	case api.ValueTypeF64:
		return ast.ValTypeF64
	}
	return 0
}

// Invoke dispatches an exported function. Arguments must match the
// signature position by position; results come back bit-exact. A fault
// inside the artifact, whether surfaced as a call error or a panic,
// becomes a runtime trap.
func (e *Engine) Invoke(ctx context.Context, inst *Instance, fn string, args []Value) (result Value, err error) {
	f := inst.mod.ExportedFunction(fn)
	if f == nil {
		return Value{}, errors.New(errors.ErrInvalidFunctionIndex, "%s", Mangle(inst.name, fn))
	}
	def := f.Definition()
	params := def.ParamTypes()
	if len(params) != len(args) {
		return Value{}, errors.New(errors.ErrSignatureMismatch, "%s takes %d arguments, got %d", fn, len(params), len(args))
	}
	raw := make([]uint64, len(args))
	for i, arg := range args {
		if valueTypeOf(arg.Type) != params[i] {
			return Value{}, errors.New(errors.ErrSignatureMismatch, "%s argument %d", fn, i)
		}
		raw[i] = arg.Bits
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(errors.ErrRuntimeTrap, fmt.Errorf("%v", r), Mangle(inst.name, fn))
		}
	}()

	results, callErr := f.Call(ctx, raw...)
	if callErr != nil {
		return Value{}, errors.Wrap(errors.ErrRuntimeTrap, callErr, Mangle(inst.name, fn))
	}

	if types := def.ResultTypes(); len(types) > 0 {
		return Value{Type: valTypeOf(types[0]), Bits: results[0]}, nil
	}
	return Value{}, nil
}

// ReadGlobal reads an exported global, the symmetric path to Invoke.
func (e *Engine) ReadGlobal(inst *Instance, name string) (Value, error) {
	g := inst.mod.ExportedGlobal(name)
	if g == nil {
		return Value{}, errors.New(errors.ErrUnknownExport, "%s", Mangle(inst.name, name))
	}
	return Value{Type: valTypeOf(g.Type()), Bits: g.Get()}, nil
}

// FuncSig describes one exported function for callers that enumerate an
// instance, such as the CLI's invoke picker.
type FuncSig struct {
	Name    string
	Params  []ast.ValType
	Results []ast.ValType
}

// ExportedFunctions lists the instance's function exports sorted by name.
func (i *Instance) ExportedFunctions() []FuncSig {
	defs := i.mod.ExportedFunctionDefinitions()
	sigs := make([]FuncSig, 0, len(defs))
	for name, def := range defs {
		sig := FuncSig{Name: name}
		for _, t := range def.ParamTypes() {
			sig.Params = append(sig.Params, valTypeOf(t))
		}
		for _, t := range def.ResultTypes() {
			sig.Results = append(sig.Results, valTypeOf(t))
		}
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(a, b int) bool { return sigs[a].Name < sigs[b].Name })
	return sigs
}

// Unit names one environment module for LinkProbe.
type Unit struct {
	Name string
	Bin  []byte
}

// LinkProbe checks whether target would link against the given
// environment without touching the engine's own instance set. Environment
// modules that fail to load are skipped; only the target's verdict
// matters.
func (e *Engine) LinkProbe(ctx context.Context, env []Unit, target []byte) error {
	rt := e.newRuntime(ctx)
	defer rt.Close(ctx)

	for _, u := range env {
		compiled, err := rt.CompileModule(ctx, u.Bin)
		if err != nil {
			continue
		}
		_, _ = rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(u.Name).WithStartFunctions())
	}

	compiled, err := rt.CompileModule(ctx, target)
	if err != nil {
		return errors.Wrap(errors.ErrValidation, err, "compile")
	}
	if _, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithStartFunctions()); err != nil {
		return classifyLoadErr(err)
	}
	return nil
}
