package wast

import (
	"context"
	"strings"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/encoder"
	"github.com/wasmlab/watfront/internal/parser"
	"github.com/wasmlab/watfront/internal/token"
)

// parseScriptModule reads one (module ...) form starting at the '(' at
// start. Plain modules go through the text parser; binary and quote
// modules concatenate their strings and hand off to the engine's decoder
// or a recursive text parse. The cursor ends past the form's close on
// success and is unspecified on error (callers that tolerate errors
// reposition with skipForm).
func (r *Runner) parseScriptModule(start int) (*scriptModule, error) {
	r.pos = start
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return nil, err
	}
	if kw, err := r.expect(token.Ident, errors.ErrWatExpectedModule); err != nil {
		return nil, err
	} else if kw.Value != "module" {
		return nil, errors.At(errors.ErrWatExpectedModule, kw.Line, "got %q", kw.Value)
	}

	name := ""
	if t := r.peek(); t != nil && t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
		name = strings.TrimPrefix(t.Value, "$")
		r.next()
	}

	if t := r.peek(); t != nil && t.Type == token.Ident && (t.Value == "binary" || t.Value == "quote") {
		form := t.Value
		r.next()
		var raw []byte
		for {
			t := r.peek()
			if t == nil {
				return nil, errors.New(errors.ErrParseUnexpectedEOF, "%s module", form)
			}
			if t.Type != token.String {
				break
			}
			r.next()
			decoded, err := parser.DecodeString(t.Value, t.Line)
			if err != nil {
				return nil, err
			}
			raw = append(raw, decoded...)
		}
		if _, err := r.expect(token.RParen, errors.ErrWatExpectedClose); err != nil {
			return nil, err
		}

		if form == "binary" {
			return &scriptModule{name: name, bin: raw, isBinary: true}, nil
		}

		// Quote modules re-enter the text pipeline with the concatenated
		// source.
		p := parser.New(token.Tokenize(string(raw)))
		mod, err := p.Parse()
		if err != nil {
			return nil, err
		}
		if name != "" {
			mod.Name = name
		}
		return &scriptModule{name: mod.Name, bin: encoder.Encode(mod)}, nil
	}

	// Plain text module: rewind and let the module parser take the whole
	// form.
	p := parser.New(r.tokens)
	p.SetPos(start)
	mod, err := p.Parse()
	if err != nil {
		return nil, err
	}
	r.pos = p.Pos()
	return &scriptModule{name: mod.Name, bin: encoder.Encode(mod)}, nil
}

func (r *Runner) addModule(sm *scriptModule, line int) error {
	if sm.name != "" {
		if _, dup := r.byName[sm.name]; dup {
			return errors.At(errors.ErrFatalDuplicateModuleName, line, "$%s", sm.name)
		}
		r.byName[sm.name] = len(r.mods)
	}
	r.mods = append(r.mods, sm)
	r.last = len(r.mods) - 1
	r.dirty = true
	return nil
}

// dropLastModule unwinds addModule after an assert_trap module directive
// so the trapping start function does not poison later relinks.
func (r *Runner) dropLastModule() {
	if len(r.mods) == 0 {
		return
	}
	sm := r.mods[len(r.mods)-1]
	if sm.name != "" {
		delete(r.byName, sm.name)
	}
	if sm.regName != "" {
		delete(r.registered, sm.regName)
	}
	r.mods = r.mods[:len(r.mods)-1]
	r.last = len(r.mods) - 1
	r.dirty = true
	r.instances = nil
}

func (r *Runner) runRegister() error {
	if _, err := r.expect(token.LParen, errors.ErrWatExpectedOpen); err != nil {
		return err
	}
	r.next() // register

	nameTok, err := r.expect(token.String, errors.ErrWatExpectedString)
	if err != nil {
		return err
	}
	alias, err := parser.DecodeString(nameTok.Value, nameTok.Line)
	if err != nil {
		return err
	}

	idx := r.last
	if t := r.peek(); t != nil && t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
		r.next()
		i, ok := r.byName[strings.TrimPrefix(t.Value, "$")]
		if !ok {
			return errors.At(errors.ErrParseInvalidName, t.Line, "%s", t.Value)
		}
		idx = i
	}
	if idx < 0 {
		return errors.At(errors.ErrUnknownModule, nameTok.Line, "no module to register")
	}
	if _, err := r.expect(token.RParen, errors.ErrWatExpectedClose); err != nil {
		return err
	}

	if _, dup := r.registered[string(alias)]; dup {
		return errors.At(errors.ErrFatalDuplicateModuleName, nameTok.Line, "%q", alias)
	}
	r.registered[string(alias)] = idx
	r.mods[idx].regName = string(alias)
	r.dirty = true
	return nil
}

// ensureCompiled relinks the whole environment when dirty: a fresh engine
// store, every module instantiated in definition order under its
// registered or own name.
func (r *Runner) ensureCompiled(ctx context.Context) error {
	if !r.dirty && r.instances != nil {
		return nil
	}
	if err := r.eng.Reset(ctx); err != nil {
		return errors.Wrap(errors.ErrRuntimeInit, err, "reset")
	}
	r.instances = make([]*engine.Instance, len(r.mods))
	for i, sm := range r.mods {
		inst, err := r.eng.Instantiate(ctx, sm.bin, sm.instanceName())
		if err != nil {
			r.instances = nil
			return err
		}
		r.instances[i] = inst
	}
	r.dirty = false
	return nil
}

// envUnits snapshots the environment for link probing.
func (r *Runner) envUnits() []engine.Unit {
	units := make([]engine.Unit, len(r.mods))
	for i, sm := range r.mods {
		units[i] = engine.Unit{Name: sm.instanceName(), Bin: sm.bin}
	}
	return units
}
