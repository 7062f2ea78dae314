package parser

import (
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/token"
)

// deferredRef is a call/global.get/global.set whose name was not yet bound
// when its instruction was emitted. The queue is drained after pass 3 by
// rewriting immediate 0 of the recorded instruction.
type deferredRef struct {
	name   string
	op     byte
	line   int
	body   int
	offset int
}

// pendingElem is an inline "(table anyfunc (elem ...))" segment recorded
// during pass 2, before all function names exist.
type pendingElem struct {
	offset   []ast.Instr
	refs     []token.Token
	tableIdx uint32
}

func (p *Parser) resolveDeferred() error {
	for _, d := range p.defers {
		var idx uint32
		var ok bool
		switch d.op {
		case ast.OpCall:
			idx, ok = p.funcs.lookup(d.name)
		case ast.OpGlobalGet, ast.OpGlobalSet:
			idx, ok = p.globals.lookup(d.name)
		default:
			return errors.At(errors.ErrWatInternal, d.line, "deferred opcode %#x", d.op)
		}
		if !ok {
			return errors.At(errors.ErrWatInvalidVar, d.line, "%s", d.name)
		}
		if d.body >= len(p.mod.Code) || d.offset >= len(p.mod.Code[d.body].Code) {
			return errors.At(errors.ErrWatInternal, d.line, "deferred target out of range")
		}
		p.mod.Code[d.body].Code[d.offset].Imm = idx
	}
	p.defers = nil
	return nil
}

func (p *Parser) resolvePendingElems() error {
	for _, pe := range p.pendingElems {
		funcs := make([]uint32, 0, len(pe.refs))
		for _, ref := range pe.refs {
			var idx uint32
			if ref.Type == token.Number {
				u, ok := parseU32Value(ref.Value)
				if !ok {
					return errors.At(errors.ErrWatInvalidNumber, ref.Line, "%s", ref.Value)
				}
				idx = u
			} else {
				u, ok := p.funcs.lookup(ref.Value)
				if !ok {
					return errors.At(errors.ErrWatInvalidVar, ref.Line, "%s", ref.Value)
				}
				idx = u
			}
			if idx >= p.mod.NumFuncs() {
				return errors.At(errors.ErrInvalidFunctionIndex, ref.Line, "elem %d", idx)
			}
			funcs = append(funcs, idx)
		}
		p.mod.Elems = append(p.mod.Elems, ast.Elem{
			TableIdx: pe.tableIdx,
			Offset:   pe.offset,
			Init:     funcs,
		})
	}
	p.pendingElems = nil
	return nil
}

// checkIndices verifies that every call and global access, including those
// written with numeric immediates, lands inside its index space.
func (p *Parser) checkIndices() error {
	numFuncs := p.mod.NumFuncs()
	numGlobals := p.mod.NumGlobals()
	for _, body := range p.mod.Code {
		for _, ins := range body.Code {
			switch ins.Opcode {
			case ast.OpCall:
				if idx, ok := ins.Imm.(uint32); !ok || idx >= numFuncs {
					return errors.New(errors.ErrInvalidFunctionIndex, "call %v", ins.Imm)
				}
			case ast.OpGlobalGet, ast.OpGlobalSet:
				if idx, ok := ins.Imm.(uint32); !ok || idx >= numGlobals {
					return errors.New(errors.ErrInvalidGlobalIndex, "global %v", ins.Imm)
				}
			}
		}
	}
	return nil
}
