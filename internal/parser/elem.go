package parser

import (
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/opcode"
	"github.com/wasmlab/watfront/internal/token"
)

// parseConstOp reads one constant instruction without its parens. Only the
// constant opcodes and reads of imported globals may appear in
// initializer position.
func (p *Parser) parseConstOp() (ast.Instr, error) {
	t, err := p.expect(token.Ident, errors.ErrWatExpectedOperator)
	if err != nil {
		return ast.Instr{}, err
	}
	info, ok := opcode.Lookup(t.Value)
	if !ok {
		return ast.Instr{}, errors.At(errors.ErrFatalUnknownInstruction, t.Line, "%s", t.Value)
	}

	switch info.Opcode {
	case ast.OpI32Const:
		v, err := p.parseI32()
		if err != nil {
			return ast.Instr{}, err
		}
		return ast.Instr{Opcode: ast.OpI32Const, Imm: v}, nil
	case ast.OpI64Const:
		v, err := p.parseI64()
		if err != nil {
			return ast.Instr{}, err
		}
		return ast.Instr{Opcode: ast.OpI64Const, Imm: v}, nil
	case ast.OpF32Const:
		v, err := p.parseF32()
		if err != nil {
			return ast.Instr{}, err
		}
		return ast.Instr{Opcode: ast.OpF32Const, Imm: v}, nil
	case ast.OpF64Const:
		v, err := p.parseF64()
		if err != nil {
			return ast.Instr{}, err
		}
		return ast.Instr{Opcode: ast.OpF64Const, Imm: v}, nil
	case ast.OpGlobalGet:
		idx, err := p.parseIdx(p.globals)
		if err != nil {
			return ast.Instr{}, err
		}
		// Forward references into defined globals are rejected: only an
		// imported global is initialized this early.
		if idx >= p.mod.NumImports[ast.KindGlobal] {
			return ast.Instr{}, errors.At(errors.ErrInvalidInitializer, t.Line, "global %d is not imported", idx)
		}
		return ast.Instr{Opcode: ast.OpGlobalGet, Imm: idx}, nil
	default:
		return ast.Instr{}, errors.At(errors.ErrInvalidInitializer, t.Line, "%s", t.Value)
	}
}

// parseInitializer reads a single parenthesized constant expression and
// terminates it with end.
func (p *Parser) parseInitializer() ([]ast.Instr, error) {
	if err := p.expectOpen(); err != nil {
		return nil, err
	}
	ins, err := p.parseConstOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	return []ast.Instr{ins, {Opcode: ast.OpEnd}}, nil
}

// parseOffsetExpr reads the offset of an element or data segment: either
// an "(offset expr)" wrapper or a bare constant expression.
func (p *Parser) parseOffsetExpr() ([]ast.Instr, error) {
	if err := p.expectOpen(); err != nil {
		return nil, err
	}

	if t := p.peek(); t != nil && t.Type == token.Ident && t.Value == "offset" {
		p.next()
		var ins ast.Instr
		var err error
		if t := p.peek(); t != nil && t.Type == token.LParen {
			p.next()
			ins, err = p.parseConstOp()
			if err != nil {
				return nil, err
			}
			if err := p.expectClose(); err != nil {
				return nil, err
			}
		} else {
			ins, err = p.parseConstOp()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectClose(); err != nil {
			return nil, err
		}
		return []ast.Instr{ins, {Opcode: ast.OpEnd}}, nil
	}

	ins, err := p.parseConstOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectClose(); err != nil {
		return nil, err
	}
	return []ast.Instr{ins, {Opcode: ast.OpEnd}}, nil
}

func (p *Parser) parseElem() error {
	var tableIdx uint32
	if t := p.peek(); isIndex(t) {
		idx, err := p.parseIdx(p.tables)
		if err != nil {
			return err
		}
		tableIdx = idx
	}

	offset, err := p.parseOffsetExpr()
	if err != nil {
		return err
	}

	var funcs []uint32
	for {
		t := p.peek()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "elem")
		}
		if t.Type == token.RParen {
			p.next()
			break
		}
		idx, err := p.parseIdx(p.funcs)
		if err != nil {
			return err
		}
		if idx >= p.mod.NumFuncs() {
			return errors.At(errors.ErrInvalidFunctionIndex, t.Line, "elem %d", idx)
		}
		funcs = append(funcs, idx)
	}

	p.mod.Elems = append(p.mod.Elems, ast.Elem{TableIdx: tableIdx, Offset: offset, Init: funcs})
	return nil
}

// parseDataBytes concatenates a run of string tokens.
func (p *Parser) parseDataBytes() ([]byte, error) {
	var out []byte
	for {
		t := p.peek()
		if t == nil {
			return nil, errors.New(errors.ErrParseUnexpectedEOF, "data")
		}
		if t.Type != token.String {
			return out, nil
		}
		p.next()
		decoded, err := DecodeString(t.Value, t.Line)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
	}
}

func (p *Parser) parseData() error {
	var memIdx uint32
	if t := p.peek(); isIndex(t) {
		idx, err := p.parseIdx(p.mems)
		if err != nil {
			return err
		}
		memIdx = idx
	}

	offset, err := p.parseOffsetExpr()
	if err != nil {
		return err
	}

	bytes, err := p.parseDataBytes()
	if err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}

	p.mod.Data = append(p.mod.Data, ast.DataSegment{MemIdx: memIdx, Offset: offset, Init: bytes})
	return nil
}
