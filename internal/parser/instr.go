package parser

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/opcode"
	"github.com/wasmlab/watfront/internal/token"
)

// parseInstrs emits instructions into the current body until the enclosing
// ')' (left at the cursor) or a flat 'end' (consumed). Folded
// subexpressions emit post-order: operands first, the instruction last.
func (p *Parser) parseInstrs(local *symbols) error {
	for {
		t := p.peek()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "instruction")
		}
		if t.Type == token.RParen {
			return nil
		}

		if t.Type == token.LParen {
			p.next()
			if err := p.parseInstrs(local); err != nil {
				return err
			}
			if err := p.expectClose(); err != nil {
				return err
			}
			continue
		}

		if t.Type != token.Ident {
			return errors.At(errors.ErrWatExpectedOperator, t.Line, "got %q", t.Value)
		}

		p.next()
		name, line := t.Value, t.Line

		if info, ok := opcode.Lookup(name); ok {
			if err := p.parseSimpleInstr(info, local); err != nil {
				return err
			}
			continue
		}
		if memOp, ok := opcode.LookupMemory(name); ok {
			if err := p.parseMemoryInstr(memOp, local); err != nil {
				return err
			}
			continue
		}

		switch name {
		case "block", "loop":
			if err := p.parseBlock(name, local); err != nil {
				return err
			}

		case "if":
			if err := p.parseIf(local); err != nil {
				return err
			}

		case "then":
			return errors.At(errors.ErrWatInvalidToken, line, "'then' outside a folded if")

		case "else":
			// The flat separator between if arms. The folded (else ...)
			// clause is consumed by the if parser and never lands here.
			if p.blockDepth == 0 {
				return errors.At(errors.ErrWatInvalidToken, line, "'else' outside a block")
			}
			if t := p.peek(); isName(t) {
				if t.Value != p.labels.top() {
					return errors.At(errors.ErrWatLabelMismatch, t.Line, "%s closes %q", t.Value, p.labels.top())
				}
				p.next()
			}
			p.emit(ast.Instr{Opcode: ast.OpElse})

		case "end":
			if p.blockDepth == 0 {
				return errors.At(errors.ErrWatInvalidToken, line, "'end' outside a block")
			}
			if t := p.peek(); isName(t) {
				if t.Value != p.labels.top() {
					return errors.At(errors.ErrWatLabelMismatch, t.Line, "%s closes %q", t.Value, p.labels.top())
				}
				p.next()
			}
			return nil

		case "br_table":
			if err := p.parseBrTable(local); err != nil {
				return err
			}

		case "call_indirect":
			if err := p.parseCallIndirect(local); err != nil {
				return err
			}

		default:
			return errors.At(errors.ErrFatalUnknownInstruction, line, "%s", name)
		}
	}
}

// parseLabel consumes an optional block label name.
func (p *Parser) parseLabel() string {
	if t := p.peek(); isName(t) {
		p.next()
		return t.Value
	}
	return ""
}

// parseBlockType reads the optional single-result annotation of a
// block/loop/if and returns its block-type byte.
func (p *Parser) parseBlockType() (byte, error) {
	bt := ast.BlockTypeEmpty
	t := p.peek()
	if t == nil || t.Type != token.LParen {
		return bt, nil
	}
	kw := p.peek2()
	if kw == nil || kw.Type != token.Ident || kw.Value != "result" {
		return bt, nil
	}
	p.next()
	p.next()
	if t := p.peek(); t != nil && t.Type != token.RParen {
		vt, err := p.parseValType()
		if err != nil {
			return bt, err
		}
		bt = byte(vt)
		if t := p.peek(); t != nil && t.Type != token.RParen {
			return bt, errors.At(errors.ErrMultipleReturnValues, t.Line, "")
		}
	}
	if err := p.expectClose(); err != nil {
		return bt, err
	}
	if t, kw := p.peek(), p.peek2(); t != nil && t.Type == token.LParen &&
		kw != nil && kw.Type == token.Ident && kw.Value == "result" {
		return bt, errors.At(errors.ErrMultipleReturnValues, kw.Line, "")
	}
	return bt, nil
}

func (p *Parser) parseBlock(name string, local *symbols) error {
	label := p.parseLabel()
	bt, err := p.parseBlockType()
	if err != nil {
		return err
	}
	op := ast.OpBlock
	if name == "loop" {
		op = ast.OpLoop
	}
	p.emit(ast.Instr{Opcode: op, Imm: bt})
	p.labels.push(label)
	p.blockDepth++
	err = p.parseInstrs(local)
	p.blockDepth--
	p.labels.pop()
	if err != nil {
		return err
	}
	p.emit(ast.Instr{Opcode: ast.OpEnd})
	return nil
}

// parseIf handles both surfaces: the folded
// (if (cond) (then ...) (else ...)?) emits the condition first, then the
// if opcode; the flat "if ... else ... end" reads through to its end.
func (p *Parser) parseIf(local *symbols) error {
	label := p.parseLabel()
	bt, err := p.parseBlockType()
	if err != nil {
		return err
	}

	// Folded condition subexpressions precede the if opcode.
	for {
		t := p.peek()
		if t == nil || t.Type != token.LParen {
			break
		}
		kw := p.peek2()
		if kw != nil && kw.Type == token.Ident && (kw.Value == "then" || kw.Value == "else") {
			break
		}
		p.next()
		if err := p.parseInstrs(local); err != nil {
			return err
		}
		if err := p.expectClose(); err != nil {
			return err
		}
	}

	p.emit(ast.Instr{Opcode: ast.OpIf, Imm: bt})
	p.labels.push(label)
	p.blockDepth++
	defer func() {
		p.blockDepth--
		p.labels.pop()
	}()

	// Folded then/else.
	if t := p.peek(); t != nil && t.Type == token.LParen {
		if kw := p.peek2(); kw != nil && kw.Type == token.Ident && kw.Value == "then" {
			p.next()
			p.next()
			if err := p.parseInstrs(local); err != nil {
				return err
			}
			if err := p.expectClose(); err != nil {
				return err
			}
			if t := p.peek(); t != nil && t.Type == token.LParen {
				if kw := p.peek2(); kw != nil && kw.Type == token.Ident && kw.Value == "else" {
					p.next()
					p.next()
					p.emit(ast.Instr{Opcode: ast.OpElse})
					if err := p.parseInstrs(local); err != nil {
						return err
					}
					if err := p.expectClose(); err != nil {
						return err
					}
				}
			}
			p.emit(ast.Instr{Opcode: ast.OpEnd})
			return nil
		}
	}

	// Flat body runs to its own 'end'; a bare 'else' separates the arms
	// (both handled inside parseInstrs).
	if err := p.parseInstrs(local); err != nil {
		return err
	}
	p.emit(ast.Instr{Opcode: ast.OpEnd})
	return nil
}

// parseBranchDepth resolves a branch target: names search the label stack
// innermost-out, numeric depths pass through but must stay inside it.
func (p *Parser) parseBranchDepth() (uint32, error) {
	t := p.peek()
	if t == nil {
		return 0, errors.New(errors.ErrWatExpectedVar, "branch target")
	}
	if isName(t) {
		p.next()
		if depth, ok := p.labels.depth(t.Value); ok {
			return depth, nil
		}
		return 0, errors.At(errors.ErrWatInvalidVar, t.Line, "label %s", t.Value)
	}
	depth, err := p.parseU32()
	if err != nil {
		return 0, err
	}
	if int(depth) >= p.labels.height() {
		return 0, errors.At(errors.ErrInvalidBranchDepth, t.Line, "%d of %d", depth, p.labels.height())
	}
	return depth, nil
}

func (p *Parser) parseSimpleInstr(info opcode.Info, local *symbols) error {
	var imm any
	deferName := ""
	deferLine := 0

	switch info.ImmType {
	case opcode.ImmU32:
		switch info.Opcode {
		case ast.OpBr, ast.OpBrIf:
			depth, err := p.parseBranchDepth()
			if err != nil {
				return err
			}
			imm = depth

		case ast.OpLocalGet, ast.OpLocalSet, ast.OpLocalTee:
			t := p.peek()
			if isName(t) {
				p.next()
				idx, ok := local.lookup(t.Value)
				if !ok {
					return errors.At(errors.ErrWatInvalidLocal, t.Line, "%s", t.Value)
				}
				imm = idx
			} else {
				idx, err := p.parseU32()
				if err != nil {
					return err
				}
				imm = idx
			}

		case ast.OpCall, ast.OpGlobalGet, ast.OpGlobalSet:
			// These may forward-reference names registered later in pass
			// 2; unresolved names go on the deferred queue and are patched
			// after pass 3.
			ns := p.funcs
			if info.Opcode != ast.OpCall {
				ns = p.globals
			}
			t := p.peek()
			if isName(t) {
				p.next()
				if idx, ok := ns.lookup(t.Value); ok {
					imm = idx
				} else {
					imm = uint32(0)
					deferName = t.Value
					deferLine = t.Line
				}
			} else {
				idx, err := p.parseU32()
				if err != nil {
					return err
				}
				imm = idx
			}

		default:
			idx, err := p.parseU32()
			if err != nil {
				return err
			}
			imm = idx
		}

	case opcode.ImmI32:
		val, err := p.parseI32()
		if err != nil {
			return err
		}
		imm = val

	case opcode.ImmI64:
		val, err := p.parseI64()
		if err != nil {
			return err
		}
		imm = val

	case opcode.ImmF32:
		val, err := p.parseF32()
		if err != nil {
			return err
		}
		imm = val

	case opcode.ImmF64:
		val, err := p.parseF64()
		if err != nil {
			return err
		}
		imm = val

	case opcode.ImmMemIdx, opcode.ImmNone:
		// No text-form immediate.
	}

	if err := p.parseOperands(local, info.Operands); err != nil {
		return err
	}

	at := p.emit(ast.Instr{Opcode: info.Opcode, Imm: imm})
	if deferName != "" {
		p.defers = append(p.defers, deferredRef{
			op:     info.Opcode,
			name:   deferName,
			line:   deferLine,
			body:   len(p.mod.Code),
			offset: at,
		})
	}
	return nil
}

// parseOperands consumes up to count folded operand subexpressions (-1 for
// any number), which emit before the instruction itself.
func (p *Parser) parseOperands(local *symbols, count int) error {
	for i := 0; count < 0 || i < count; i++ {
		t := p.peek()
		if t == nil || t.Type != token.LParen {
			return nil
		}
		p.next()
		if err := p.parseInstrs(local); err != nil {
			return err
		}
		if err := p.expectClose(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseMemoryInstr(memOp opcode.MemoryOp, local *symbols) error {
	ma := ast.Memarg{Align: memOp.NaturalAlign}

	for {
		t := p.peek()
		if t == nil || t.Type != token.Ident {
			break
		}
		if rest, ok := strings.CutPrefix(t.Value, "offset="); ok {
			p.next()
			off, err := strconv.ParseUint(strings.ReplaceAll(rest, "_", ""), 0, 32)
			if err != nil {
				return errors.At(errors.ErrWatOutOfRange, t.Line, "%s", t.Value)
			}
			ma.Offset = uint32(off)
		} else if rest, ok := strings.CutPrefix(t.Value, "align="); ok {
			p.next()
			align, err := strconv.ParseUint(strings.ReplaceAll(rest, "_", ""), 0, 32)
			if err != nil || align == 0 || bits.OnesCount64(align) != 1 {
				return errors.At(errors.ErrWatInvalidAlignment, t.Line, "%s", t.Value)
			}
			ma.Align = uint32(bits.TrailingZeros64(align))
		} else {
			break
		}
	}

	if err := p.parseOperands(local, memOp.Operands); err != nil {
		return err
	}
	p.emit(ast.Instr{Opcode: memOp.Opcode, Imm: ma})
	return nil
}

// parseBrTable reads the branch run; the last listed target is the
// default, the rest form the table.
func (p *Parser) parseBrTable(local *symbols) error {
	var targets []uint32
	for {
		t := p.peek()
		if t == nil || !isIndex(t) {
			break
		}
		depth, err := p.parseBranchDepth()
		if err != nil {
			return err
		}
		targets = append(targets, depth)
	}
	if len(targets) == 0 {
		return errors.At(errors.ErrWatExpectedVar, p.line(), "br_table needs a target")
	}

	if err := p.parseOperands(local, -1); err != nil {
		return err
	}
	p.emit(ast.Instr{Opcode: ast.OpBrTable, Imm: ast.BrTable{
		Targets: targets[:len(targets)-1],
		Default: targets[len(targets)-1],
	}})
	return nil
}

func (p *Parser) parseCallIndirect(local *symbols) error {
	typeIdx, _, err := p.parseTypeUse(nil)
	if err != nil {
		return err
	}
	if err := p.parseOperands(local, -1); err != nil {
		return err
	}
	p.emit(ast.Instr{Opcode: ast.OpCallIndirect, Imm: typeIdx})
	return nil
}
