package parser

import (
	"strings"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/token"
)

// inlineClauses captures the (export "..") and (import ".." "..")
// abbreviations that may prefix a func/table/memory/global definition.
type inlineClauses struct {
	exports   []string
	importMod string
	importNam string
	isImport  bool
	line      int
}

func (p *Parser) parseInlineClauses() (inlineClauses, error) {
	var c inlineClauses
	for {
		t := p.peek()
		if t == nil || t.Type != token.LParen {
			return c, nil
		}
		kw := p.peek2()
		if kw == nil || kw.Type != token.Ident {
			return c, nil
		}
		switch kw.Value {
		case "export":
			p.next()
			p.next()
			nameTok, err := p.expect(token.String, errors.ErrWatExpectedString)
			if err != nil {
				return c, err
			}
			name, err := DecodeString(nameTok.Value, nameTok.Line)
			if err != nil {
				return c, err
			}
			c.exports = append(c.exports, string(name))
			if err := p.expectClose(); err != nil {
				return c, err
			}
		case "import":
			p.next()
			p.next()
			modTok, err := p.expect(token.String, errors.ErrWatExpectedString)
			if err != nil {
				return c, err
			}
			namTok, err := p.expect(token.String, errors.ErrWatExpectedString)
			if err != nil {
				return c, err
			}
			mod, err := DecodeString(modTok.Value, modTok.Line)
			if err != nil {
				return c, err
			}
			nam, err := DecodeString(namTok.Value, namTok.Line)
			if err != nil {
				return c, err
			}
			c.importMod, c.importNam = string(mod), string(nam)
			c.isImport = true
			c.line = kw.Line
			if err := p.expectClose(); err != nil {
				return c, err
			}
		default:
			return c, nil
		}
	}
}

func (p *Parser) parseFunc() error {
	idx := p.funcIdx
	var funcName string
	if t := p.peek(); isName(t) {
		p.next()
		funcName = t.Value
		// Registered before the body parses so a function can call itself
		// by name.
		if err := p.funcs.insert(t.Value, t.Line, idx); err != nil {
			return err
		}
	}

	clauses, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	var paramNames []string
	typeIdx, ft, err := p.parseTypeUse(&paramNames)
	if err != nil {
		return err
	}

	if clauses.isImport {
		if err := p.expectClose(); err != nil {
			return err
		}
		imp := ast.Import{
			Module: clauses.importMod,
			Name:   clauses.importNam,
			Desc:   ast.ImportDesc{Kind: ast.KindFunc, TypeIdx: typeIdx},
		}
		if err := p.appendImport(imp, clauses.line); err != nil {
			return err
		}
		p.funcIdx++
		for _, e := range clauses.exports {
			if err := p.addExport(e, ast.KindFunc, idx, clauses.line); err != nil {
				return err
			}
		}
		return nil
	}

	locals := newSymbols("local")
	for i, nm := range paramNames {
		if nm == "" {
			continue
		}
		if err := locals.insert(nm, p.line(), uint32(i)); err != nil {
			return err
		}
	}

	// Pad so local name indices line up behind the params even when the
	// signature came from a bare (type $t) annotation.
	for len(paramNames) < len(ft.Params) {
		paramNames = append(paramNames, "")
	}
	body := ast.FuncBody{Name: strings.TrimPrefix(funcName, "$"), ParamNames: paramNames}
	localIdx := uint32(len(ft.Params))

	// (local ...) clauses follow the signature and precede the body.
	for {
		t := p.peek()
		if t == nil || t.Type != token.LParen {
			break
		}
		kw := p.peek2()
		if kw == nil || kw.Type != token.Ident || kw.Value != "local" {
			break
		}
		p.next()
		p.next()
		if t := p.peek(); isName(t) {
			p.next()
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			if err := locals.insert(t.Value, t.Line, localIdx); err != nil {
				return err
			}
			body.LocalNames = append(body.LocalNames, t.Value)
			body.Locals = append(body.Locals, vt)
			localIdx++
			if err := p.expectClose(); err != nil {
				return err
			}
			continue
		}
		for {
			t := p.peek()
			if t == nil {
				return errors.New(errors.ErrParseUnexpectedEOF, "local")
			}
			if t.Type == token.RParen {
				p.next()
				break
			}
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			body.LocalNames = append(body.LocalNames, "")
			body.Locals = append(body.Locals, vt)
			localIdx++
		}
	}

	// The function frame counts as the outermost branch target.
	p.code = nil
	p.labels = labelStack{}
	p.labels.push("")
	p.blockDepth = 0
	if err := p.parseInstrs(locals); err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}
	p.labels.pop()

	p.emit(ast.Instr{Opcode: ast.OpEnd})
	body.Code = p.code
	p.code = nil

	p.mod.Funcs = append(p.mod.Funcs, ast.FuncEntry{TypeIdx: typeIdx})
	p.mod.Code = append(p.mod.Code, body)
	p.defined[ast.KindFunc] = true
	p.funcIdx++

	for _, e := range clauses.exports {
		if err := p.addExport(e, ast.KindFunc, idx, p.line()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseTable() error {
	idx := p.tableIdx
	if t := p.peek(); isName(t) {
		p.next()
		if err := p.tables.insert(t.Value, t.Line, idx); err != nil {
			return err
		}
	}

	clauses, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	// Abbreviated form: elemtype + inline (elem ...) synthesizes the
	// limits from the element count.
	if t := p.peek(); t != nil && t.Type == token.Ident && (t.Value == "anyfunc" || t.Value == "funcref") {
		p.next()
		if err := p.expectOpen(); err != nil {
			return err
		}
		if err := p.expectKeyword("elem", errors.ErrWatExpectedElem); err != nil {
			return err
		}
		var refs []token.Token
		for {
			t := p.peek()
			if t == nil {
				return errors.New(errors.ErrParseUnexpectedEOF, "elem")
			}
			if t.Type == token.RParen {
				p.next()
				break
			}
			if !isIndex(t) {
				return errors.At(errors.ErrWatExpectedVar, t.Line, "got %q", t.Value)
			}
			refs = append(refs, *t)
			p.next()
		}
		if err := p.expectClose(); err != nil {
			return err
		}

		size := uint32(len(refs))
		p.mod.Tables = append(p.mod.Tables, ast.Table{
			ElemType: ast.RefTypeFuncref,
			Limits:   ast.Limits{Min: size, Max: &size},
		})
		p.defined[ast.KindTable] = true
		p.tableIdx++

		// Function names may not be registered yet; the segment resolves
		// in pass 3.
		p.pendingElems = append(p.pendingElems, pendingElem{
			tableIdx: idx,
			offset:   []ast.Instr{{Opcode: ast.OpI32Const, Imm: int32(0)}, {Opcode: ast.OpEnd}},
			refs:     refs,
		})

		for _, e := range clauses.exports {
			if err := p.addExport(e, ast.KindTable, idx, p.line()); err != nil {
				return err
			}
		}
		return nil
	}

	tbl, err := p.parseTableType()
	if err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}

	if clauses.isImport {
		imp := ast.Import{
			Module: clauses.importMod,
			Name:   clauses.importNam,
			Desc:   ast.ImportDesc{Kind: ast.KindTable, TableTyp: &tbl},
		}
		if err := p.appendImport(imp, clauses.line); err != nil {
			return err
		}
		p.tableIdx++
	} else {
		p.mod.Tables = append(p.mod.Tables, tbl)
		p.defined[ast.KindTable] = true
		p.tableIdx++
	}

	for _, e := range clauses.exports {
		if err := p.addExport(e, ast.KindTable, idx, p.line()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseMemory() error {
	idx := p.memIdx
	if t := p.peek(); isName(t) {
		p.next()
		if err := p.mems.insert(t.Value, t.Line, idx); err != nil {
			return err
		}
	}

	clauses, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	// Abbreviated form: inline (data ...) sizes the memory from the
	// concatenated bytes.
	if t := p.peek(); t != nil && t.Type == token.LParen {
		if kw := p.peek2(); kw != nil && kw.Type == token.Ident && kw.Value == "data" {
			p.next()
			p.next()
			bytes, err := p.parseDataBytes()
			if err != nil {
				return err
			}
			if err := p.expectClose(); err != nil {
				return err
			}
			if err := p.expectClose(); err != nil {
				return err
			}

			pages := (uint32(len(bytes)) + 65535) / 65536
			p.mod.Memories = append(p.mod.Memories, ast.Memory{Limits: ast.Limits{Min: pages, Max: &pages}})
			p.defined[ast.KindMemory] = true
			p.memIdx++

			p.mod.Data = append(p.mod.Data, ast.DataSegment{
				MemIdx: idx,
				Offset: []ast.Instr{{Opcode: ast.OpI32Const, Imm: int32(0)}, {Opcode: ast.OpEnd}},
				Init:   bytes,
			})

			for _, e := range clauses.exports {
				if err := p.addExport(e, ast.KindMemory, idx, p.line()); err != nil {
					return err
				}
			}
			return nil
		}
	}

	lim, err := p.parseLimits()
	if err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}

	if clauses.isImport {
		imp := ast.Import{
			Module: clauses.importMod,
			Name:   clauses.importNam,
			Desc:   ast.ImportDesc{Kind: ast.KindMemory, MemLimits: &lim},
		}
		if err := p.appendImport(imp, clauses.line); err != nil {
			return err
		}
		p.memIdx++
	} else {
		p.mod.Memories = append(p.mod.Memories, ast.Memory{Limits: lim})
		p.defined[ast.KindMemory] = true
		p.memIdx++
	}

	for _, e := range clauses.exports {
		if err := p.addExport(e, ast.KindMemory, idx, p.line()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseGlobal() error {
	idx := p.globalIdx
	if t := p.peek(); isName(t) {
		p.next()
		if err := p.globals.insert(t.Value, t.Line, idx); err != nil {
			return err
		}
	}

	clauses, err := p.parseInlineClauses()
	if err != nil {
		return err
	}

	gt, err := p.parseGlobalType()
	if err != nil {
		return err
	}

	if clauses.isImport {
		if err := p.expectClose(); err != nil {
			return err
		}
		imp := ast.Import{
			Module: clauses.importMod,
			Name:   clauses.importNam,
			Desc:   ast.ImportDesc{Kind: ast.KindGlobal, GlobalTyp: &gt},
		}
		if err := p.appendImport(imp, clauses.line); err != nil {
			return err
		}
		p.globalIdx++
		for _, e := range clauses.exports {
			if err := p.addExport(e, ast.KindGlobal, idx, clauses.line); err != nil {
				return err
			}
		}
		return nil
	}

	init, err := p.parseInitializer()
	if err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}

	p.mod.Globals = append(p.mod.Globals, ast.Global{Type: gt, Init: init})
	p.defined[ast.KindGlobal] = true
	p.globalIdx++

	for _, e := range clauses.exports {
		if err := p.addExport(e, ast.KindGlobal, idx, p.line()); err != nil {
			return err
		}
	}
	return nil
}
