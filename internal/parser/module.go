package parser

import (
	"strings"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/token"
)

// Parse consumes one "(module ...)" form at the cursor and returns the
// resolved module. The body is walked three times: types first, then
// definitions, then the wiring forms (export/elem/data/start), after which
// deferred references are drained. This ordering is what lets any form
// refer to names declared later in the source.
func (p *Parser) Parse() (*ast.Module, error) {
	if err := p.expectOpen(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("module", errors.ErrWatExpectedModule); err != nil {
		return nil, err
	}

	p.mod = &ast.Module{}
	if t := p.peek(); isName(t) {
		p.mod.Name = strings.TrimPrefix(t.Value, "$")
		p.next()
	}

	if err := p.parseModuleBody(p.pos); err != nil {
		return nil, err
	}
	return p.mod, nil
}

func (p *Parser) parseModuleBody(body int) error {
	// Pass 1: types.
	err := p.pass(body, func(kw string, line int) (bool, error) {
		if kw == "type" {
			return true, p.parseType()
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	// Pass 2: definitions. Unknown fields surface here.
	err = p.pass(body, func(kw string, line int) (bool, error) {
		switch kw {
		case "import":
			return true, p.parseImport()
		case "func":
			return true, p.parseFunc()
		case "table":
			return true, p.parseTable()
		case "memory":
			return true, p.parseMemory()
		case "global":
			return true, p.parseGlobal()
		case "type", "export", "start", "elem", "data":
			return false, nil
		default:
			return false, errors.At(errors.ErrWatInvalidToken, line, "unknown module field %q", kw)
		}
	})
	if err != nil {
		return err
	}

	// Pass 3: wiring.
	err = p.pass(body, func(kw string, line int) (bool, error) {
		switch kw {
		case "export":
			return true, p.parseExport()
		case "start":
			return true, p.parseStart()
		case "elem":
			return true, p.parseElem()
		case "data":
			return true, p.parseData()
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	if err := p.expectClose(); err != nil {
		return err
	}

	if err := p.resolvePendingElems(); err != nil {
		return err
	}
	if err := p.resolveDeferred(); err != nil {
		return err
	}
	return p.checkIndices()
}

// pass walks the top-level forms of the module body from start. The
// dispatch callback reports whether it consumed the form through its
// closing paren; unhandled forms are skipped with a depth counter. The
// module's own closing paren is left at the cursor.
func (p *Parser) pass(start int, dispatch func(kw string, line int) (bool, error)) error {
	p.pos = start
	for {
		t := p.peek()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "module body")
		}
		if t.Type == token.RParen {
			return nil
		}
		if err := p.expectOpen(); err != nil {
			return err
		}
		kw, err := p.expect(token.Ident, errors.ErrWatExpectedToken)
		if err != nil {
			return err
		}
		handled, err := dispatch(kw.Value, kw.Line)
		if err != nil {
			return err
		}
		if !handled {
			if err := p.skipRest(); err != nil {
				return err
			}
		}
	}
}

// skipRest consumes tokens up to and including the closing paren of the
// form whose open paren and keyword were already read.
func (p *Parser) skipRest() error {
	depth := 1
	for depth > 0 {
		t := p.next()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "unbalanced '('")
		}
		switch t.Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		}
	}
	return nil
}

func (p *Parser) parseType() error {
	var name *token.Token
	if t := p.peek(); isName(t) {
		name = t
		p.next()
	}

	if err := p.expectOpen(); err != nil {
		return err
	}
	if err := p.expectKeyword("func", errors.ErrWatExpectedFunc); err != nil {
		return err
	}

	ft := ast.FuncType{}
	if err := p.parseFuncSig(&ft, nil); err != nil {
		return err
	}

	if err := p.expectClose(); err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}

	if name != nil {
		if err := p.types.insert(name.Value, name.Line, uint32(len(p.mod.Types))); err != nil {
			return err
		}
	}
	p.mod.Types = append(p.mod.Types, ft)
	return nil
}

// parseFuncSig reads zero or more (param ...) clauses followed by at most
// one result. Params may not follow results, and more than one result
// value is rejected. When paramNames is non-nil, single-name params record
// their name (empty for anonymous positions).
func (p *Parser) parseFuncSig(ft *ast.FuncType, paramNames *[]string) error {
	sawResult := false
	for {
		t := p.peek()
		if t == nil || t.Type != token.LParen {
			return nil
		}
		kw := p.peek2()
		if kw == nil || kw.Type != token.Ident {
			return nil
		}
		switch kw.Value {
		case "param":
			if sawResult {
				return errors.At(errors.ErrWatParamAfterResult, kw.Line, "")
			}
			p.next()
			p.next()
			if err := p.parseParams(ft, paramNames); err != nil {
				return err
			}
		case "result":
			sawResult = true
			p.next()
			p.next()
			if err := p.parseResults(ft); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *Parser) parseParams(ft *ast.FuncType, paramNames *[]string) error {
	if t := p.peek(); isName(t) {
		// A named param clause declares exactly one parameter.
		p.next()
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		ft.Params = append(ft.Params, vt)
		if paramNames != nil {
			*paramNames = append(*paramNames, t.Value)
		}
		return p.expectClose()
	}
	for {
		t := p.peek()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "param")
		}
		if t.Type == token.RParen {
			p.next()
			return nil
		}
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		ft.Params = append(ft.Params, vt)
		if paramNames != nil {
			*paramNames = append(*paramNames, "")
		}
	}
}

func (p *Parser) parseResults(ft *ast.FuncType) error {
	for {
		t := p.peek()
		if t == nil {
			return errors.New(errors.ErrParseUnexpectedEOF, "result")
		}
		if t.Type == token.RParen {
			p.next()
			return nil
		}
		vt, err := p.parseValType()
		if err != nil {
			return err
		}
		ft.Results = append(ft.Results, vt)
		if len(ft.Results) > 1 {
			return errors.At(errors.ErrMultipleReturnValues, t.Line, "")
		}
	}
}

// parseTypeUse resolves an optional (type $t) annotation plus inline
// param/result clauses into a type index. Inline clauses combined with an
// annotation must match the referenced signature structurally.
func (p *Parser) parseTypeUse(paramNames *[]string) (uint32, ast.FuncType, error) {
	hasType := false
	var typeIdx uint32
	if t := p.peek(); t != nil && t.Type == token.LParen {
		if kw := p.peek2(); kw != nil && kw.Type == token.Ident && kw.Value == "type" {
			p.next()
			p.next()
			idx, err := p.parseIdx(p.types)
			if err != nil {
				return 0, ast.FuncType{}, err
			}
			if err := p.expectClose(); err != nil {
				return 0, ast.FuncType{}, err
			}
			if int(idx) >= len(p.mod.Types) {
				return 0, ast.FuncType{}, errors.At(errors.ErrWatInvalidType, p.line(), "type %d", idx)
			}
			typeIdx = idx
			hasType = true
		}
	}

	ft := ast.FuncType{}
	if err := p.parseFuncSig(&ft, paramNames); err != nil {
		return 0, ast.FuncType{}, err
	}

	if hasType {
		if len(ft.Params) > 0 || len(ft.Results) > 0 {
			if !p.mod.Types[typeIdx].Equal(ft) {
				return 0, ast.FuncType{}, errors.At(errors.ErrWatTypeMismatch, p.line(), "inline signature disagrees with type %d", typeIdx)
			}
		}
		return typeIdx, p.mod.Types[typeIdx], nil
	}
	return p.findOrAddType(ft), ft, nil
}

// appendImport inserts an import keeping the section partitioned
// func -> table -> memory -> global. An import arriving after a same-kind
// definition violates the binary section ordering.
func (p *Parser) appendImport(imp ast.Import, line int) error {
	k := imp.Desc.Kind
	if p.defined[k] {
		return errors.At(errors.ErrWatInvalidImportOrder, line, "%s import after definition", kindName(k))
	}
	at := 0
	for i := byte(0); i <= k; i++ {
		at += int(p.mod.NumImports[i])
	}
	p.mod.Imports = append(p.mod.Imports, ast.Import{})
	copy(p.mod.Imports[at+1:], p.mod.Imports[at:])
	p.mod.Imports[at] = imp
	p.mod.NumImports[k]++
	return nil
}

func kindName(k byte) string {
	switch k {
	case ast.KindFunc:
		return "func"
	case ast.KindTable:
		return "table"
	case ast.KindMemory:
		return "memory"
	case ast.KindGlobal:
		return "global"
	}
	return "unknown"
}

func (p *Parser) parseImport() error {
	modTok, err := p.expect(token.String, errors.ErrWatExpectedString)
	if err != nil {
		return err
	}
	nameTok, err := p.expect(token.String, errors.ErrWatExpectedString)
	if err != nil {
		return err
	}
	modName, err := DecodeString(modTok.Value, modTok.Line)
	if err != nil {
		return err
	}
	entName, err := DecodeString(nameTok.Value, nameTok.Line)
	if err != nil {
		return err
	}

	if err := p.expectOpen(); err != nil {
		return err
	}
	kind, err := p.expect(token.Ident, errors.ErrWatExpectedKind)
	if err != nil {
		return err
	}

	imp := ast.Import{Module: string(modName), Name: string(entName)}

	switch kind.Value {
	case "func":
		if t := p.peek(); isName(t) {
			p.next()
			if err := p.funcs.insert(t.Value, t.Line, p.funcIdx); err != nil {
				return err
			}
		}
		typeIdx, _, err := p.parseTypeUse(nil)
		if err != nil {
			return err
		}
		imp.Desc.Kind = ast.KindFunc
		imp.Desc.TypeIdx = typeIdx
		if err := p.expectClose(); err != nil {
			return err
		}
		if err := p.appendImport(imp, kind.Line); err != nil {
			return err
		}
		p.funcIdx++

	case "table":
		if t := p.peek(); isName(t) {
			p.next()
			if err := p.tables.insert(t.Value, t.Line, p.tableIdx); err != nil {
				return err
			}
		}
		tbl, err := p.parseTableType()
		if err != nil {
			return err
		}
		imp.Desc.Kind = ast.KindTable
		imp.Desc.TableTyp = &tbl
		if err := p.expectClose(); err != nil {
			return err
		}
		if err := p.appendImport(imp, kind.Line); err != nil {
			return err
		}
		p.tableIdx++

	case "memory":
		if t := p.peek(); isName(t) {
			p.next()
			if err := p.mems.insert(t.Value, t.Line, p.memIdx); err != nil {
				return err
			}
		}
		lim, err := p.parseLimits()
		if err != nil {
			return err
		}
		imp.Desc.Kind = ast.KindMemory
		imp.Desc.MemLimits = &lim
		if err := p.expectClose(); err != nil {
			return err
		}
		if err := p.appendImport(imp, kind.Line); err != nil {
			return err
		}
		p.memIdx++

	case "global":
		if t := p.peek(); isName(t) {
			p.next()
			if err := p.globals.insert(t.Value, t.Line, p.globalIdx); err != nil {
				return err
			}
		}
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		imp.Desc.Kind = ast.KindGlobal
		imp.Desc.GlobalTyp = &gt
		if err := p.expectClose(); err != nil {
			return err
		}
		if err := p.appendImport(imp, kind.Line); err != nil {
			return err
		}
		p.globalIdx++

	default:
		return errors.At(errors.ErrWatExpectedKind, kind.Line, "got %q", kind.Value)
	}

	return p.expectClose()
}

func (p *Parser) parseLimits() (ast.Limits, error) {
	lim := ast.Limits{}
	minVal, err := p.parseU32()
	if err != nil {
		return lim, err
	}
	lim.Min = minVal
	if t := p.peek(); t != nil && t.Type == token.Number {
		maxVal, err := p.parseU32()
		if err != nil {
			return lim, err
		}
		lim.Max = &maxVal
	}
	return lim, nil
}

// parseTableType reads "limits elemtype". Both "anyfunc" (the 1.0 text
// spelling) and "funcref" name the only element type.
func (p *Parser) parseTableType() (ast.Table, error) {
	lim, err := p.parseLimits()
	if err != nil {
		return ast.Table{}, err
	}
	t, err := p.expect(token.Ident, errors.ErrWatExpectedFuncref)
	if err != nil {
		return ast.Table{}, err
	}
	if t.Value != "anyfunc" && t.Value != "funcref" {
		return ast.Table{}, errors.At(errors.ErrWatExpectedFuncref, t.Line, "got %q", t.Value)
	}
	return ast.Table{ElemType: ast.RefTypeFuncref, Limits: lim}, nil
}

func (p *Parser) parseGlobalType() (ast.GlobalType, error) {
	gt := ast.GlobalType{}
	if t := p.peek(); t != nil && t.Type == token.LParen {
		p.next()
		if err := p.expectKeyword("mut", errors.ErrWatExpectedMut); err != nil {
			return gt, err
		}
		vt, err := p.parseValType()
		if err != nil {
			return gt, err
		}
		gt.ValType = vt
		gt.Mutable = true
		return gt, p.expectClose()
	}
	vt, err := p.parseValType()
	if err != nil {
		return gt, err
	}
	gt.ValType = vt
	return gt, nil
}

func (p *Parser) parseExport() error {
	nameTok, err := p.expect(token.String, errors.ErrWatExpectedString)
	if err != nil {
		return err
	}
	name, err := DecodeString(nameTok.Value, nameTok.Line)
	if err != nil {
		return err
	}

	if err := p.expectOpen(); err != nil {
		return err
	}
	kind, err := p.expect(token.Ident, errors.ErrWatExpectedKind)
	if err != nil {
		return err
	}

	var kindByte byte
	var ns *symbols
	switch kind.Value {
	case "func":
		kindByte, ns = ast.KindFunc, p.funcs
	case "table":
		kindByte, ns = ast.KindTable, p.tables
	case "memory":
		kindByte, ns = ast.KindMemory, p.mems
	case "global":
		kindByte, ns = ast.KindGlobal, p.globals
	default:
		return errors.At(errors.ErrWatExpectedKind, kind.Line, "got %q", kind.Value)
	}

	idx, err := p.parseIdx(ns)
	if err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}
	if err := p.expectClose(); err != nil {
		return err
	}
	return p.addExport(string(name), kindByte, idx, nameTok.Line)
}

func (p *Parser) addExport(name string, kind byte, idx uint32, line int) error {
	for _, e := range p.mod.Exports {
		if e.Name == name {
			return errors.At(errors.ErrFatalDuplicateExport, line, "%q", name)
		}
	}
	p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Kind: kind, Idx: idx})
	return nil
}

func (p *Parser) parseStart() error {
	if p.mod.Start != nil {
		return errors.At(errors.ErrWatInvalidToken, p.line(), "redundant start")
	}
	idx, err := p.parseIdx(p.funcs)
	if err != nil {
		return err
	}
	if idx >= p.mod.NumFuncs() {
		return errors.At(errors.ErrInvalidFunctionIndex, p.line(), "start %d", idx)
	}
	p.mod.Start = &idx
	return p.expectClose()
}
