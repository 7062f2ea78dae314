package encoder

import (
	"github.com/wasmlab/watfront/internal/ast"
)

func writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.AppendByte(id)
	buf.WriteU32(uint32(len(content.Bytes)))
	buf.WriteBytes(content.Bytes)
}

func encodeTypeSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		sec.AppendByte(ast.FuncTypeMarker)
		sec.WriteU32(uint32(len(ft.Params)))
		for _, p := range ft.Params {
			sec.AppendByte(byte(p))
		}
		sec.WriteU32(uint32(len(ft.Results)))
		for _, r := range ft.Results {
			sec.AppendByte(byte(r))
		}
	}
	writeSection(buf, ast.SectionType, sec)
}

func encodeImportSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		sec.WriteString(imp.Module)
		sec.WriteString(imp.Name)
		sec.AppendByte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case ast.KindFunc:
			sec.WriteU32(imp.Desc.TypeIdx)
		case ast.KindTable:
			tt := imp.Desc.TableTyp
			sec.AppendByte(tt.ElemType)
			sec.WriteLimits(tt.Limits.Min, tt.Limits.Max)
		case ast.KindMemory:
			lim := imp.Desc.MemLimits
			sec.WriteLimits(lim.Min, lim.Max)
		case ast.KindGlobal:
			gt := imp.Desc.GlobalTyp
			sec.AppendByte(byte(gt.ValType))
			if gt.Mutable {
				sec.AppendByte(0x01)
			} else {
				sec.AppendByte(0x00)
			}
		}
	}
	writeSection(buf, ast.SectionImport, sec)
}

func encodeFuncSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		sec.WriteU32(f.TypeIdx)
	}
	writeSection(buf, ast.SectionFunc, sec)
}

func encodeTableSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		sec.AppendByte(t.ElemType)
		sec.WriteLimits(t.Limits.Min, t.Limits.Max)
	}
	writeSection(buf, ast.SectionTable, sec)
}

func encodeMemorySection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Memories)))
	for _, mem := range m.Memories {
		sec.WriteLimits(mem.Limits.Min, mem.Limits.Max)
	}
	writeSection(buf, ast.SectionMemory, sec)
}

func encodeGlobalSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		sec.AppendByte(byte(g.Type.ValType))
		if g.Type.Mutable {
			sec.AppendByte(0x01)
		} else {
			sec.AppendByte(0x00)
		}
		encodeExpr(sec, g.Init)
	}
	writeSection(buf, ast.SectionGlobal, sec)
}

func encodeExportSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		sec.WriteString(e.Name)
		sec.AppendByte(e.Kind)
		sec.WriteU32(e.Idx)
	}
	writeSection(buf, ast.SectionExport, sec)
}

func encodeStartSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(*m.Start)
	writeSection(buf, ast.SectionStart, sec)
}

// The 1.0 format has exactly one element segment shape: an active funcref
// segment with an offset expression and a run of function indices.
func encodeElemSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Elems)))
	for _, e := range m.Elems {
		sec.WriteU32(e.TableIdx)
		encodeExpr(sec, e.Offset)
		sec.WriteU32(uint32(len(e.Init)))
		for _, idx := range e.Init {
			sec.WriteU32(idx)
		}
	}
	writeSection(buf, ast.SectionElem, sec)
}

func encodeExpr(buf *Buffer, instrs []ast.Instr) {
	for _, ins := range instrs {
		EncodeInstr(buf, ins)
	}
}

func encodeCodeSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Code)))
	for _, c := range m.Code {
		code := &Buffer{}

		// Group consecutive locals of one type.
		var groups []struct {
			count uint32
			vt    ast.ValType
		}
		for _, l := range c.Locals {
			if len(groups) > 0 && groups[len(groups)-1].vt == l {
				groups[len(groups)-1].count++
			} else {
				groups = append(groups, struct {
					count uint32
					vt    ast.ValType
				}{1, l})
			}
		}

		code.WriteU32(uint32(len(groups)))
		for _, g := range groups {
			code.WriteU32(g.count)
			code.AppendByte(byte(g.vt))
		}

		for _, instr := range c.Code {
			EncodeInstr(code, instr)
		}

		sec.WriteU32(uint32(len(code.Bytes)))
		sec.WriteBytes(code.Bytes)
	}
	writeSection(buf, ast.SectionCode, sec)
}

func encodeDataSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteU32(uint32(len(m.Data)))
	for _, d := range m.Data {
		sec.WriteU32(d.MemIdx)
		encodeExpr(sec, d.Offset)
		sec.WriteU32(uint32(len(d.Init)))
		sec.WriteBytes(d.Init)
	}
	writeSection(buf, ast.SectionData, sec)
}

// encodeNameSection emits the custom "name" section: module name
// (subsection 0), function names (1), and local names (2, params first).
func encodeNameSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteString("name")

	if m.Name != "" {
		sub := &Buffer{}
		sub.WriteString(m.Name)
		sec.AppendByte(0)
		sec.WriteU32(uint32(len(sub.Bytes)))
		sec.WriteBytes(sub.Bytes)
	}

	numFuncImports := m.NumImports[ast.KindFunc]

	var funcNames []struct {
		idx  uint32
		name string
	}
	for i, body := range m.Code {
		if body.Name != "" {
			funcNames = append(funcNames, struct {
				idx  uint32
				name string
			}{numFuncImports + uint32(i), body.Name})
		}
	}
	if len(funcNames) > 0 {
		sub := &Buffer{}
		sub.WriteU32(uint32(len(funcNames)))
		for _, fn := range funcNames {
			sub.WriteU32(fn.idx)
			sub.WriteString(fn.name)
		}
		sec.AppendByte(1)
		sec.WriteU32(uint32(len(sub.Bytes)))
		sec.WriteBytes(sub.Bytes)
	}

	type localEntry struct {
		idx  uint32
		name string
	}
	var funcLocals []struct {
		fidx    uint32
		entries []localEntry
	}
	for i, body := range m.Code {
		var entries []localEntry
		for j, n := range body.ParamNames {
			if n != "" {
				entries = append(entries, localEntry{uint32(j), trimDollar(n)})
			}
		}
		base := uint32(len(body.ParamNames))
		for j, n := range body.LocalNames {
			if n != "" {
				entries = append(entries, localEntry{base + uint32(j), trimDollar(n)})
			}
		}
		if len(entries) > 0 {
			funcLocals = append(funcLocals, struct {
				fidx    uint32
				entries []localEntry
			}{numFuncImports + uint32(i), entries})
		}
	}
	if len(funcLocals) > 0 {
		sub := &Buffer{}
		sub.WriteU32(uint32(len(funcLocals)))
		for _, fl := range funcLocals {
			sub.WriteU32(fl.fidx)
			sub.WriteU32(uint32(len(fl.entries)))
			for _, e := range fl.entries {
				sub.WriteU32(e.idx)
				sub.WriteString(e.name)
			}
		}
		sec.AppendByte(2)
		sec.WriteU32(uint32(len(sub.Bytes)))
		sec.WriteBytes(sub.Bytes)
	}

	writeSection(buf, ast.SectionCustom, sec)
}

func trimDollar(s string) string {
	if len(s) > 0 && s[0] == '$' {
		return s[1:]
	}
	return s
}
