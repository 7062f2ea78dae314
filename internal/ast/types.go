package ast

// Module mirrors the WebAssembly 1.0 binary format so the encoder can emit
// sections in order. Imports stay partitioned func -> table -> memory ->
// global; NumImports tracks the per-kind counts so index spaces can be
// computed without rescanning.
type Module struct {
	Name       string
	Types      []FuncType
	Imports    []Import
	Funcs      []FuncEntry
	Tables     []Table
	Memories   []Memory
	Globals    []Global
	Exports    []Export
	Start      *uint32
	Elems      []Elem
	Code       []FuncBody
	Data       []DataSegment
	NumImports [4]uint32 // indexed by Kind*
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range ft.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

type ImportDesc struct {
	GlobalTyp *GlobalType
	MemLimits *Limits
	TableTyp  *Table
	TypeIdx   uint32
	Kind      byte
}

type FuncEntry struct {
	TypeIdx uint32
}

type Table struct {
	Limits   Limits
	ElemType byte
}

type Memory struct {
	Limits Limits
}

type Limits struct {
	Max *uint32
	Min uint32
}

type Global struct {
	Init []Instr
	Type GlobalType
}

type GlobalType struct {
	ValType ValType
	Mutable bool
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Elem is an active element segment into table 0 (the only table kind in
// the 1.0 format).
type Elem struct {
	Offset   []Instr
	Init     []uint32
	TableIdx uint32
}

// FuncBody carries the flat instruction stream plus the optional debug
// names recorded for the custom name section.
type FuncBody struct {
	Name       string
	ParamNames []string
	LocalNames []string
	Locals     []ValType
	Code       []Instr
}

type DataSegment struct {
	Offset []Instr
	Init   []byte
	MemIdx uint32
}

// Instr is one flat instruction. Imm is discriminated by Opcode: uint32
// indices, int32/int64/float32/float64 constants, a block-type byte,
// Memarg, or BrTable.
type Instr struct {
	Imm    any
	Opcode byte
}

type Memarg struct {
	Align  uint32
	Offset uint32
}

// BrTable is the jump table immediate: Targets plus the default branch.
type BrTable struct {
	Targets []uint32
	Default uint32
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() uint32 {
	return m.NumImports[KindFunc] + uint32(len(m.Funcs))
}

// NumGlobals returns the size of the global index space.
func (m *Module) NumGlobals() uint32 {
	return m.NumImports[KindGlobal] + uint32(len(m.Globals))
}

// ImportedFunc returns the i-th function import's type index.
func (m *Module) ImportedFunc(i uint32) (uint32, bool) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if i == 0 {
			return imp.Desc.TypeIdx, true
		}
		i--
	}
	return 0, false
}

// TypeOfFunc resolves a function index to its signature's type index.
func (m *Module) TypeOfFunc(idx uint32) (uint32, bool) {
	if idx < m.NumImports[KindFunc] {
		return m.ImportedFunc(idx)
	}
	idx -= m.NumImports[KindFunc]
	if int(idx) >= len(m.Funcs) {
		return 0, false
	}
	return m.Funcs[idx].TypeIdx, true
}
