package encoder

import (
	"bytes"
	"testing"

	"github.com/wasmlab/watfront/internal/ast"
)

func TestLEB128(t *testing.T) {
	u32 := func(v uint32) []byte {
		b := &Buffer{}
		b.WriteU32(v)
		return b.Bytes
	}
	i32 := func(v int32) []byte {
		b := &Buffer{}
		b.WriteI32(v)
		return b.Bytes
	}
	i64 := func(v int64) []byte {
		b := &Buffer{}
		b.WriteI64(v)
		return b.Bytes
	}

	tests := []struct {
		got  []byte
		want []byte
	}{
		{u32(0), []byte{0x00}},
		{u32(127), []byte{0x7F}},
		{u32(128), []byte{0x80, 0x01}},
		{u32(624485), []byte{0xE5, 0x8E, 0x26}},
		{i32(0), []byte{0x00}},
		{i32(-1), []byte{0x7F}},
		{i32(63), []byte{0x3F}},
		{i32(64), []byte{0xC0, 0x00}},
		{i32(-64), []byte{0x40}},
		{i32(-123456), []byte{0xC0, 0xBB, 0x78}},
		{i64(-1), []byte{0x7F}},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Errorf("got % x, want % x", tt.got, tt.want)
		}
	}
}

func TestEncodeEmptyModule(t *testing.T) {
	bin := Encode(&ast.Module{})
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(bin, want) {
		t.Errorf("got % x", bin)
	}
}

func TestEncodeSimpleFunction(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{{
			Params:  []ast.ValType{ast.ValTypeI32, ast.ValTypeI32},
			Results: []ast.ValType{ast.ValTypeI32},
		}},
		Funcs: []ast.FuncEntry{{TypeIdx: 0}},
		Exports: []ast.Export{
			{Name: "add", Kind: ast.KindFunc, Idx: 0},
		},
		Code: []ast.FuncBody{{
			Code: []ast.Instr{
				{Opcode: ast.OpLocalGet, Imm: uint32(0)},
				{Opcode: ast.OpLocalGet, Imm: uint32(1)},
				{Opcode: ast.OpI32Add},
				{Opcode: ast.OpEnd},
			},
		}},
	}
	bin := Encode(m)

	// type section: 01 07 01 60 02 7F 7F 01 7F
	typeSec := []byte{0x01, 0x07, 0x01, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F}
	if !bytes.Contains(bin, typeSec) {
		t.Errorf("type section missing from % x", bin)
	}
	// code body: 20 00 20 01 6A 0B
	body := []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B}
	if !bytes.Contains(bin, body) {
		t.Errorf("code body missing from % x", bin)
	}
	// export section entry: "add" kind 0 idx 0
	exp := append([]byte{0x03}, []byte("add")...)
	exp = append(exp, 0x00, 0x00)
	if !bytes.Contains(bin, exp) {
		t.Errorf("export entry missing from % x", bin)
	}
}

func TestEncodeInstrImmediates(t *testing.T) {
	tests := []struct {
		name string
		ins  ast.Instr
		want []byte
	}{
		{"i32.const", ast.Instr{Opcode: ast.OpI32Const, Imm: int32(-2)}, []byte{0x41, 0x7E}},
		{"f32.const", ast.Instr{Opcode: ast.OpF32Const, Imm: float32(1)}, []byte{0x43, 0x00, 0x00, 0x80, 0x3F}},
		{"block_void", ast.Instr{Opcode: ast.OpBlock, Imm: ast.BlockTypeEmpty}, []byte{0x02, 0x40}},
		{"if_i32", ast.Instr{Opcode: ast.OpIf, Imm: byte(ast.ValTypeI32)}, []byte{0x04, 0x7F}},
		{"memory_grow", ast.Instr{Opcode: ast.OpMemoryGrow, Imm: nil}, []byte{0x40, 0x00}},
		{"load", ast.Instr{Opcode: ast.OpI32Load, Imm: ast.Memarg{Align: 2, Offset: 8}}, []byte{0x28, 0x02, 0x08}},
		{"call_indirect", ast.Instr{Opcode: ast.OpCallIndirect, Imm: uint32(3)}, []byte{0x11, 0x03, 0x00}},
		{
			"br_table",
			ast.Instr{Opcode: ast.OpBrTable, Imm: ast.BrTable{Targets: []uint32{1, 0}, Default: 2}},
			[]byte{0x0E, 0x02, 0x01, 0x00, 0x02},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &Buffer{}
			EncodeInstr(buf, tt.ins)
			if !bytes.Equal(buf.Bytes, tt.want) {
				t.Errorf("got % x, want % x", buf.Bytes, tt.want)
			}
		})
	}
}

func TestEncodeNameSection(t *testing.T) {
	m := &ast.Module{
		Name:  "m",
		Types: []ast.FuncType{{}},
		Funcs: []ast.FuncEntry{{TypeIdx: 0}},
		Code: []ast.FuncBody{{
			Name: "main",
			Code: []ast.Instr{{Opcode: ast.OpEnd}},
		}},
	}
	bin := Encode(m)
	if !bytes.Contains(bin, append([]byte{0x04}, []byte("name")...)) {
		t.Errorf("name section missing from % x", bin)
	}
	if !bytes.Contains(bin, append([]byte{0x04}, []byte("main")...)) {
		t.Errorf("function name missing from % x", bin)
	}
}

func TestEncodeLocalsGrouped(t *testing.T) {
	m := &ast.Module{
		Types: []ast.FuncType{{}},
		Funcs: []ast.FuncEntry{{TypeIdx: 0}},
		Code: []ast.FuncBody{{
			Locals: []ast.ValType{ast.ValTypeI32, ast.ValTypeI32, ast.ValTypeF64},
			Code:   []ast.Instr{{Opcode: ast.OpEnd}},
		}},
	}
	bin := Encode(m)
	// two local groups: 2 x i32, 1 x f64
	groups := []byte{0x02, 0x02, 0x7F, 0x01, 0x7C}
	if !bytes.Contains(bin, groups) {
		t.Errorf("local groups missing from % x", bin)
	}
}
