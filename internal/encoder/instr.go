package encoder

import (
	"github.com/wasmlab/watfront/internal/ast"
)

func EncodeInstr(buf *Buffer, ins ast.Instr) {
	buf.AppendByte(ins.Opcode)

	switch ins.Opcode {
	case ast.OpBr, ast.OpBrIf, ast.OpCall,
		ast.OpLocalGet, ast.OpLocalSet, ast.OpLocalTee,
		ast.OpGlobalGet, ast.OpGlobalSet:
		buf.WriteU32(ins.Imm.(uint32))

	case ast.OpI32Const:
		buf.WriteI32(ins.Imm.(int32))

	case ast.OpI64Const:
		buf.WriteI64(ins.Imm.(int64))

	case ast.OpF32Const:
		buf.WriteF32(ins.Imm.(float32))

	case ast.OpF64Const:
		buf.WriteF64(ins.Imm.(float64))

	case ast.OpBlock, ast.OpLoop, ast.OpIf:
		buf.AppendByte(ins.Imm.(byte))

	case ast.OpI32Load, ast.OpI64Load, ast.OpF32Load, ast.OpF64Load,
		ast.OpI32Load8S, ast.OpI32Load8U, ast.OpI32Load16S, ast.OpI32Load16U,
		ast.OpI64Load8S, ast.OpI64Load8U, ast.OpI64Load16S, ast.OpI64Load16U,
		ast.OpI64Load32S, ast.OpI64Load32U,
		ast.OpI32Store, ast.OpI64Store, ast.OpF32Store, ast.OpF64Store,
		ast.OpI32Store8, ast.OpI32Store16,
		ast.OpI64Store8, ast.OpI64Store16, ast.OpI64Store32:
		ma := ins.Imm.(ast.Memarg)
		buf.WriteU32(ma.Align)
		buf.WriteU32(ma.Offset)

	case ast.OpMemorySize, ast.OpMemoryGrow:
		// Reserved single-byte immediate.
		buf.AppendByte(0x00)

	case ast.OpBrTable:
		bt := ins.Imm.(ast.BrTable)
		buf.WriteU32(uint32(len(bt.Targets)))
		for _, target := range bt.Targets {
			buf.WriteU32(target)
		}
		buf.WriteU32(bt.Default)

	case ast.OpCallIndirect:
		buf.WriteU32(ins.Imm.(uint32))
		buf.AppendByte(0x00) // reserved table index
	}
}
