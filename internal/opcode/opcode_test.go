package opcode

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		imm    ImmKind
	}{
		{"i32.add", 0x6A, ImmNone},
		{"local.get", 0x20, ImmU32},
		{"i64.const", 0x42, ImmI64},
		{"f64.sqrt", 0x9F, ImmNone},
		{"memory.grow", 0x40, ImmMemIdx},
	}
	for _, tt := range tests {
		info, ok := Lookup(tt.name)
		if !ok {
			t.Fatalf("%s not found", tt.name)
		}
		if info.Opcode != tt.opcode || info.ImmType != tt.imm {
			t.Errorf("%s: got %#x/%v", tt.name, info.Opcode, info.ImmType)
		}
	}
}

func TestLegacyAliases(t *testing.T) {
	pairs := [][2]string{
		{"get_local", "local.get"},
		{"set_global", "global.set"},
		{"grow_memory", "memory.grow"},
		{"i32.trunc_s/f64", "i32.trunc_f64_s"},
		{"f64.convert_u/i32", "f64.convert_i32_u"},
		{"i64.reinterpret/f64", "i64.reinterpret_f64"},
	}
	for _, p := range pairs {
		legacy, ok1 := Lookup(p[0])
		modern, ok2 := Lookup(p[1])
		if !ok1 || !ok2 {
			t.Fatalf("%v: lookup failed", p)
		}
		if legacy.Opcode != modern.Opcode {
			t.Errorf("%s -> %#x, %s -> %#x", p[0], legacy.Opcode, p[1], modern.Opcode)
		}
	}
}

func TestLookupMemoryNaturalAlign(t *testing.T) {
	tests := []struct {
		name  string
		align uint32
	}{
		{"i32.load8_u", 0},
		{"i32.load16_s", 1},
		{"f32.store", 2},
		{"i64.load", 3},
	}
	for _, tt := range tests {
		op, ok := LookupMemory(tt.name)
		if !ok {
			t.Fatalf("%s not found", tt.name)
		}
		if op.NaturalAlign != tt.align {
			t.Errorf("%s: natural align %d, want %d", tt.name, op.NaturalAlign, tt.align)
		}
	}
}

func TestStructuredFormsAbsent(t *testing.T) {
	// block/loop/if/end and call_indirect are parsed structurally, not
	// through the plain table.
	for _, name := range []string{"block", "loop", "if", "end", "else", "call_indirect", "br_table"} {
		if _, ok := Lookup(name); ok {
			t.Errorf("%s should not be in the plain table", name)
		}
	}
}
