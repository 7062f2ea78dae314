package parser

import (
	"bytes"
	"math"
	"testing"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/token"
)

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"plain", "hello", []byte("hello")},
		{"newline_tab", `a\nb\tc`, []byte("a\nb\tc")},
		{"quotes", `\"\'\\`, []byte(`"'\`)},
		{"hex_bytes", `\00\fF\2a`, []byte{0x00, 0xFF, 0x2A}},
		{"unicode_ascii", `\u{41}`, []byte("A")},
		{"unicode_bmp", `\u{263a}`, []byte("☺")},
		{"unicode_astral", `\u{1F600}`, []byte("\U0001F600")},
		{"raw_utf8", "☺", []byte("☺")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeString(tt.in, 1)
			if err != nil {
				t.Fatalf("DecodeString(%q): %v", tt.in, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeString(%q) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeStringBadEscape(t *testing.T) {
	for _, in := range []string{`\q`, `\`, `\u41`, `\u{}`, `\u{dead}`, `\u{110000}`, `\0`} {
		_, err := DecodeString(in, 3)
		if !errors.HasCode(err, errors.ErrWatBadEscape) {
			t.Errorf("DecodeString(%q): got %v, want bad escape", in, err)
		}
	}
}

func TestFloatSpecials(t *testing.T) {
	tests := []struct {
		in   string
		bits uint32
	}{
		{"inf", 0x7F800000},
		{"-inf", 0xFF800000},
		{"nan", 0x7FC00000},
		{"-nan", 0xFFC00000},
		{"nan:0x200000", 0x7FA00000},
		{"+nan:0x7fffff", 0x7FFFFFFF},
	}
	for _, tt := range tests {
		bits, ok := floatSpecial32(tt.in)
		if !ok {
			t.Fatalf("floatSpecial32(%q) not recognized", tt.in)
		}
		if bits != tt.bits {
			t.Errorf("floatSpecial32(%q) = %#x, want %#x", tt.in, bits, tt.bits)
		}
	}

	bits64, ok := floatSpecial64("-nan:0x4000000000000")
	if !ok || bits64 != 0xFFF4000000000000 {
		t.Errorf("floatSpecial64 payload = %#x", bits64)
	}
}

func TestFloatSpecialRejectsBadPayload(t *testing.T) {
	if _, ok := floatSpecial32("nan:0x800000"); ok {
		t.Error("payload above the fraction width should be rejected")
	}
	if _, ok := floatSpecial32("nan:0x0"); ok {
		t.Error("zero payload should be rejected")
	}
}

func newAt(src string) *Parser {
	return New(token.Tokenize(src))
}

func TestParseConst(t *testing.T) {
	vt, bits, err := newAt("(f32.const -0)").ParseConst()
	if err != nil {
		t.Fatal(err)
	}
	if uint32(bits) != 0x80000000 {
		t.Errorf("f32 -0 bits %#x", bits)
	}
	_ = vt

	vt, bits, err = newAt("(i64.const -1)").ParseConst()
	if err != nil {
		t.Fatal(err)
	}
	if bits != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("i64 -1 bits %#x", bits)
	}
	_ = vt

	_, bits, err = newAt("(f64.const 1.5)").ParseConst()
	if err != nil {
		t.Fatal(err)
	}
	if math.Float64frombits(bits) != 1.5 {
		t.Errorf("f64 1.5 bits %#x", bits)
	}
}

func TestParseConstHexFloat(t *testing.T) {
	_, bits, err := newAt("(f64.const 0x1.8p2)").ParseConst()
	if err != nil {
		t.Fatal(err)
	}
	if math.Float64frombits(bits) != 6.0 {
		t.Errorf("0x1.8p2 = %v", math.Float64frombits(bits))
	}
}

func TestParseConstRejectsNonConst(t *testing.T) {
	_, _, err := newAt("(local.get 0)").ParseConst()
	if !errors.HasCode(err, errors.ErrInvalidInitializer) {
		t.Errorf("got %v", err)
	}
}

func TestUnderscoreSeparators(t *testing.T) {
	p := newAt("(module (func (drop (i32.const 1_000_000)) (drop (i64.const 0xDE_AD))))")
	m, err := p.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if m.Code[0].Code[0].Imm.(int32) != 1000000 {
		t.Errorf("i32 with separators: %v", m.Code[0].Code[0].Imm)
	}
	if m.Code[0].Code[2].Imm.(int64) != 0xDEAD {
		t.Errorf("i64 hex with separators: %v", m.Code[0].Code[2].Imm)
	}
}
