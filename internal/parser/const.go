package parser

import (
	"math"

	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/ast"
	"github.com/wasmlab/watfront/internal/token"
)

// ParseConst reads one parenthesized scalar constant, as used for script
// action arguments and expected values. The bits are normalized to the
// binary interpretation of the value: i32 and f32 occupy the low 32 bits.
func (p *Parser) ParseConst() (ast.ValType, uint64, error) {
	if err := p.expectOpen(); err != nil {
		return 0, 0, err
	}
	t, err := p.expect(token.Ident, errors.ErrWatExpectedOperator)
	if err != nil {
		return 0, 0, err
	}

	var vt ast.ValType
	var bits uint64
	switch t.Value {
	case "i32.const":
		v, err := p.parseI32()
		if err != nil {
			return 0, 0, err
		}
		vt, bits = ast.ValTypeI32, uint64(uint32(v))
	case "i64.const":
		v, err := p.parseI64()
		if err != nil {
			return 0, 0, err
		}
		vt, bits = ast.ValTypeI64, uint64(v)
	case "f32.const":
		v, err := p.parseF32()
		if err != nil {
			return 0, 0, err
		}
		vt, bits = ast.ValTypeF32, uint64(math.Float32bits(v))
	case "f64.const":
		v, err := p.parseF64()
		if err != nil {
			return 0, 0, err
		}
		vt, bits = ast.ValTypeF64, math.Float64bits(v)
	default:
		return 0, 0, errors.At(errors.ErrInvalidInitializer, t.Line, "%s", t.Value)
	}

	if err := p.expectClose(); err != nil {
		return 0, 0, err
	}
	return vt, bits, nil
}
