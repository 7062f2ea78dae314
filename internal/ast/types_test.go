package ast

import "testing"

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValType{ValTypeI32, ValTypeI64}, Results: []ValType{ValTypeF32}}
	b := FuncType{Params: []ValType{ValTypeI32, ValTypeI64}, Results: []ValType{ValTypeF32}}
	if !a.Equal(b) {
		t.Error("identical signatures should be equal")
	}
	c := FuncType{Params: []ValType{ValTypeI64, ValTypeI32}, Results: []ValType{ValTypeF32}}
	if a.Equal(c) {
		t.Error("param order must matter")
	}
	d := FuncType{Params: a.Params}
	if a.Equal(d) {
		t.Error("result arity must matter")
	}
}

func TestTypeOfFunc(t *testing.T) {
	m := &Module{
		Types: []FuncType{
			{},
			{Params: []ValType{ValTypeI32}},
		},
		Imports: []Import{
			{Module: "env", Name: "f", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 1}},
		},
		Funcs: []FuncEntry{{TypeIdx: 0}},
	}
	m.NumImports[KindFunc] = 1

	if got, ok := m.TypeOfFunc(0); !ok || got != 1 {
		t.Errorf("imported func: got %d/%v", got, ok)
	}
	if got, ok := m.TypeOfFunc(1); !ok || got != 0 {
		t.Errorf("defined func: got %d/%v", got, ok)
	}
	if _, ok := m.TypeOfFunc(2); ok {
		t.Error("out of range index resolved")
	}
	if m.NumFuncs() != 2 {
		t.Errorf("NumFuncs = %d", m.NumFuncs())
	}
}
