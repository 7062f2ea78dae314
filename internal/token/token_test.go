package token

import "testing"

func TestTokenizeBasic(t *testing.T) {
	tokens := Tokenize(`(module (func $add (param i32 i32) (result i32)))`)
	want := []struct {
		value string
		typ   Type
	}{
		{"(", LParen}, {"module", Ident},
		{"(", LParen}, {"func", Ident}, {"$add", Ident},
		{"(", LParen}, {"param", Ident}, {"i32", Ident}, {"i32", Ident}, {")", RParen},
		{"(", LParen}, {"result", Ident}, {"i32", Ident}, {")", RParen},
		{")", RParen}, {")", RParen},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, w := range want {
		if tokens[i].Value != w.value || tokens[i].Type != w.typ {
			t.Errorf("token %d: got %q/%v, want %q/%v", i, tokens[i].Value, tokens[i].Type, w.value, w.typ)
		}
	}
}

func TestTokenizeComments(t *testing.T) {
	tokens := Tokenize(";; line comment\n(module (; block (; nested ;) ;) )")
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens: %v", len(tokens), tokens)
	}
	if tokens[1].Value != "module" || tokens[1].Line != 2 {
		t.Errorf("got %q at line %d", tokens[1].Value, tokens[1].Line)
	}
}

func TestTokenizeUnclosedBlockComment(t *testing.T) {
	// A dangling block comment swallows the rest of the input; the parser
	// reports the resulting truncation.
	tokens := Tokenize("(module (; never closed")
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens: %v", len(tokens), tokens)
	}
}

func TestTokenizeStrings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\"b"`, `a\"b`},     // escaped quote stays raw
		{`"\00\ff"`, `\00\ff`}, // hex escapes stay raw
	}
	for _, tt := range tests {
		tokens := Tokenize(tt.src)
		if len(tokens) != 1 || tokens[0].Type != String {
			t.Fatalf("%q: got %v", tt.src, tokens)
		}
		if tokens[0].Value != tt.want {
			t.Errorf("%q: got %q, want %q", tt.src, tokens[0].Value, tt.want)
		}
	}
}

func TestTokenizeNumbers(t *testing.T) {
	tests := []struct {
		src string
		typ Type
	}{
		{"42", Number},
		{"-7", Number},
		{"+0x2_A", Number},
		{"1_000", Number},
		{"3.14", Number},
		{"1.5e10", Number},
		{"0x1.fp2", Number},
		{"6.28e-3", Number},
		{"-inf", Ident},
		{"+nan:0x400000", Ident},
		{"nan", Ident},
	}
	for _, tt := range tests {
		tokens := Tokenize(tt.src)
		if len(tokens) != 1 {
			t.Fatalf("%q: got %d tokens %v", tt.src, len(tokens), tokens)
		}
		if tokens[0].Type != tt.typ || tokens[0].Value != tt.src {
			t.Errorf("%q: got %q/%v, want type %v", tt.src, tokens[0].Value, tokens[0].Type, tt.typ)
		}
	}
}

func TestTokenizeNameAlphabet(t *testing.T) {
	src := "$a.b+c-d*e/f\\g^h~i=j<k>l!m?n@o#p&q|r:s't`u"
	tokens := Tokenize(src)
	if len(tokens) != 1 || tokens[0].Type != Ident || tokens[0].Value != src {
		t.Fatalf("got %v", tokens)
	}
}

func TestTokenizeMemargKeywords(t *testing.T) {
	tokens := Tokenize("i32.load offset=4 align=2")
	if len(tokens) != 3 {
		t.Fatalf("got %v", tokens)
	}
	if tokens[1].Value != "offset=4" || tokens[2].Value != "align=2" {
		t.Errorf("got %q %q", tokens[1].Value, tokens[2].Value)
	}
}

func TestTokenizeInvalidByte(t *testing.T) {
	tokens := Tokenize("(module) ,")
	last := tokens[len(tokens)-1]
	if last.Type != Invalid || last.Value != "," {
		t.Errorf("got %q/%v, want invalid ','", last.Value, last.Type)
	}
}
