package wat

import (
	"github.com/wasmlab/watfront/errors"
	"github.com/wasmlab/watfront/internal/encoder"
	"github.com/wasmlab/watfront/internal/parser"
	"github.com/wasmlab/watfront/internal/token"
)

// Compile translates WAT source into binary-format bytes.
func Compile(source string) ([]byte, error) {
	tokens := token.Tokenize(source)
	p := parser.New(tokens)
	mod, err := p.Parse()
	if err != nil {
		return nil, err
	}
	if p.Pos() != len(tokens) {
		return nil, errors.At(errors.ErrWatInvalidToken, tokens[p.Pos()].Line, "trailing %q", tokens[p.Pos()].Value)
	}
	return encoder.Encode(mod), nil
}
