package watfront

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmlab/watfront/engine"
	"github.com/wasmlab/watfront/wast"
	"github.com/wasmlab/watfront/wat"
)

// Compile translates WAT source into binary-format bytes.
func Compile(source string) ([]byte, error) {
	return wat.Compile(source)
}

// RunScript evaluates a test-suite script with a throwaway engine. Pass a
// logger to see per-directive progress; nil keeps it quiet.
func RunScript(ctx context.Context, source string, log *zap.Logger) (wast.Summary, error) {
	eng, err := engine.New(ctx, nil)
	if err != nil {
		return wast.Summary{}, err
	}
	defer eng.Close(ctx)
	return wast.New(eng, log).Run(ctx, source)
}
