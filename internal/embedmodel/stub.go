//go:build !onnx

package embedmodel

import (
	"context"
	"fmt"
)

// unavailableEmbedder is linked in when the module is built without the
// onnx tag (no CGO ONNX Runtime dependency available). Every call fails
// with ErrRuntime so callers degrade to lexical-only search and mark
// pending rows failed, per the EmbedError policy.
type unavailableEmbedder struct {
	dim int
}

func newONNXEmbedder(modelPath, tokenizerPath string, dim int) (Embedder, error) {
	if dim == 0 {
		dim = DefaultDimension
	}
	return &unavailableEmbedder{dim: dim}, nil
}

func (e *unavailableEmbedder) Dimension() int { return e.dim }
func (e *unavailableEmbedder) Close() error   { return nil }

func (e *unavailableEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: built without onnx runtime support", ErrRuntime)
}
