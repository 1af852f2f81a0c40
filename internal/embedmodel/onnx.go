//go:build onnx

package embedmodel

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const maxSequenceLength = 128

// onnxEmbedder runs the bundled sentence encoder through an embedded
// ONNX Runtime session. ort sessions are not safe for concurrent Run
// calls, so every Embed call is serialized behind mu.
type onnxEmbedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
	dim       int
}

func newONNXEmbedder(modelPath, tokenizerPath string, dim int) (Embedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: model path required", ErrModelMissing)
	}
	if dim == 0 {
		dim = DefaultDimension
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	tok, err := loadWordPieceTokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load tokenizer: %v", ErrModelMissing, err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open session: %v", ErrRuntime, err)
	}

	return &onnxEmbedder{session: session, tokenizer: tok, dim: dim}, nil
}

func (e *onnxEmbedder) Dimension() int { return e.dim }

func (e *onnxEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

func (e *onnxEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := Validate(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, len(texts))
	cfg := DefaultRetryConfig()
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		text := text
		vec, err := retryWithBackoff(ctx, cfg, func() ([]float32, error) {
			return e.embedOne(text)
		})
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *onnxEmbedder) embedOne(text string) ([]float32, error) {
	tokens := e.tokenizer.Tokenize(text)

	inputIDs := make([]int64, maxSequenceLength)
	attentionMask := make([]int64, maxSequenceLength)
	tokenTypeIDs := make([]int64, maxSequenceLength)

	inputIDs[0] = int64(e.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > maxSequenceLength-2 {
		tokenLen = maxSequenceLength - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(e.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(maxSequenceLength))
	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	defer inputIDsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	defer tokenTypeIDsTensor.Destroy()

	inputs := []ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", ErrRuntime)
	}
	data := outTensor.GetData()
	shapeOut := outTensor.GetShape()

	var embedding []float32
	switch len(shapeOut) {
	case 2:
		if len(data) < e.dim {
			return nil, fmt.Errorf("%w: output dimension mismatch", ErrRuntime)
		}
		embedding = make([]float32, e.dim)
		copy(embedding, data[:e.dim])
	case 3:
		seqLen := int(shapeOut[1])
		hidden := int(shapeOut[2])
		if hidden != e.dim {
			return nil, fmt.Errorf("%w: hidden size mismatch", ErrRuntime)
		}
		embedding = make([]float32, e.dim)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				embedding[j] += data[offset+j]
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected output shape", ErrRuntime)
	}

	return l2Normalize(embedding), nil
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
