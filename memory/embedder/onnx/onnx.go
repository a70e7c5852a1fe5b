//go:build onnx

// Package onnx embeds text locally with a sentence-transformer exported to
// ONNX (all-MiniLM-L6-v2 by default). Build with -tags onnx.
package onnx

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/viterin/vek/vek32"
	ort "github.com/yalue/onnxruntime_go"
)

// maxSeqLen is the sequence length the model was exported with.
const maxSeqLen = 128

// Config configures the ONNX embedder.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string

	// ModelPath is the path to the ONNX model file. Required.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file. Required.
	TokenizerPath string

	// Dimensions is the embedding vector size.
	// Default: 384
	Dimensions int

	Logger logrus.FieldLogger
}

// Embedder generates embeddings with ONNX Runtime.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *Tokenizer
	dimensions int
	logger     logrus.FieldLogger
}

// New loads the model and tokenizer and starts an inference session.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("TokenizerPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	logger := cfg.Logger.WithField("component", "onnx")

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	logger.Infof("loaded model %s (%d dims)", cfg.ModelPath, cfg.Dimensions)

	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}, nil
}

// Embed converts text to a mean-pooled, unit-length embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputIDs, attentionMask := e.tokenizer.Encode(text, maxSeqLen)
	tokenTypeIDs := make([]int64, maxSeqLen)

	shape := ort.NewShape(1, maxSeqLen)
	var inputs []ort.Value
	for _, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	embedding, err := e.pool(hidden.GetData(), hidden.GetShape(), attentionMask)
	if err != nil {
		return nil, err
	}
	return normalize(embedding), nil
}

// pool reduces the model output to one vector. Outputs of shape
// [1, hidden] are already pooled; [1, seq, hidden] is mean-pooled over the
// attended tokens.
func (e *Embedder) pool(data []float32, shape ort.Shape, mask []int64) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("output dimension mismatch: got %d, expected %d", len(data), e.dimensions)
		}
		out := make([]float32, e.dimensions)
		copy(out, data[:e.dimensions])
		return out, nil
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != e.dimensions {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", hidden, e.dimensions)
		}
		out := make([]float32, hidden)
		var attended float32
		for i := 0; i < seqLen && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			vek32.Add_Inplace(out, data[i*hidden:(i+1)*hidden])
			attended++
		}
		if attended > 0 {
			vek32.DivNumber_Inplace(out, attended)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the inference session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func normalize(vec []float32) []float32 {
	norm := float32(math.Sqrt(float64(vek32.Dot(vec, vec))))
	if norm == 0 {
		return vec
	}
	vek32.DivNumber_Inplace(vec, norm)
	return vec
}
