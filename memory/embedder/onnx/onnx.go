//go:build onnx

// Package onnx runs a sentence-transformer (all-MiniLM-L6-v2 by default)
// locally through ONNX Runtime. Build with -tags onnx and point
// Config.SharedLibraryPath at libonnxruntime.
package onnx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultDimensions = 384
	defaultMaxTokens  = 128
)

// Config configures the embedder.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string

	// TokenizerPath is the Hugging Face tokenizer.json next to the model.
	TokenizerPath string

	// SharedLibraryPath locates libonnxruntime. Empty uses the loader's
	// default search path.
	SharedLibraryPath string

	// Dimensions is the hidden size (default: 384).
	Dimensions int

	// MaxTokens is the sequence length including [CLS] and [SEP]
	// (default: 128).
	MaxTokens int

	Logger logrus.FieldLogger
}

// Embedder mean-pools the model's last hidden state into a unit vector.
// ONNX sessions are not safe for concurrent Run calls, so Embed serialises.
type Embedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPiece
	dims      int
	maxTokens int
	log       logrus.FieldLogger
}

var initOnce struct {
	sync.Once
	err error
}

// New loads the tokenizer and model.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, errors.New("onnx: tokenizer path is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultDimensions
	}
	if cfg.MaxTokens <= 2 {
		cfg.MaxTokens = defaultMaxTokens
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "onnx")

	initOnce.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		initOnce.err = ort.InitializeEnvironment()
	})
	if initOnce.err != nil {
		return nil, fmt.Errorf("onnx: initialize runtime: %w", initOnce.err)
	}

	tok, err := loadWordPiece(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	log.WithFields(logrus.Fields{
		"model":      cfg.ModelPath,
		"dimensions": cfg.Dimensions,
		"vocab":      len(tok.vocab),
	}).Info("onnx embedder ready")

	return &Embedder{
		session:   session,
		tokenizer: tok,
		dims:      cfg.Dimensions,
		maxTokens: cfg.MaxTokens,
		log:       log,
	}, nil
}

// Embed converts text to a normalized embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.encode(text)
	seqLen := int64(len(ids))
	shape := ort.NewShape(1, seqLen)

	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, make([]int64, seqLen))
	if err != nil {
		return nil, fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err = e.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
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
		return nil, fmt.Errorf("onnx: unexpected output type %T", outputs[0])
	}

	vec, err := e.pool(hidden.GetData(), hidden.GetShape(), mask)
	if err != nil {
		return nil, err
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// encode returns [CLS] tokens [SEP] and the matching attention mask.
func (e *Embedder) encode(text string) (ids, mask []int64) {
	tokens := e.tokenizer.tokenize(text)
	if len(tokens) > e.maxTokens-2 {
		tokens = tokens[:e.maxTokens-2]
	}

	ids = make([]int64, 0, len(tokens)+2)
	ids = append(ids, e.tokenizer.cls)
	ids = append(ids, tokens...)
	ids = append(ids, e.tokenizer.sep)

	mask = make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask
}

// pool handles both pre-pooled [1, D] and token-level [1, T, D] outputs.
func (e *Embedder) pool(data []float32, shape ort.Shape, mask []int64) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < e.dims {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), e.dims)
		}
		vec := make([]float32, e.dims)
		copy(vec, data[:e.dims])
		return vec, nil

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("onnx: batch size %d, want 1", shape[0])
		}
		if shape[2] != int64(e.dims) {
			return nil, fmt.Errorf("onnx: hidden size %d, want %d", shape[2], e.dims)
		}
		seqLen := int(shape[1])
		vec := make([]float32, e.dims)
		var attended float32
		for i := 0; i < seqLen && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*e.dims : (i+1)*e.dims]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended == 0 {
			return nil, errors.New("onnx: no attended tokens")
		}
		for j := range vec {
			vec[j] /= attended
		}
		return vec, nil
	}
	return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

// wordPiece is an uncased BERT tokenizer reading the vocabulary from a
// Hugging Face tokenizer.json.
type wordPiece struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

func loadWordPiece(path string) (*wordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, errors.New("vocabulary is empty")
	}

	wp := &wordPiece{vocab: doc.Model.Vocab, cls: 101, sep: 102, unk: 100}
	if id, ok := wp.vocab["[CLS]"]; ok {
		wp.cls = id
	}
	if id, ok := wp.vocab["[SEP]"]; ok {
		wp.sep = id
	}
	if id, ok := wp.vocab["[UNK]"]; ok {
		wp.unk = id
	}
	return wp, nil
}

func (w *wordPiece) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		ids = append(ids, w.pieces(word)...)
	}
	return ids
}

// pieces splits one word greedily into the longest vocabulary prefixes.
// A word with any unmatched remainder becomes a single [UNK].
func (w *wordPiece) pieces(word string) []int64 {
	if id, ok := w.vocab[word]; ok {
		return []int64{id}
	}

	var ids []int64
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		var match int64 = -1
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := w.vocab[sub]; ok {
				match = id
				break
			}
		}
		if match < 0 {
			return []int64{w.unk}
		}
		ids = append(ids, match)
		start = end
	}
	return ids
}

// splitWords separates on whitespace and isolates punctuation, as BERT's
// basic tokenizer does.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
