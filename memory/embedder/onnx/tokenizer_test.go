//go:build onnx

package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordPiece(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{
		"[UNK]":100,"[CLS]":101,"[SEP]":102,
		"play":1,"##ing":2,"cats":3,"!":4
	}}}`), 0o644))

	wp, err := loadWordPiece(path)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 1, 2, 4}, wp.tokenize("Cats playing!"))
	assert.Equal(t, []int64{100}, wp.tokenize("zebra"))
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"hello", ",", "world", "."}, splitWords("hello, world."))
	assert.Empty(t, splitWords("   "))
}
