//go:build onnx

package setup

import (
	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-memory/memory/embedder/onnx"
)

func openONNX(cfg EmbedderConfig, log logrus.FieldLogger) (*onnx.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:         cfg.ONNX.ModelPath,
		TokenizerPath:     cfg.ONNX.TokenizerPath,
		SharedLibraryPath: cfg.ONNX.SharedLibraryPath,
		Dimensions:        cfg.Dimensions,
		Logger:            log,
	})
}
