//go:build !onnx

package setup

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

type noONNX struct{}

func (noONNX) Embed(context.Context, string) ([]float32, error) { return nil, errors.New("onnx disabled") }
func (noONNX) Dimensions() int { return 0 }
func (noONNX) Close() error { return nil }

func openONNX(EmbedderConfig, logrus.FieldLogger) (noONNX, error) {
	return noONNX{}, errors.New("embedder backend onnx needs a binary built with -tags onnx")
}
