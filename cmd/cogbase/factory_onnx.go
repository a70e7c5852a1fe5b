//go:build onnx

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/cogbase/config"
	"github.com/becomeliminal/cogbase/memory"
	"github.com/becomeliminal/cogbase/memory/embedder/onnx"
)

func init() {
	embedderFactories["onnx"] = func(cfg config.EmbedderConfig, logger logrus.FieldLogger) (memory.Embedder, func(), error) {
		emb, err := onnx.New(onnx.Config{
			LibraryPath:   cfg.LibraryPath,
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			Dimensions:    cfg.Dimensions,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return emb, func() {
			if err := emb.Close(); err != nil {
				logger.WithError(err).Warn("close onnx embedder")
			}
		}, nil
	}
}
