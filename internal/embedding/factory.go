package embedding

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderMock = "mock"
	ProviderHTTP = "http"
	ProviderONNX = "onnx"
)

// Options selects and configures an embedding provider.
type Options struct {
	Provider   string
	Dimensions int
	HTTP       HTTPConfig
	ONNX       ONNXConfig
	// CacheSize wraps the provider in a CachedEmbedder when positive.
	CacheSize int
}

// New builds the configured provider.
func New(opts Options, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch opts.Provider {
	case ProviderMock, "":
		e = NewMockEmbedder(opts.Dimensions)
	case ProviderHTTP:
		cfg := opts.HTTP
		cfg.Dimensions = opts.Dimensions
		e, err = NewHTTPEmbedder(cfg, logger)
	case ProviderONNX:
		cfg := opts.ONNX
		cfg.Dimensions = opts.Dimensions
		e, err = NewONNXEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", opts.Provider, err)
	}
	if opts.CacheSize > 0 {
		e = NewCachedEmbedder(e, opts.CacheSize)
	}
	return e, nil
}
