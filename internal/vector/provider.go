package vector

import (
	"fmt"
	"strings"

	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/platform/qdrant"
)

const (
	ProviderMemory = "memory"
	ProviderQdrant = "qdrant"
)

// ResolveProviderMode reads VECTOR_PROVIDER. Memory is the default so the
// service starts without external infrastructure.
func ResolveProviderMode() (string, error) {
	mode := strings.ToLower(envutil.Str("VECTOR_PROVIDER", ProviderMemory))
	switch mode {
	case ProviderMemory, ProviderQdrant:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid VECTOR_PROVIDER=%q; expected %q or %q", mode, ProviderMemory, ProviderQdrant)
	}
}

// NewFromEnv builds the index selected by VECTOR_PROVIDER.
func NewFromEnv(log *logger.Logger) (Index, error) {
	mode, err := ResolveProviderMode()
	if err != nil {
		return nil, err
	}
	switch mode {
	case ProviderQdrant:
		cfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, err
		}
		client, err := qdrant.NewClient(log, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("vector index selected", "provider", ProviderQdrant)
		return NewQdrantIndex(log, client), nil
	default:
		log.Info("vector index selected", "provider", ProviderMemory)
		return NewMemoryIndex(log), nil
	}
}
