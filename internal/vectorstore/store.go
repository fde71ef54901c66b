// Package vectorstore provides the vector index adapters used to hold one
// collection per ingested document.
package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pdf-rag-chat/internal/config"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/models"
)

var (
	ErrCollectionNotFound = fmt.Errorf("%w: collection not found", models.ErrVectorStore)
	ErrCollectionExists   = fmt.Errorf("%w: collection already exists", models.ErrVectorStore)
	ErrDimensionMismatch  = fmt.Errorf("%w: vector dimension mismatch", models.ErrVectorStore)
)

// Store is a vector index partitioned into named collections.
type Store interface {
	// CreateCollection is not idempotent: creating an existing name fails
	// with ErrCollectionExists.
	CreateCollection(ctx context.Context, name string, dimension int, distance string) error

	// DeleteCollection fails with ErrCollectionNotFound for unknown names.
	DeleteCollection(ctx context.Context, name string) error

	// Upsert inserts or overwrites points by id. Any rejected point fails
	// the whole call.
	Upsert(ctx context.Context, collection string, points []models.Point) error

	// Search returns up to limit chunks, best match first.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Chunk, error)

	// Backend names the implementation for logs and metrics.
	Backend() string
}

var distances = map[string]string{
	"cosine":    "Cosine",
	"euclid":    "Euclid",
	"euclidean": "Euclid",
	"dot":       "Dot",
	"manhattan": "Manhattan",
}

// NormalizeDistance maps a user supplied metric name to its canonical form.
func NormalizeDistance(d string) (string, error) {
	if canonical, ok := distances[strings.ToLower(strings.TrimSpace(d))]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: unknown distance metric %q", models.ErrInvalidConfig, d)
}

// New builds the configured Store, instrumented with metrics.
func New(cfg *config.Config, metrics *telemetry.Metrics) (Store, error) {
	if _, err := NormalizeDistance(cfg.VectorDistance); err != nil {
		return nil, err
	}

	var s Store
	switch cfg.VectorStore {
	case config.VectorStoreQdrant:
		s = NewQdrantStore(QdrantConfig{
			BaseURL: cfg.QdrantURL,
			APIKey:  cfg.QdrantAPIKey,
			Timeout: 30 * time.Second,
		})
	case config.VectorStoreMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", models.ErrInvalidConfig, cfg.VectorStore)
	}
	return Instrument(s, metrics), nil
}
