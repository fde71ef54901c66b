package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"pdf-rag-chat/models"
)

var errNoEmbedder = errors.New("memory store only accepts precomputed embeddings")

// MemoryStore is an embedded, process-local Store backed by chromem-go.
// chromem only ranks by cosine similarity.
type MemoryStore struct {
	db *chromem.DB

	mu   sync.RWMutex
	dims map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		db:   chromem.NewDB(),
		dims: make(map[string]int),
	}
}

func (s *MemoryStore) Backend() string { return "memory" }

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbedder
}

func (s *MemoryStore) CreateCollection(ctx context.Context, name string, dimension int, distance string) error {
	distance, err := NormalizeDistance(distance)
	if err != nil {
		return err
	}
	if distance != "Cosine" {
		return fmt.Errorf("%w: memory store supports only Cosine distance, got %s", models.ErrVectorStore, distance)
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", models.ErrVectorStore)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dims[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	meta := map[string]string{"hnsw:space": "cosine"}
	if _, err := s.db.CreateCollection(name, meta, noEmbedding); err != nil {
		return fmt.Errorf("%w: create collection %s: %v", models.ErrVectorStore, name, err)
	}
	s.dims[name] = dimension
	return nil
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dims[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", models.ErrVectorStore, name, err)
	}
	delete(s.dims, name)
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []models.Point) error {
	col, dim, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d dimensions, collection %s expects %d", ErrDimensionMismatch, p.ID, len(p.Vector), collection, dim)
		}
		docs[i] = chromem.Document{
			ID: p.ID,
			Metadata: map[string]string{
				"fileName":   p.Payload.FileName,
				"chunkIndex": strconv.Itoa(p.Payload.ChunkIndex),
			},
			// chromem normalizes in place, keep the caller's slice intact.
			Embedding: append([]float32(nil), p.Vector...),
			Content:   p.Payload.Text,
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", models.ErrVectorStore, collection, err)
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Chunk, error) {
	col, dim, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %s expects %d", ErrDimensionMismatch, len(vector), collection, dim)
	}

	// chromem rejects a result count above the collection size.
	n := min(limit, col.Count())
	if n <= 0 {
		return []models.Chunk{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", models.ErrVectorStore, collection, err)
	}

	chunks := make([]models.Chunk, 0, len(results))
	for _, r := range results {
		idx, _ := strconv.Atoi(r.Metadata["chunkIndex"])
		chunks = append(chunks, models.Chunk{
			Text:       r.Content,
			FileName:   r.Metadata["fileName"],
			ChunkIndex: idx,
			Score:      r.Similarity,
		})
	}
	return chunks, nil
}

// Collections lists the names currently held.
func (s *MemoryStore) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.dims))
	for name := range s.dims {
		names = append(names, name)
	}
	return names
}

func (s *MemoryStore) collection(name string) (*chromem.Collection, int, error) {
	s.mu.RLock()
	dim, ok := s.dims[name]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	col := s.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, dim, nil
}
