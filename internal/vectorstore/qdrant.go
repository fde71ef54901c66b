package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pdf-rag-chat/models"
)

// QdrantStore implements the Store interface using Qdrant's REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// QdrantConfig configures the Qdrant store.
type QdrantConfig struct {
	// BaseURL is the Qdrant REST API base URL (default: http://localhost:6333).
	BaseURL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Timeout is the HTTP request timeout (default: 30s).
	Timeout time.Duration
}

// NewQdrantStore creates a new Qdrant store.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &QdrantStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (s *QdrantStore) Backend() string { return "qdrant" }

type qdrantPayload struct {
	Text       string `json:"text"`
	FileName   string `json:"fileName"`
	ChunkIndex int    `json:"chunkIndex"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantScoredPoint struct {
	ID      any           `json:"id"`
	Score   float32       `json:"score"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantUpdateResult struct {
	OperationID int64  `json:"operation_id"`
	Status      string `json:"status"`
}

// qdrantResponse is the envelope every Qdrant REST call answers with.
type qdrantResponse struct {
	Result json.RawMessage `json:"result"`
	Status any             `json:"status"`
}

// qdrantError carries a non-2xx answer so callers can classify it.
type qdrantError struct {
	status int
	body   string
}

func (e *qdrantError) Error() string {
	return fmt.Sprintf("qdrant error (status %d): %s", e.status, e.body)
}

// CreateCollection creates a new collection with the specified dimensions.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, distance string) error {
	distance, err := NormalizeDistance(distance)
	if err != nil {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": distance,
		},
	}

	if _, err := s.doRequest(ctx, http.MethodPut, collectionPath(name), body); err != nil {
		return s.classify("create collection "+name, err)
	}
	return nil
}

// DeleteCollection removes a collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	resp, err := s.doRequest(ctx, http.MethodDelete, collectionPath(name), nil)
	if err != nil {
		return s.classify("delete collection "+name, err)
	}

	// Older Qdrant versions answer 200 with result=false for unknown names.
	var deleted bool
	if err := json.Unmarshal(resp.Result, &deleted); err == nil && !deleted {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

// Upsert adds or updates points and waits until they are applied.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]qdrantPoint, len(points))
	for i, p := range points {
		qdrantPoints[i] = qdrantPoint{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: qdrantPayload{
				Text:       p.Payload.Text,
				FileName:   p.Payload.FileName,
				ChunkIndex: p.Payload.ChunkIndex,
			},
		}
	}

	resp, err := s.doRequest(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", map[string]any{
		"points": qdrantPoints,
	})
	if err != nil {
		return s.classify("upsert into "+collection, err)
	}

	var result qdrantUpdateResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("%w: upsert into %s: decode result: %v", models.ErrVectorStore, collection, err)
	}
	if result.Status != "completed" && result.Status != "acknowledged" {
		return fmt.Errorf("%w: upsert into %s: operation %d ended with status %q", models.ErrVectorStore, collection, result.OperationID, result.Status)
	}
	return nil
}

// Search finds similar points.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Chunk, error) {
	resp, err := s.doRequest(ctx, http.MethodPost, collectionPath(collection)+"/points/search", map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	})
	if err != nil {
		return nil, s.classify("search "+collection, err)
	}

	var hits []qdrantScoredPoint
	if err := json.Unmarshal(resp.Result, &hits); err != nil {
		return nil, fmt.Errorf("%w: search %s: decode result: %v", models.ErrVectorStore, collection, err)
	}

	chunks := make([]models.Chunk, 0, len(hits))
	for _, h := range hits {
		chunks = append(chunks, models.Chunk{
			Text:       h.Payload.Text,
			FileName:   h.Payload.FileName,
			ChunkIndex: h.Payload.ChunkIndex,
			Score:      h.Score,
		})
	}
	return chunks, nil
}

// classify maps transport and status failures onto the store's errors.
func (s *QdrantStore) classify(op string, err error) error {
	qerr, ok := err.(*qdrantError)
	if !ok {
		return fmt.Errorf("%w: %s: %v", models.ErrVectorStore, op, err)
	}

	body := strings.ToLower(qerr.body)
	switch {
	case qerr.status == http.StatusNotFound || strings.Contains(body, "not found") || strings.Contains(body, "doesn't exist"):
		return fmt.Errorf("%w: %s: %v", ErrCollectionNotFound, op, qerr)
	case qerr.status == http.StatusConflict || strings.Contains(body, "already exists"):
		return fmt.Errorf("%w: %s: %v", ErrCollectionExists, op, qerr)
	case qerr.status == http.StatusBadRequest && strings.Contains(body, "dimension"):
		return fmt.Errorf("%w: %s: %v", ErrDimensionMismatch, op, qerr)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrVectorStore, op, qerr)
}

// doRequest sends an HTTP request and decodes the JSON envelope.
func (s *QdrantStore) doRequest(ctx context.Context, method, path string, body any) (*qdrantResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &qdrantError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var result qdrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}
