package models

import "time"

// Chunk is a contiguous piece of a document's extracted text, tagged with
// its provenance.
type Chunk struct {
	Text       string  `json:"text"`
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float32 `json:"score,omitempty"`
}

// Point is one embedded chunk as stored in the vector index.
type Point struct {
	ID      string
	Vector  []float32
	Payload Chunk
}

// IngestResult is returned after a document has been fully indexed.
type IngestResult struct {
	SessionID      string        `json:"sessionId"`
	CollectionName string        `json:"collectionName"`
	FileName       string        `json:"fileName"`
	ChunkCount     int           `json:"chunkCount"`
	Replaced       []string      `json:"replaced,omitempty"`
	Duration       time.Duration `json:"-"`
}

// CleanupResult reports which collections were removed for a session.
// Warnings are non-fatal deletion failures.
type CleanupResult struct {
	SessionID          string   `json:"sessionId"`
	DeletedCollections []string `json:"deletedCollections"`
	Warnings           []string `json:"warnings"`
}
