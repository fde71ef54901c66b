package models

import "errors"

// Error taxonomy shared by the pipeline. Adapters wrap these with %w so callers
// can classify failures with errors.Is regardless of which backend produced them.
var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrExtraction        = errors.New("pdf extraction failed")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrGenerationService = errors.New("generation service error")
	ErrVectorStore       = errors.New("vector store error")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoDocuments       = errors.New("no documents found in session")
)
