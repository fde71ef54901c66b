package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds cleanup and other bookkeeping requests
	DefaultTimeout = 30 * time.Second

	// IngestTimeout covers extraction plus one embedding call per chunk
	IngestTimeout = 5 * time.Minute

	// ChatTimeout bounds a whole answer, streamed or not
	ChatTimeout = 3 * time.Minute

	// ShutdownTimeout is how long graceful shutdown may take
	ShutdownTimeout = 30 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithIngestTimeout creates a context for document ingestion
func WithIngestTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, IngestTimeout)
}

// WithChatTimeout creates a context for answering one question
func WithChatTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ChatTimeout)
}
