// Package ai talks to the embedding and text generation backends.
package ai

import "context"

// Embedder turns text into a vector. Vectors from one Embedder always have
// the same length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces completions, either whole or as a stream of fragments.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) (TokenStream, error)
}

// TokenStream yields generated fragments in order. Next returns io.EOF once
// the backend signals completion. Close may be called at any time and
// releases the underlying connection.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// Provider is a backend that can both embed and generate.
type Provider interface {
	Embedder
	Generator
	Name() string
	Close() error
}
