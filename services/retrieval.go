package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/models"
)

// Retriever finds the chunks of a session's documents closest to a query.
type Retriever struct {
	embedder ai.Embedder
	store    vectorstore.Store
	registry *SessionRegistry
	limit    int
}

func NewRetriever(embedder ai.Embedder, store vectorstore.Store, registry *SessionRegistry, limit int) *Retriever {
	return &Retriever{embedder: embedder, store: store, registry: registry, limit: limit}
}

// Retrieve embeds query once and searches every collection of the session
// concurrently. Results are concatenated in registration order, each
// collection keeping its own ranking and contributing at most limit chunks.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, query string) ([]models.Chunk, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "rag.retrieve")
	defer span.End()

	session, ok := r.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	if len(session.Collections) == 0 {
		return nil, fmt.Errorf("%w: session %s", models.ErrNoDocuments, sessionID)
	}
	r.registry.Touch(sessionID)

	names := session.CollectionNames()
	span.SetAttributes(attribute.Int("rag.collections", len(names)))

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	perCollection := make([][]models.Chunk, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			hits, err := r.store.Search(gctx, name, vec, r.limit)
			if err != nil {
				return err
			}
			if len(hits) > r.limit {
				hits = hits[:r.limit]
			}
			perCollection[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var chunks []models.Chunk
	for _, hits := range perCollection {
		chunks = append(chunks, hits...)
	}
	span.SetAttributes(attribute.Int("rag.hits", len(chunks)))
	return chunks, nil
}
