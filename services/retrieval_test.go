package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-chat/models"
)

func TestRetrieveUnknownSession(t *testing.T) {
	p := newPipeline(t, pipelineOptions{text: sampleText})

	_, err := p.retriever.Retrieve(context.Background(), "nope", "alpha")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestRetrieveSessionWithoutDocuments(t *testing.T) {
	p := newPipeline(t, pipelineOptions{text: sampleText})
	id := p.registry.Create()

	_, err := p.retriever.Retrieve(context.Background(), id, "alpha")
	assert.ErrorIs(t, err, models.ErrNoDocuments)
	assert.Equal(t, int32(0), p.embedder.calls.Load(), "no embedding for an empty session")
}

func TestRetrieveConcatenatesInRegistrationOrder(t *testing.T) {
	p := newPipeline(t, pipelineOptions{text: sampleText, chunkSize: 30, overlap: 5, searchLimit: 2})
	ctx := context.Background()

	first, err := p.ingestor.Ingest(ctx, nil, "first.pdf", "")
	require.NoError(t, err)

	p.ingestor.extractor = staticText("Zeta and eta are later letters. Theta and iota follow them. Kappa closes.")
	second, err := p.ingestor.Ingest(ctx, nil, "second.pdf", first.SessionID)
	require.NoError(t, err)
	require.Greater(t, second.ChunkCount, 2)

	chunks, err := p.retriever.Retrieve(ctx, first.SessionID, "alpha beta")
	require.NoError(t, err)
	require.Len(t, chunks, 4, "each collection contributes at most the limit")

	assert.Equal(t, "first.pdf", chunks[0].FileName)
	assert.Equal(t, "first.pdf", chunks[1].FileName)
	assert.Equal(t, "second.pdf", chunks[2].FileName)
	assert.Equal(t, "second.pdf", chunks[3].FileName)

	// Each collection keeps its own best-first order.
	assert.GreaterOrEqual(t, chunks[0].Score, chunks[1].Score)
	assert.GreaterOrEqual(t, chunks[2].Score, chunks[3].Score)
}

func TestRetrieveTouchesSession(t *testing.T) {
	p := newPipeline(t, pipelineOptions{text: sampleText})
	res, err := p.ingestor.Ingest(context.Background(), nil, "doc.pdf", "")
	require.NoError(t, err)

	before, _ := p.registry.Get(res.SessionID)
	_, err = p.retriever.Retrieve(context.Background(), res.SessionID, "alpha")
	require.NoError(t, err)
	after, _ := p.registry.Get(res.SessionID)
	assert.False(t, after.LastActive.Before(before.LastActive))
}
