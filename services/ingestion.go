package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/models"
)

const rollbackTimeout = 10 * time.Second

// IngestOptions are the deployment wide indexing parameters.
type IngestOptions struct {
	VectorSize       int
	Distance         string
	EmbedConcurrency int
	// ReplaceMode makes each upload the session's only document.
	ReplaceMode bool
}

// Ingestor indexes uploaded documents into one fresh collection each.
type Ingestor struct {
	extractor TextExtractor
	splitter  *TextSplitter
	embedder  ai.Embedder
	store     vectorstore.Store
	registry  *SessionRegistry
	opts      IngestOptions
	metrics   *telemetry.Metrics

	seq atomic.Uint64
	now func() time.Time
}

func NewIngestor(
	extractor TextExtractor,
	splitter *TextSplitter,
	embedder ai.Embedder,
	store vectorstore.Store,
	registry *SessionRegistry,
	opts IngestOptions,
	metrics *telemetry.Metrics,
) *Ingestor {
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	return &Ingestor{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		registry:  registry,
		opts:      opts,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Ingest extracts, splits, embeds and stores one document, then records the
// new collection under sessionID. An empty or unknown sessionID starts a new
// session. Nothing is registered unless every step succeeded.
func (i *Ingestor) Ingest(ctx context.Context, content []byte, fileName, sessionID string) (*models.IngestResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer("services").Start(ctx, "rag.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("rag.file_name", fileName), attribute.Int("rag.bytes", len(content)))

	result, err := i.ingest(ctx, content, fileName, sessionID)
	if err != nil {
		span.RecordError(err)
		i.metrics.RecordIngest(time.Since(start).Seconds(), 0, "error")
		logger.Error("Ingestion failed", "file_name", fileName, "error", err)
		return nil, err
	}

	result.Duration = time.Since(start)
	span.SetAttributes(attribute.String("rag.collection", result.CollectionName), attribute.Int("rag.chunks", result.ChunkCount))
	i.metrics.RecordIngest(result.Duration.Seconds(), result.ChunkCount, "success")
	logger.Info("Document ingested",
		"session_id", result.SessionID,
		"collection", result.CollectionName,
		"file_name", fileName,
		"chunks", result.ChunkCount,
		"duration", result.Duration,
	)
	return result, nil
}

func (i *Ingestor) ingest(ctx context.Context, content []byte, fileName, sessionID string) (*models.IngestResult, error) {
	text, err := i.extractor.Extract(ctx, content)
	if err != nil {
		if !errors.Is(err, models.ErrExtraction) {
			err = fmt.Errorf("%w: %w", models.ErrExtraction, err)
		}
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document contains no text", models.ErrExtraction)
	}

	name := i.collectionName(fileName)
	if err := i.store.CreateCollection(ctx, name, i.opts.VectorSize, i.opts.Distance); err != nil {
		return nil, err
	}

	chunks := i.splitter.Split(text)

	points, err := i.embedChunks(ctx, chunks, fileName)
	if err != nil {
		i.rollback(ctx, name)
		return nil, err
	}

	if err := i.store.Upsert(ctx, name, points); err != nil {
		i.rollback(ctx, name)
		return nil, err
	}

	ref := models.CollectionRef{
		FileName:       fileName,
		CollectionName: name,
		ChunkCount:     len(chunks),
		CreatedAt:      i.now(),
	}
	sessionID, replaced := i.register(sessionID, ref)

	result := &models.IngestResult{
		SessionID:      sessionID,
		CollectionName: name,
		FileName:       fileName,
		ChunkCount:     len(chunks),
	}
	for _, old := range replaced {
		i.dropReplaced(ctx, sessionID, old.CollectionName)
		result.Replaced = append(result.Replaced, old.CollectionName)
	}
	return result, nil
}

// embedChunks embeds every chunk concurrently. Points come back in chunk
// order whatever order the calls complete in.
func (i *Ingestor) embedChunks(ctx context.Context, chunks []string, fileName string) ([]models.Point, error) {
	points := make([]models.Point, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.EmbedConcurrency)
	for idx, chunk := range chunks {
		g.Go(func() error {
			vec, err := i.embedder.Embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", idx, err)
			}
			points[idx] = models.Point{
				ID:     uuid.NewString(),
				Vector: vec,
				Payload: models.Chunk{
					Text:       chunk,
					FileName:   fileName,
					ChunkIndex: idx,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, models.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
		}
		return nil, err
	}
	return points, nil
}

func (i *Ingestor) register(sessionID string, ref models.CollectionRef) (string, []models.CollectionRef) {
	if sessionID != "" {
		if i.opts.ReplaceMode {
			old, err := i.registry.ReplaceCollections(sessionID, ref)
			if err == nil {
				return sessionID, old
			}
		} else if err := i.registry.AddCollection(sessionID, ref); err == nil {
			return sessionID, nil
		}
		logger.Info("Unknown session on upload, starting a new one", "requested_session_id", sessionID)
	}
	return i.registry.Create(ref), nil
}

// rollback deletes a collection whose ingestion failed. Failures are logged
// and leave an orphan behind.
func (i *Ingestor) rollback(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := i.store.DeleteCollection(ctx, name); err != nil {
		logger.Warn("Rollback of collection failed, orphan left in vector store", "collection", name, "error", err)
		return
	}
	logger.Debug("Rolled back collection", "collection", name)
}

func (i *Ingestor) dropReplaced(ctx context.Context, sessionID, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := i.store.DeleteCollection(ctx, name); err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		logger.Warn("Failed to delete replaced collection", "session_id", sessionID, "collection", name, "error", err)
	}
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// collectionName derives <sanitized file name>_<unix millis>_<sequence>.
// The sequence keeps same-named uploads within one millisecond apart.
func (i *Ingestor) collectionName(fileName string) string {
	return fmt.Sprintf("%s_%d_%d", SanitizeName(fileName), i.now().UnixMilli(), i.seq.Add(1))
}

// SanitizeName strips a trailing .pdf and replaces everything outside
// [A-Za-z0-9] with an underscore.
func SanitizeName(fileName string) string {
	base := fileName
	if strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	base = nonAlphanumeric.ReplaceAllString(base, "_")
	if base == "" {
		return "document"
	}
	return base
}
