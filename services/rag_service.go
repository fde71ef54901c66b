package services

import (
	"context"
	"fmt"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/config"
	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/models"
)

// RAGService owns the session registry and wires the pipeline around it.
type RAGService struct {
	Registry  *SessionRegistry
	Ingestor  *Ingestor
	Retriever *Retriever
	Chat      *ChatService
	Cleaner   *Cleaner
	Reaper    *SessionReaper
}

func NewRAGService(
	cfg *config.Config,
	provider ai.Provider,
	store vectorstore.Store,
	extractor TextExtractor,
	metrics *telemetry.Metrics,
) (*RAGService, error) {
	splitter, err := NewTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	distance, err := vectorstore.NormalizeDistance(cfg.VectorDistance)
	if err != nil {
		return nil, err
	}

	registry := NewSessionRegistry()
	retriever := NewRetriever(provider, store, registry, cfg.SearchLimit)
	cleaner := NewCleaner(store, registry)

	return &RAGService{
		Registry: registry,
		Ingestor: NewIngestor(extractor, splitter, provider, store, registry, IngestOptions{
			VectorSize:       cfg.VectorSize,
			Distance:         distance,
			EmbedConcurrency: cfg.EmbedConcurrency,
			ReplaceMode:      cfg.ReplaceMode(),
		}, metrics),
		Retriever: retriever,
		Chat:      NewChatService(retriever, provider, provider.Name(), metrics),
		Cleaner:   cleaner,
		Reaper:    NewSessionReaper(registry, cleaner, cfg.SessionIdleTTL, cfg.SessionReapInterval, metrics),
	}, nil
}

// Start launches background maintenance.
func (s *RAGService) Start() error {
	return s.Reaper.Start()
}

// Session returns a snapshot of one session.
func (s *RAGService) Session(id string) (models.Session, error) {
	session, ok := s.Registry.Get(id)
	if !ok {
		return models.Session{}, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return session, nil
}

// Shutdown stops the reaper and deletes the collections of every session
// still registered, so a restart does not leave orphans behind.
func (s *RAGService) Shutdown(ctx context.Context) {
	s.Reaper.Stop()

	sessions := s.Registry.Drain()
	if len(sessions) == 0 {
		return
	}
	logger.Info("Cleaning up sessions on shutdown", "sessions", len(sessions))

	warnings := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			logger.Warn("Shutdown deadline reached, collections left behind", "error", ctx.Err())
			return
		}
		warnings += len(s.Cleaner.deleteCollections(ctx, session).Warnings)
	}
	logger.Info("Shutdown cleanup finished", "sessions", len(sessions), "warnings", warnings)
}
