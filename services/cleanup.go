package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/models"
)

const cleanupTimeout = 30 * time.Second

// Cleaner tears down sessions and their collections.
type Cleaner struct {
	store    vectorstore.Store
	registry *SessionRegistry
}

func NewCleaner(store vectorstore.Store, registry *SessionRegistry) *Cleaner {
	return &Cleaner{store: store, registry: registry}
}

// Cleanup removes the session and deletes its collections. The entry is
// removed first so no new upload or chat can attach to it while deletions
// run. Deletion failures become warnings; only an unknown id is an error.
func (c *Cleaner) Cleanup(ctx context.Context, sessionID string) (*models.CleanupResult, error) {
	session, ok := c.registry.Remove(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}
	return c.deleteCollections(ctx, session), nil
}

// deleteCollections runs detached from the caller: the session is already out
// of the registry, so an abandoned request would orphan its collections.
func (c *Cleaner) deleteCollections(ctx context.Context, session models.Session) *models.CleanupResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	names := session.CollectionNames()
	errs := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.store.DeleteCollection(ctx, name)
		}()
	}
	wg.Wait()

	result := &models.CleanupResult{
		SessionID:          session.ID,
		DeletedCollections: []string{},
		Warnings:           []string{},
	}
	for i, name := range names {
		switch err := errs[i]; {
		case err == nil:
			result.DeletedCollections = append(result.DeletedCollections, name)
		case errors.Is(err, vectorstore.ErrCollectionNotFound):
			logger.Info("Collection already gone during cleanup", "session_id", session.ID, "collection", name)
			result.DeletedCollections = append(result.DeletedCollections, name)
		default:
			logger.Warn("Failed to delete collection during cleanup", "session_id", session.ID, "collection", name, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to delete collection %s: %v", name, err))
		}
	}

	logger.Info("Session cleaned up",
		"session_id", session.ID,
		"deleted", len(result.DeletedCollections),
		"warnings", len(result.Warnings),
	)
	return result
}
