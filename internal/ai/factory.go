package ai

import (
	"context"
	"fmt"

	"pdf-rag-chat/internal/config"
	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/models"
)

// NewProvider creates the configured backend wrapped in a Guarded.
func NewProvider(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*Guarded, error) {
	var p Provider

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		p = NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.LLMURL,
			Model:          cfg.LLMModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.LLMTimeout,
			Metrics:        metrics,
		})
		logger.Info("Initializing LLM provider", "provider", "ollama", "url", cfg.LLMURL, "model", cfg.LLMModel, "embedding_model", cfg.EmbeddingModel)

	case config.ProviderGemini:
		gc, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbeddingModel)
		if err != nil {
			return nil, err
		}
		p = gc
		logger.Info("Initializing LLM provider", "provider", "gemini", "model", cfg.GeminiModel, "embedding_model", cfg.GeminiEmbeddingModel)

	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", models.ErrInvalidConfig, cfg.LLMProvider)
	}

	return NewGuarded(p, cfg.LLMRateLimit, metrics), nil
}
