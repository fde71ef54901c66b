package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-chat/models"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.SearchLimit)
	assert.Equal(t, 3072, cfg.VectorSize)
	assert.Equal(t, "Cosine", cfg.VectorDistance)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, cfg.LLMModel, cfg.EmbeddingModel)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.False(t, cfg.ReplaceMode())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "rag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 500\nchunk_overlap: 50\nsearch_limit: 5\nsession_mode: replace\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SEARCH_LIMIT", "7")
	t.Setenv("LLM_TIMEOUT", "15")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 7, cfg.SearchLimit)
	assert.Equal(t, 15*time.Second, cfg.LLMTimeout)
	assert.True(t, cfg.ReplaceMode())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }},
		{"zero search limit", func(c *Config) { c.SearchLimit = 0 }},
		{"unknown store", func(c *Config) { c.VectorStore = "pinecone" }},
		{"unknown provider", func(c *Config) { c.LLMProvider = "openai" }},
		{"gemini without key", func(c *Config) { c.LLMProvider = ProviderGemini }},
		{"unknown session mode", func(c *Config) { c.SessionMode = "merge" }},
		{"reaper without interval", func(c *Config) {
			c.SessionIdleTTL = time.Hour
			c.SessionReapInterval = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), models.ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}
