package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/vectorstore"
	"pdf-rag-chat/models"
)

const testDim = 8

type extractorFunc func(ctx context.Context, content []byte) (string, error)

func (f extractorFunc) Extract(ctx context.Context, content []byte) (string, error) {
	return f(ctx, content)
}

func staticText(text string) TextExtractor {
	return extractorFunc(func(context.Context, []byte) (string, error) { return text, nil })
}

// letterEmbedder maps text to a letter histogram so similar texts land close
// together without a real model.
type letterEmbedder struct {
	fail  func(text string) error
	delay func(text string) time.Duration
	calls atomic.Int32
}

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.delay != nil {
		select {
		case <-time.After(e.delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail != nil {
		if err := e.fail(text); err != nil {
			return nil, err
		}
	}
	vec := make([]float32, testDim)
	vec[0] = 0.01
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[int(r-'a')%testDim]++
		}
	}
	return vec, nil
}

// scriptedGenerator replays fixed tokens, optionally failing after them or
// producing tokens until cancelled.
type scriptedGenerator struct {
	tokens  []string
	err     error
	endless bool
	openErr error
	closed  atomic.Int32
	mu      sync.Mutex
	prompts []string
}

func (g *scriptedGenerator) record(prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
}

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.record(prompt)
	if g.openErr != nil {
		return "", g.openErr
	}
	return strings.Join(g.tokens, ""), g.err
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, prompt string) (ai.TokenStream, error) {
	g.record(prompt)
	if g.openErr != nil {
		return nil, g.openErr
	}
	return &scriptedStream{ctx: ctx, gen: g, tokens: append([]string(nil), g.tokens...)}, nil
}

type scriptedStream struct {
	ctx    context.Context
	gen    *scriptedGenerator
	tokens []string
}

func (s *scriptedStream) Next() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.tokens) > 0 {
		tok := s.tokens[0]
		s.tokens = s.tokens[1:]
		return tok, nil
	}
	if s.gen.endless {
		return "more ", nil
	}
	if s.gen.err != nil {
		return "", s.gen.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.gen.closed.Add(1)
	return nil
}

type testProvider struct {
	*letterEmbedder
	*scriptedGenerator
}

func (testProvider) Name() string { return "test" }
func (testProvider) Close() error { return nil }

// flakyStore fails deletes of the named collections.
type flakyStore struct {
	vectorstore.Store
	failDelete map[string]bool
	failUpsert bool
}

func (f *flakyStore) DeleteCollection(ctx context.Context, name string) error {
	if f.failDelete[name] {
		return fmt.Errorf("%w: connection refused", models.ErrVectorStore)
	}
	return f.Store.DeleteCollection(ctx, name)
}

func (f *flakyStore) Upsert(ctx context.Context, name string, points []models.Point) error {
	if f.failUpsert {
		return fmt.Errorf("%w: upsert rejected", models.ErrVectorStore)
	}
	return f.Store.Upsert(ctx, name, points)
}

// contextStore fails deletes once the caller's context is done, like a
// remote store would.
type contextStore struct {
	vectorstore.Store
}

func (s contextStore) DeleteCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrVectorStore, err)
	}
	return s.Store.DeleteCollection(ctx, name)
}

type recordingSink struct {
	tokens      []string
	sources     [][]models.Source
	completed   int
	errors      []string
	failAtChunk int
}

func (s *recordingSink) OnChunk(token string, sources []models.Source) error {
	s.tokens = append(s.tokens, token)
	s.sources = append(s.sources, sources)
	if s.failAtChunk > 0 && len(s.tokens) >= s.failAtChunk {
		return errors.New("broken pipe")
	}
	return nil
}

func (s *recordingSink) OnComplete() error {
	s.completed++
	return nil
}

func (s *recordingSink) OnError(message string) error {
	s.errors = append(s.errors, message)
	return nil
}

type pipeline struct {
	store     *vectorstore.MemoryStore
	registry  *SessionRegistry
	embedder  *letterEmbedder
	generator *scriptedGenerator
	ingestor  *Ingestor
	retriever *Retriever
	chat      *ChatService
	cleaner   *Cleaner
}

type pipelineOptions struct {
	text        string
	chunkSize   int
	overlap     int
	searchLimit int
	replace     bool
	store       func(*vectorstore.MemoryStore) vectorstore.Store
}

func newPipeline(t *testing.T, opts pipelineOptions) *pipeline {
	t.Helper()
	if opts.chunkSize == 0 {
		opts.chunkSize, opts.overlap = 40, 8
	}
	if opts.searchLimit == 0 {
		opts.searchLimit = 3
	}

	splitter, err := NewTextSplitter(opts.chunkSize, opts.overlap)
	require.NoError(t, err)

	p := &pipeline{
		store:     vectorstore.NewMemoryStore(),
		registry:  NewSessionRegistry(),
		embedder:  &letterEmbedder{},
		generator: &scriptedGenerator{tokens: []string{"Alpha ", "is ", "the first word."}},
	}
	var store vectorstore.Store = p.store
	if opts.store != nil {
		store = opts.store(p.store)
	}

	p.ingestor = NewIngestor(staticText(opts.text), splitter, p.embedder, store, p.registry, IngestOptions{
		VectorSize:       testDim,
		Distance:         "Cosine",
		EmbedConcurrency: 4,
		ReplaceMode:      opts.replace,
	}, nil)
	p.retriever = NewRetriever(p.embedder, store, p.registry, opts.searchLimit)
	p.chat = NewChatService(p.retriever, p.generator, "test", nil)
	p.cleaner = NewCleaner(store, p.registry)
	return p
}
