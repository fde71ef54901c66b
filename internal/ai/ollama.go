package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/models"
)

// maxStreamLine caps a single NDJSON fragment. Longer lines are skipped as
// malformed rather than ending the stream.
const maxStreamLine = 1 << 20

// OllamaClient embeds and generates through a local Ollama server.
type OllamaClient struct {
	baseURL        string
	model          string
	embeddingModel string
	timeout        time.Duration
	client         *http.Client
	metrics        *telemetry.Metrics
}

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model generates answers. EmbeddingModel defaults to Model.
	Model          string
	EmbeddingModel string

	// Timeout bounds embedding and non-streaming calls, and the wait for
	// response headers on streams (default: 60s).
	Timeout time.Duration

	Metrics *telemetry.Metrics
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OllamaClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
		// Streams can legitimately outlive Timeout, so the client itself
		// only bounds the wait for headers.
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
				MaxIdleConnsPerHost:   16,
			},
		},
		metrics: cfg.Metrics,
	}
}

func (o *OllamaClient) Name() string { return "ollama" }

func (o *OllamaClient) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaFragment is one NDJSON line of /api/generate, or the whole body
// when streaming is off.
type ollamaFragment struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Embed generates an embedding for a single text.
func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "ollama.embed")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.embeddingModel), attribute.Int("llm.input_chars", len(text)))

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: o.embeddingModel, Prompt: text})
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	defer resp.Body.Close()

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", models.ErrEmbeddingService, err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned for model %s", models.ErrEmbeddingService, o.embeddingModel)
	}

	// Convert float64 to float32
	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}
	span.SetAttributes(attribute.Int("llm.dimensions", len(embedding)))

	return embedding, nil
}

// Generate returns the full completion in one response.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "ollama.generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.post(ctx, "/api/generate", ollamaGenerateRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		return "", fmt.Errorf("%w: %w", models.ErrGenerationService, err)
	}
	defer resp.Body.Close()

	var frag ollamaFragment
	if err := json.NewDecoder(resp.Body).Decode(&frag); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", models.ErrGenerationService, err)
	}
	if frag.Error != "" {
		return "", fmt.Errorf("%w: %s", models.ErrGenerationService, frag.Error)
	}
	return frag.Response, nil
}

// GenerateStream opens a streaming completion. Lines that do not decode are
// logged, counted and skipped.
func (o *OllamaClient) GenerateStream(ctx context.Context, prompt string) (TokenStream, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "ollama.generate_stream")
	span.SetAttributes(attribute.String("llm.model", o.model))

	resp, err := o.post(ctx, "/api/generate", ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: true})
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		span.End()
		return nil, fmt.Errorf("%w: %w", models.ErrGenerationService, err)
	}

	return &ollamaStream{
		ctx:     ctx,
		body:    resp.Body,
		reader:  bufio.NewReaderSize(resp.Body, 64*1024),
		metrics: o.metrics,
		span:    span,
	}, nil
}

func (o *OllamaClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return resp, nil
}

type ollamaStream struct {
	ctx       context.Context
	body      io.ReadCloser
	reader    *bufio.Reader
	line      []byte
	metrics   *telemetry.Metrics
	span      trace.Span
	eof       bool
	done      bool
	malformed int
}

func (s *ollamaStream) Next() (string, error) {
	for !s.done {
		if s.eof {
			s.done = true
			if err := s.ctx.Err(); err != nil {
				return "", err
			}
			// Connection closed without a done marker.
			return "", io.EOF
		}

		raw, oversize, err := s.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.done = true
				if ctxErr := s.ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				return "", fmt.Errorf("%w: read stream: %w", models.ErrGenerationService, err)
			}
			s.eof = true
		}
		if oversize {
			s.skipMalformed(errors.New("line exceeds limit"), maxStreamLine)
			continue
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		var frag ollamaFragment
		if err := json.Unmarshal(line, &frag); err != nil {
			s.skipMalformed(err, len(line))
			continue
		}
		if frag.Error != "" {
			s.done = true
			return "", fmt.Errorf("%w: %s", models.ErrGenerationService, frag.Error)
		}
		if frag.Done {
			s.done = true
		}
		if frag.Response != "" {
			return frag.Response, nil
		}
	}
	return "", io.EOF
}

// readLine returns the next newline-terminated line. A line past
// maxStreamLine is drained and reported as oversize with no content.
func (s *ollamaStream) readLine() ([]byte, bool, error) {
	s.line = s.line[:0]
	oversize := false
	for {
		part, err := s.reader.ReadSlice('\n')
		if !oversize {
			if len(s.line)+len(part) > maxStreamLine {
				oversize = true
				s.line = s.line[:0]
			} else {
				s.line = append(s.line, part...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return s.line, oversize, err
	}
}

func (s *ollamaStream) skipMalformed(err error, size int) {
	s.malformed++
	s.metrics.RecordMalformedFragment("ollama")
	logger.Warn("Skipping malformed generation fragment", "error", err, "line_bytes", size)
}

func (s *ollamaStream) Close() error {
	if s.malformed > 0 {
		s.span.SetAttributes(attribute.Int("llm.malformed_fragments", s.malformed))
	}
	s.span.End()
	err := s.body.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
