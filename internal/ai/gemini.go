package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"pdf-rag-chat/models"
)

type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGeminiClient(ctx context.Context, apiKey, model, embeddingModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (gc *GeminiClient) Name() string { return "gemini" }

func (gc *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "gemini.embed")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", gc.embeddingModel))

	resp, err := gc.client.EmbeddingModel(gc.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingService, err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", models.ErrEmbeddingService)
	}

	// genai SDK returns []float32 for Embedding.Values
	return resp.Embedding.Values, nil
}

func (gc *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", gc.model))

	resp, err := gc.generativeModel().GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true), attribute.String("llm.error_message", err.Error()))
		return "", fmt.Errorf("%w: %w", models.ErrGenerationService, err)
	}
	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("llm.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
	}
	return responseText(resp), nil
}

// GenerateStream opens a streaming completion. The SDK only sends the request
// on the first read, so that read happens here and a refused request fails
// the call instead of the first Next.
func (gc *GeminiClient) GenerateStream(ctx context.Context, prompt string) (TokenStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	ctx, span := otel.Tracer("llm").Start(ctx, "gemini.generate_stream")
	span.SetAttributes(attribute.String("llm.model", gc.model))

	iter := gc.generativeModel().GenerateContentStream(ctx, genai.Text(prompt))
	stream, err := openGeminiStream(ctx, cancel, span, iter.Next)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (gc *GeminiClient) generativeModel() *genai.GenerativeModel {
	model := gc.client.GenerativeModel(gc.model)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(2048)
	return model
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}

type geminiStream struct {
	ctx     context.Context
	next    func() (*genai.GenerateContentResponse, error)
	pending *genai.GenerateContentResponse
	cancel  context.CancelFunc
	span    trace.Span
	done    bool
}

func openGeminiStream(ctx context.Context, cancel context.CancelFunc, span trace.Span, next func() (*genai.GenerateContentResponse, error)) (*geminiStream, error) {
	s := &geminiStream{ctx: ctx, next: next, cancel: cancel, span: span}

	first, err := next()
	switch {
	case errors.Is(err, iterator.Done):
		s.done = true
	case err != nil:
		span.SetAttributes(attribute.Bool("llm.error", true), attribute.String("llm.error_message", err.Error()))
		err = s.wrap(err)
		s.Close()
		return nil, err
	default:
		s.pending = first
	}
	return s, nil
}

func (s *geminiStream) Next() (string, error) {
	for !s.done {
		resp := s.pending
		s.pending = nil
		var err error
		if resp == nil {
			resp, err = s.next()
		}
		if errors.Is(err, iterator.Done) {
			s.done = true
			break
		}
		if err != nil {
			s.done = true
			return "", s.wrap(err)
		}
		// Responses with no text (safety metadata, usage) are skipped.
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *geminiStream) wrap(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", models.ErrGenerationService, err)
}

func (s *geminiStream) Close() error {
	s.cancel()
	s.span.End()
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
