package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pdf-rag-chat/internal/ai"
	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/models"
)

// ClientErrorMessage is what a client sees when generation fails mid-stream.
const ClientErrorMessage = "Error processing your request"

// ErrSinkUnavailable is returned when the consumer of a streamed answer
// stops accepting events, usually because the client went away.
var ErrSinkUnavailable = errors.New("event sink unavailable")

const promptTemplate = `You are a helpful AI assistant that answers questions about PDF documents. You have access to the following relevant sections from the PDF:

%s

Question: %s

Please provide a clear, concise, and accurate answer based on the PDF content. If the information is not present in the provided sections, please say "I cannot find this information in the PDF." If you need more context to provide a complete answer, please mention that as well.

Format your response in a clear, engaging way:
• Use bullet points (•) for listing items or key points
• Break down complex information into digestible paragraphs
• Use markdown-style formatting:
  - Bold for important terms or key concepts
  - Separate distinct topics with line breaks`

// BuildPrompt grounds the question in the full text of the retrieved chunks.
func BuildPrompt(chunks []models.Chunk, question string) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), question)
}

// BuildSources projects chunks into their truncated citation form.
func BuildSources(chunks []models.Chunk) []models.Source {
	sources := make([]models.Source, len(chunks))
	for i, c := range chunks {
		sources[i] = models.NewSource(c)
	}
	return sources
}

// EventSink consumes a streamed answer. Returning an error from any method
// aborts generation.
type EventSink interface {
	OnChunk(token string, sources []models.Source) error
	OnComplete() error
	OnError(message string) error
}

type EventKind int

const (
	EventToken EventKind = iota
	EventDone
	EventError
)

// ChatEvent is one item of a ChatStream. Sources is the same slice for
// every token of a stream.
type ChatEvent struct {
	Kind    EventKind
	Token   string
	Sources []models.Source
	Err     error
}

// ChatStream delivers a generated answer. Events ends with exactly one
// EventDone or EventError unless the stream is closed first.
type ChatStream struct {
	Sources []models.Source
	Events  <-chan ChatEvent

	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops generation and waits for the producer to exit. Safe to call
// more than once.
func (s *ChatStream) Close() {
	s.cancel()
	<-s.done
}

// ChatService answers questions about a session's documents.
type ChatService struct {
	retriever *Retriever
	generator ai.Generator
	provider  string
	metrics   *telemetry.Metrics
}

func NewChatService(retriever *Retriever, generator ai.Generator, provider string, metrics *telemetry.Metrics) *ChatService {
	return &ChatService{retriever: retriever, generator: generator, provider: provider, metrics: metrics}
}

// Ask returns the whole answer in one piece.
func (c *ChatService) Ask(ctx context.Context, sessionID, message string) (*models.ChatResult, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "rag.ask")
	defer span.End()

	chunks, err := c.retriever.Retrieve(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.sources", len(chunks)))

	answer, err := c.generator.Generate(ctx, BuildPrompt(chunks, message))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &models.ChatResult{Response: answer, Sources: BuildSources(chunks)}, nil
}

// Stream retrieves context and opens generation. Failures up to that point
// are returned directly; later ones arrive as an EventError.
func (c *ChatService) Stream(ctx context.Context, sessionID, message string) (*ChatStream, error) {
	chunks, err := c.retriever.Retrieve(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	sources := BuildSources(chunks)

	ctx, cancel := context.WithCancel(ctx)
	tokens, err := c.generator.GenerateStream(ctx, BuildPrompt(chunks, message))
	if err != nil {
		cancel()
		return nil, err
	}

	events := make(chan ChatEvent)
	s := &ChatStream{Sources: sources, Events: events, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(events)
		defer tokens.Close()

		send := func(ev ChatEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			tok, err := tokens.Next()
			switch {
			case err == io.EOF:
				send(ChatEvent{Kind: EventDone, Sources: sources})
				return
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, models.ErrGenerationService) {
					err = fmt.Errorf("%w: %w", models.ErrGenerationService, err)
				}
				send(ChatEvent{Kind: EventError, Err: err, Sources: sources})
				return
			}
			if !send(ChatEvent{Kind: EventToken, Token: tok, Sources: sources}) {
				return
			}
		}
	}()

	return s, nil
}

// Chat drives sink with a streamed answer and returns what was delivered.
// With a nil sink it behaves like Ask. Errors before the first token are
// returned without touching the sink; a generation failure afterwards is
// reported through OnError and returned alongside the partial answer.
func (c *ChatService) Chat(ctx context.Context, sessionID, message string, sink EventSink) (*models.ChatResult, error) {
	if sink == nil {
		return c.Ask(ctx, sessionID, message)
	}

	ctx, span := otel.Tracer("services").Start(ctx, "rag.chat_stream")
	defer span.End()

	stream, err := c.Stream(ctx, sessionID, message)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer stream.Close()

	var answer strings.Builder
	var tokens int64
	defer func() {
		c.metrics.RecordTokens(tokens, c.provider)
		span.SetAttributes(attribute.Int64("rag.tokens", tokens))
	}()
	partial := func() *models.ChatResult {
		return &models.ChatResult{Response: answer.String(), Sources: stream.Sources}
	}

	for ev := range stream.Events {
		switch ev.Kind {
		case EventToken:
			answer.WriteString(ev.Token)
			tokens++
			if err := sink.OnChunk(ev.Token, ev.Sources); err != nil {
				logger.Info("Client stopped receiving, aborting generation", "session_id", sessionID, "tokens", tokens)
				return partial(), fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
			}
		case EventDone:
			if err := sink.OnComplete(); err != nil {
				return partial(), fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
			}
			return partial(), nil
		case EventError:
			span.RecordError(ev.Err)
			logger.Error("Generation failed mid-stream", "session_id", sessionID, "tokens", tokens, "error", ev.Err)
			if err := sink.OnError(ClientErrorMessage); err != nil {
				logger.Debug("Could not deliver stream error to client", "error", err)
			}
			return partial(), ev.Err
		}
	}

	// Events closed without a terminal event: the context was cancelled.
	if err := ctx.Err(); err != nil {
		return partial(), err
	}
	return partial(), fmt.Errorf("%w: stream ended unexpectedly", models.ErrGenerationService)
}
