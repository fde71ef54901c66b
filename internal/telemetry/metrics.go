package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	IngestDuration      metric.Float64Histogram
	ChunksIngested      metric.Int64Counter
	TokensStreamed      metric.Int64Counter
	MalformedFragments  metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	VectorOperations    metric.Int64Counter
	SessionsReaped      metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("pdf-rag-chat")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"rag.ingest.duration",
		metric.WithDescription("PDF ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIngested, err := meter.Int64Counter(
		"rag.chunks.ingested",
		metric.WithDescription("Chunks embedded and stored"),
	)
	if err != nil {
		return nil, err
	}

	tokensStreamed, err := meter.Int64Counter(
		"llm.tokens.streamed",
		metric.WithDescription("Generation fragments delivered to clients"),
	)
	if err != nil {
		return nil, err
	}

	malformed, err := meter.Int64Counter(
		"llm.stream.malformed_fragments",
		metric.WithDescription("Undecodable generation stream lines skipped"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	vectorOps, err := meter.Int64Counter(
		"vectorstore.operations.total",
		metric.WithDescription("Total vector index operations"),
	)
	if err != nil {
		return nil, err
	}

	sessionsReaped, err := meter.Int64Counter(
		"rag.sessions.reaped",
		metric.WithDescription("Idle sessions cleaned up by the reaper"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		IngestDuration:      ingestDuration,
		ChunksIngested:      chunksIngested,
		TokensStreamed:      tokensStreamed,
		MalformedFragments:  malformed,
		CircuitBreakerState: circuitBreakerState,
		VectorOperations:    vectorOps,
		SessionsReaped:      sessionsReaped,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngest records one ingestion attempt.
func (m *Metrics) RecordIngest(duration float64, chunks int, status string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("ingest.status", status))
	m.IngestDuration.Record(context.Background(), duration, attrs)
	if chunks > 0 {
		m.ChunksIngested.Add(context.Background(), int64(chunks), attrs)
	}
}

func (m *Metrics) RecordTokens(n int64, provider string) {
	if m == nil || n == 0 {
		return
	}
	m.TokensStreamed.Add(context.Background(), n, metric.WithAttributes(attribute.String("llm.provider", provider)))
}

func (m *Metrics) RecordMalformedFragment(provider string) {
	if m == nil {
		return
	}
	m.MalformedFragments.Add(context.Background(), 1, metric.WithAttributes(attribute.String("llm.provider", provider)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordVectorOperation records vector index operation metrics
func (m *Metrics) RecordVectorOperation(operation, backend string, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("vector.operation", operation),
		attribute.String("vector.backend", backend),
		attribute.Bool("vector.success", success),
	}

	m.VectorOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSessionsReaped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SessionsReaped.Add(context.Background(), int64(n))
}
