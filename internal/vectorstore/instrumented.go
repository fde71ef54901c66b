package vectorstore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/models"
)

type instrumented struct {
	Store
	metrics *telemetry.Metrics
}

// Instrument wraps s so every call is traced and counted.
func Instrument(s Store, metrics *telemetry.Metrics) Store {
	return &instrumented{Store: s, metrics: metrics}
}

func (i *instrumented) start(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("vectorstore").Start(ctx, "vectorstore."+op)
	span.SetAttributes(
		attribute.String("vector.backend", i.Backend()),
		attribute.String("vector.collection", collection),
	)
	return ctx, span
}

func (i *instrumented) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	i.metrics.RecordVectorOperation(op, i.Backend(), err == nil)
}

func (i *instrumented) CreateCollection(ctx context.Context, name string, dimension int, distance string) error {
	ctx, span := i.start(ctx, "create_collection", name)
	err := i.Store.CreateCollection(ctx, name, dimension, distance)
	i.finish(span, "create_collection", err)
	return err
}

func (i *instrumented) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := i.start(ctx, "delete_collection", name)
	err := i.Store.DeleteCollection(ctx, name)
	i.finish(span, "delete_collection", err)
	return err
}

func (i *instrumented) Upsert(ctx context.Context, collection string, points []models.Point) error {
	ctx, span := i.start(ctx, "upsert", collection)
	span.SetAttributes(attribute.Int("vector.points", len(points)))
	err := i.Store.Upsert(ctx, collection, points)
	i.finish(span, "upsert", err)
	return err
}

func (i *instrumented) Search(ctx context.Context, collection string, vector []float32, limit int) ([]models.Chunk, error) {
	ctx, span := i.start(ctx, "search", collection)
	span.SetAttributes(attribute.Int("vector.limit", limit))
	chunks, err := i.Store.Search(ctx, collection, vector, limit)
	span.SetAttributes(attribute.Int("vector.hits", len(chunks)))
	i.finish(span, "search", err)
	return chunks, err
}
