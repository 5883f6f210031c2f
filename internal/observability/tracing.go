package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Semantic-convention attribute keys used by the call-graph recorder.
// Mirrors the teacher's internal/infra/telemetry/semconv.go style of
// pre-declared attribute.Key constants plus small builder helpers.
const (
	AttrFactoryName = attribute.Key("janaflow.factory.name")
	AttrFactoryTag  = attribute.Key("janaflow.factory.tag")
	AttrEventNumber = attribute.Key("janaflow.event.number")
	AttrRunNumber   = attribute.Key("janaflow.run.number")
	AttrWorkerID    = attribute.Key("janaflow.worker.id")
	AttrArrowName   = attribute.Key("janaflow.arrow.name")
)

// FactoryAttributes builds the attribute set stamped on a call-graph span
// opened for a factory's create_and_get.
func FactoryAttributes(name, tag string, eventNum, runNum int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFactoryName.String(name),
		AttrFactoryTag.String(tag),
		AttrEventNumber.Int64(eventNum),
		AttrRunNumber.Int64(runNum),
	}
}

// NewTracerProvider builds an in-process otel TracerProvider with no
// exporter wired: the call-graph recorder only needs span parent/child
// nesting for ancestor queries, not an external sink. Callers that want
// spans exported can register a SpanProcessor on the returned provider
// before installing it with otel.SetTracerProvider.
func NewTracerProvider() *trace.TracerProvider {
	return trace.NewTracerProvider()
}

// Tracer returns the engine's named tracer, falling back to a no-op
// tracer when no provider has been installed.
func Tracer() oteltrace.Tracer {
	if otel.GetTracerProvider() == nil {
		return noop.NewTracerProvider().Tracer("janaflow")
	}
	return otel.Tracer("janaflow")
}
