package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogSpanProcessor writes every finished span to the logger at debug level.
type LogSpanProcessor struct {
	log zerolog.Logger
}

func NewLogSpanProcessor(log zerolog.Logger) *LogSpanProcessor {
	return &LogSpanProcessor{log: log}
}

func (p *LogSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *LogSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	ev := p.log.Debug().
		Str("span", s.Name()).
		Str("trace_id", s.SpanContext().TraceID().String()).
		Dur("duration", s.EndTime().Sub(s.StartTime())).
		Str("status", s.Status().Code.String())
	for _, kv := range s.Attributes() {
		ev = ev.Str(string(kv.Key), kv.Value.Emit())
	}
	ev.Msg("span finished")
}

func (p *LogSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *LogSpanProcessor) ForceFlush(context.Context) error { return nil }

// InitTracing installs a global tracer provider that logs spans. The
// returned function shuts the provider down.
func InitTracing(log zerolog.Logger) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewLogSpanProcessor(log)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
