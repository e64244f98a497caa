// Package trace exposes the tracer used for engine spans.
//
// The tracer comes from the global otel tracer provider, so it is a no-op
// unless the embedding application installs a real provider.
package trace

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentName is the instrumentation scope reported on every span.
const InstrumentName = "chat-llm-terminal"

// Tracer is the tracer for turn and team-step spans.
var Tracer trace.Tracer = otel.Tracer(InstrumentName)
