package turn

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ppiankov/turnguard/internal/turn"

// telemetry holds the OpenTelemetry instruments. They bind to whatever
// global providers are installed; without one they are no-ops.
type telemetry struct {
	tracer  trace.Tracer
	turns   metric.Int64Counter
	clamps  metric.Int64Counter
	blocks  metric.Int64Counter
	failure metric.Int64Counter
}

var (
	telOnce sync.Once
	tel     *telemetry
)

func instruments() *telemetry {
	telOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		t := &telemetry{tracer: otel.Tracer(instrumentationName)}
		// Instrument creation only fails on invalid names; the returned
		// instrument is still usable.
		t.turns, _ = meter.Int64Counter("turnguard.turns",
			metric.WithDescription("Completed turns"))
		t.clamps, _ = meter.Int64Counter("turnguard.clamps",
			metric.WithDescription("Oracle intent choices corrected into the allowed set"))
		t.blocks, _ = meter.Int64Counter("turnguard.guard.blocks",
			metric.WithDescription("Replies replaced by the safe refusal"))
		t.failure, _ = meter.Int64Counter("turnguard.turn.failures",
			metric.WithDescription("Turns that failed and committed nothing"))
		tel = t
	})
	return tel
}
