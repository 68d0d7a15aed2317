// Package observe provides the observability primitives for Voxbridge:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxbridge metrics.
const meterName = "github.com/voxbridge-ai/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTConnectDuration tracks recognizer session establishment latency,
	// including reconnects.
	STTConnectDuration metric.Float64Histogram

	// LLMTurnDuration tracks time from generation request to stream end.
	LLMTurnDuration metric.Float64Histogram

	// TTSFirstChunkDuration tracks time from synthesis request to the first
	// audio chunk, the dominant share of perceived response lag.
	TTSFirstChunkDuration metric.Float64Histogram

	// TurnDuration tracks end-of-caller-speech to first outbound audio.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts backend API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts backend errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations by tool name and status.
	ToolCalls metric.Int64Counter

	// STTReconnects counts recognizer reconnect attempts by outcome.
	STTReconnects metric.Int64Counter

	// BargeIns counts caller interruptions of agent playback.
	BargeIns metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live calls.
	ActiveSessions metric.Int64UpDownCounter

	// --- Cost counters ---

	// CostSTTSeconds accumulates billed recognizer audio seconds.
	CostSTTSeconds metric.Float64Counter

	// CostLLMTokens accumulates billed tokens. Use with attribute:
	//   attribute.String("direction", "input"|"output")
	CostLLMTokens metric.Int64Counter

	// CostTTSCharacters accumulates billed synthesis characters.
	CostTTSCharacters metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTConnectDuration, err = m.Float64Histogram("voxbridge.stt.connect.duration",
		metric.WithDescription("Latency of recognizer session establishment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMTurnDuration, err = m.Float64Histogram("voxbridge.llm.turn.duration",
		metric.WithDescription("Latency from generation request to stream end."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSFirstChunkDuration, err = m.Float64Histogram("voxbridge.tts.first_chunk.duration",
		metric.WithDescription("Latency from synthesis request to first audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("voxbridge.turn.duration",
		metric.WithDescription("Latency from end of caller speech to first outbound audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("voxbridge.provider.requests",
		metric.WithDescription("Total backend API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxbridge.provider.errors",
		metric.WithDescription("Total backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voxbridge.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.STTReconnects, err = m.Int64Counter("voxbridge.stt.reconnects",
		metric.WithDescription("Total recognizer reconnect attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxbridge.barge_ins",
		metric.WithDescription("Total caller interruptions of agent playback."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxbridge.active_sessions",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}

	// Cost counters.
	if met.CostSTTSeconds, err = m.Float64Counter("voxbridge.cost.stt_seconds",
		metric.WithDescription("Billed recognizer audio seconds."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.CostLLMTokens, err = m.Int64Counter("voxbridge.cost.llm_tokens",
		metric.WithDescription("Billed LLM tokens by direction."),
	); err != nil {
		return nil, err
	}
	if met.CostTTSCharacters, err = m.Int64Counter("voxbridge.cost.tts_characters",
		metric.WithDescription("Billed synthesis characters."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// DirInput and DirOutput tag CostLLMTokens increments with their direction.
var (
	DirInput  = metric.WithAttributes(attribute.String("direction", "input"))
	DirOutput = metric.WithAttributes(attribute.String("direction", "output"))
)

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest records a backend request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a backend error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordToolCall records a tool call counter increment.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordSTTReconnect records one reconnect attempt with its outcome
// ("ok" or "failed").
func (m *Metrics) RecordSTTReconnect(ctx context.Context, outcome string) {
	m.STTReconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
