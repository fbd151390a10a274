// Package observer provides OTEL-based observability for conduit loops.
//
// It exposes an OTEL-backed conduit.Tracer, a Streamer wrapper that traces
// every generation, and a hub subscriber that turns the loop's event stream
// into metrics. Users export to any OTEL-compatible backend by setting
// standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/conduit/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	RunsAssigned  metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsForked    metric.Int64Counter
	ToolCalls     metric.Int64Counter
	ToolResults   metric.Int64Counter
	TokenUsage    metric.Int64Counter
	Generations   metric.Int64Counter

	// Histograms
	GenerationDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("conduit")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	runsAssigned, err := meter.Int64Counter("loop.runs.assigned",
		metric.WithDescription("Runs assigned to user inputs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	runsCompleted, err := meter.Int64Counter("loop.runs.completed",
		metric.WithDescription("Runs completed"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	runsForked, err := meter.Int64Counter("loop.runs.forked",
		metric.WithDescription("Runs ended by an injection fork"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	toolCalls, err := meter.Int64Counter("loop.tool.calls",
		metric.WithDescription("Tool calls requested by the model"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	toolResults, err := meter.Int64Counter("loop.tool.results",
		metric.WithDescription("Tool results returned to the model"),
		metric.WithUnit("{result}"))
	if err != nil {
		return nil, err
	}

	tokenUsage, err := meter.Int64Counter("loop.tokens",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	generations, err := meter.Int64Counter("loop.generations",
		metric.WithDescription("Streamer generation count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram("loop.generation.duration",
		metric.WithDescription("Streamer generation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:             tracer,
		Meter:              meter,
		Logger:             logger,
		RunsAssigned:       runsAssigned,
		RunsCompleted:      runsCompleted,
		RunsForked:         runsForked,
		ToolCalls:          toolCalls,
		ToolResults:        toolResults,
		TokenUsage:         tokenUsage,
		Generations:        generations,
		GenerationDuration: generationDuration,
	}, nil
}
