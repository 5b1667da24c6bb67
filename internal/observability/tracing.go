// Package observability wires OpenTelemetry trace export into Genkit.
//
// Genkit instruments every generation and embedding call with spans on its
// own TracerProvider. This package attaches an OTLP HTTP exporter to that
// provider so the spans reach a local collector (Datadog Agent, otel-collector,
// Jaeger) instead of being dropped.
//
// The collector endpoint comes from config (otlp_endpoint); leaving it empty
// disables export entirely, which is the default for local development.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector endpoint, host:port. Empty disables
	// export.
	Endpoint string
	// ServiceName tags exported spans with service.name.
	ServiceName string
	// Environment tags exported spans with deployment.environment.
	Environment string
}

// Setup registers an OTLP HTTP exporter with Genkit's TracerProvider.
//
// Must run before genkit.Init so spans from initialization are captured.
// Returns a shutdown function that flushes pending spans; it is always
// non-nil and safe to call.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		logger.Debug("trace export disabled, no OTLP endpoint configured")
		return noop
	}

	// Genkit's TracerProvider reads the standard OTEL env vars for resource
	// attributes. Set before goroutines are spawned; os.Setenv is not
	// concurrent-safe.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	// The collector is expected on localhost or a private network hop, so
	// plain HTTP is acceptable. The collector handles auth and forwarding.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return noop
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown
}
