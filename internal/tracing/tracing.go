package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const (
	DefaultServiceName = "contract-registry-relay"
	defaultEndpoint    = "localhost:4317"
	instrumentation    = "github.com/NEAR-Edu/contract-registry/"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
	ContractID  string

	OTLPEndpoint string
	OTLPInsecure bool

	SampleRatio float64
}

// resolve fills blanks from the standard OTEL_* variables, then from defaults.
func (c Config) resolve() Config {
	c.ServiceName = firstNonBlank(c.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), DefaultServiceName)
	c.OTLPEndpoint = sanitizeEndpoint(firstNonBlank(c.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), defaultEndpoint))
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))) {
	case "true", "1", "yes", "on":
		c.OTLPInsecure = true
	case "false", "0", "no", "off":
		c.OTLPInsecure = false
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	return c
}

// Setup installs the global tracer provider and the W3C propagator. A failing
// exporter leaves tracing off; it never stops the relay from starting.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func(context.Context) error { return nil }

	otel.SetTextMapPropagator(propagation.TraceContext{})
	if !cfg.Enabled {
		return noop, nil
	}
	cfg = cfg.resolve()

	creds := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if cfg.OTLPInsecure {
		creds = otlptracegrpc.WithInsecure()
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), creds)
	if err != nil {
		logger.Warn("otel exporter init failed; tracing disabled", "endpoint", cfg.OTLPEndpoint, "err", err)
		return noop, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(cfg, logger)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint, "sample_ratio", cfg.SampleRatio)
	return tp.Shutdown, nil
}

func newResource(cfg Config, logger *slog.Logger) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	if cfg.ContractID != "" {
		attrs = append(attrs, attribute.String("near.contract_id", cfg.ContractID))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		logger.Warn("otel resource init failed; using default", "err", err)
		return resource.Default()
	}
	return res
}

// Start opens a span named "<component>.<op>" on the component's tracer.
func Start(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation+component).Start(ctx, component+"."+op, trace.WithAttributes(attrs...))
}

// End marks span as failed when err is non-nil, then ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// InjectHeaders writes traceparent and tracestate for the span in ctx into h. Used on
// requests to the CI provider and the NEAR node. Baggage never leaves the relay.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))
}

// sanitizeEndpoint turns a URL-style OTLP endpoint into the host:port the gRPC exporter expects.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return strings.TrimSuffix(raw, "/")
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
