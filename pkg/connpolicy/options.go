package connpolicy

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cosmosclient/pkg/handlers"
	"github.com/polisai/cosmosclient/pkg/useragent"
)

const tracerName = "github.com/polisai/cosmosclient/pkg/connpolicy"

// Option customizes a Build call.
type Option func(*options)

type options struct {
	env       useragent.Environment
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	transport handlers.Transport
	breaker   *handlers.CircuitBreakerConfig
}

func newOptions(opts []Option) *options {
	o := &options{
		env:    useragent.DetectEnvironment(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// WithEnvironment overrides the runtime descriptor used to compose the user agent.
func WithEnvironment(env useragent.Environment) Option {
	return func(o *options) { o.env = env }
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records build outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer sets the tracer for the build span and the request pipeline.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithTransport sets the transport the resolved pipeline delivers to.
func WithTransport(t handlers.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithCircuitBreaker adds a circuit breaker in front of the throttle retry handler.
func WithCircuitBreaker(cfg handlers.CircuitBreakerConfig) Option {
	return func(o *options) { o.breaker = &cfg }
}
