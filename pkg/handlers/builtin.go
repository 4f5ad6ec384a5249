package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cosmosclient/internal/governance"
	"github.com/polisai/cosmosclient/pkg/domain"
)

const tracerName = "github.com/polisai/cosmosclient/pkg/handlers"

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// UserAgentHandler stamps the composed user agent on every request.
type UserAgentHandler struct {
	userAgent string
}

// NewUserAgentHandler creates a handler that sets the User-Agent header.
func NewUserAgentHandler(userAgent string) *UserAgentHandler {
	return &UserAgentHandler{userAgent: userAgent}
}

// UserAgent returns the value the handler stamps.
func (h *UserAgentHandler) UserAgent() string { return h.userAgent }

// Inner implements RequestHandler.
func (h *UserAgentHandler) Inner() RequestHandler { return nil }

// Handle implements RequestHandler.
func (h *UserAgentHandler) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	req.Headers.Set(HeaderUserAgent, h.userAgent)
	return next(ctx, req)
}

// TimeoutHandler bounds each attempt by the policy's request timeout.
type TimeoutHandler struct {
	timeouts *governance.TimeoutManager
}

// NewTimeoutHandler creates a handler enforcing timeout. Non-positive values disable it.
func NewTimeoutHandler(timeout time.Duration) *TimeoutHandler {
	return &TimeoutHandler{timeouts: governance.NewTimeoutManager(timeout)}
}

// Inner implements RequestHandler.
func (h *TimeoutHandler) Inner() RequestHandler { return nil }

// Handle implements RequestHandler.
func (h *TimeoutHandler) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	ctx, cancel := h.timeouts.WithRequestTimeout(ctx)
	defer cancel()

	resp, err := next(ctx, req)
	if err != nil && errors.Is(context.Cause(ctx), governance.ErrRequestTimeout) {
		return nil, fmt.Errorf("%w after %s: %w", governance.ErrRequestTimeout, h.timeouts.RequestTimeout(), err)
	}
	return resp, err
}

// ThrottleRetryHandler retries requests the service rejected with 429, honouring
// the x-ms-retry-after-ms hint, within the attempt and wait budget of the policy.
// When the budget runs out the last throttled response is returned as-is.
type ThrottleRetryHandler struct {
	policy *governance.RetryPolicy
	logger *slog.Logger
}

// NewThrottleRetryHandler creates a handler from resolved retry options.
func NewThrottleRetryHandler(opts domain.RetryOptions, logger *slog.Logger) *ThrottleRetryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThrottleRetryHandler{
		policy: governance.NewRetryPolicy(governance.RetryConfigFromOptions(opts)),
		logger: logger,
	}
}

// Inner implements RequestHandler.
func (h *ThrottleRetryHandler) Inner() RequestHandler { return nil }

// Handle implements RequestHandler.
func (h *ThrottleRetryHandler) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	var last *Response
	retries, err := h.policy.Execute(ctx, func(int) (governance.Attempt, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return governance.Attempt{}, err
		}
		last = resp
		return governance.Attempt{StatusCode: resp.StatusCode, RetryAfter: retryAfter(resp.Headers)}, nil
	})

	switch {
	case errors.Is(err, governance.ErrMaxRetriesExceeded):
		h.logger.Warn("throttle retry budget exhausted",
			"operation", req.Operation,
			"resource", req.ResourceLink,
			"retries", retries,
		)
	case err != nil:
		return nil, err
	}

	if retries > 0 && last != nil {
		if last.Headers == nil {
			last.Headers = http.Header{}
		}
		last.Headers.Set(HeaderThrottleRetryCount, strconv.Itoa(retries))
	}
	return last, nil
}

func retryAfter(h http.Header) time.Duration {
	ms, err := strconv.ParseInt(h.Get(HeaderRetryAfterMs), 10, 64)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// CircuitBreakerConfig tunes the circuit breaker handler.
type CircuitBreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultCircuitBreakerConfig returns the breaker defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                "cosmos-transport",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// errServerFailure marks a 5xx response as a breaker failure without turning it into an error.
var errServerFailure = errors.New("server failure")

// CircuitBreakerHandler stops sending requests after repeated transport errors or 5xx responses.
type CircuitBreakerHandler struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreakerHandler creates a breaker handler.
func NewCircuitBreakerHandler(cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.ConsecutiveFailures
	return &CircuitBreakerHandler{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// State reports the breaker state.
func (h *CircuitBreakerHandler) State() gobreaker.State { return h.cb.State() }

// Inner implements RequestHandler.
func (h *CircuitBreakerHandler) Inner() RequestHandler { return nil }

// Handle implements RequestHandler.
func (h *CircuitBreakerHandler) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	var resp *Response
	_, err := h.cb.Execute(func() (interface{}, error) {
		r, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return r, errServerFailure
		}
		return r, nil
	})

	switch {
	case err == nil, errors.Is(err, errServerFailure):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	default:
		return nil, err
	}
}

// TracingHandler records one span per request.
type TracingHandler struct {
	tracer trace.Tracer
}

// NewTracingHandler creates a tracing handler. A nil tracer uses the global provider.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &TracingHandler{tracer: tracer}
}

// Inner implements RequestHandler.
func (h *TracingHandler) Inner() RequestHandler { return nil }

// Handle implements RequestHandler.
func (h *TracingHandler) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	ctx, span := h.tracer.Start(ctx, "cosmos."+string(req.Operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "cosmosdb"),
			attribute.String("db.operation", string(req.Operation)),
			attribute.String("cosmos.resource_type", string(req.ResourceType)),
			attribute.String("cosmos.resource_link", req.ResourceLink),
		),
	)
	defer span.End()

	resp, err := next(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
