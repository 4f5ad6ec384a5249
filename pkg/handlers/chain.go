package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/polisai/cosmosclient/pkg/domain"
)

// ErrNoTransport is returned by Send when the pipeline has nothing to deliver requests to.
var ErrNoTransport = errors.New("no transport configured")

// ErrNoResponse is returned when a handler or transport yields neither a response nor an error.
var ErrNoResponse = fmt.Errorf("no response produced: %w", domain.ErrInvalidArgument)

// ValidateChain checks caller-supplied handlers before they are placed into a
// pipeline. It returns handlers unchanged on success.
func ValidateChain(handlers []RequestHandler) ([]RequestHandler, error) {
	for i, h := range handlers {
		field := fmt.Sprintf("CustomHandlers[%d]", i)
		if h == nil {
			return nil, domain.NewConfigError(domain.KindInvalidArgument, field, "handler is nil")
		}
		if h.Inner() != nil {
			return nil, domain.NewConfigError(domain.KindInvalidHandlerChain, field,
				"handler %T already has an inner handler", h)
		}
	}
	return handlers, nil
}

// Pipeline is an ordered, immutable handler chain ending in a transport.
type Pipeline struct {
	handlers  []RequestHandler
	custom    int
	transport Transport
}

// Chain validates custom and builds a pipeline running custom handlers in
// order, then builtins, then transport. transport may be nil, in which case
// Send fails with ErrNoTransport.
func Chain(transport Transport, custom []RequestHandler, builtins ...RequestHandler) (*Pipeline, error) {
	validated, err := ValidateChain(custom)
	if err != nil {
		return nil, err
	}

	all := make([]RequestHandler, 0, len(validated)+len(builtins))
	all = append(all, validated...)
	for i, h := range builtins {
		if h == nil {
			return nil, fmt.Errorf("builtin handler %d is nil: %w", i, domain.ErrInvalidArgument)
		}
		all = append(all, h)
	}

	return &Pipeline{handlers: all, custom: len(validated), transport: transport}, nil
}

// Handlers returns a copy of the chain in execution order.
func (p *Pipeline) Handlers() []RequestHandler {
	out := make([]RequestHandler, len(p.handlers))
	copy(out, p.handlers)
	return out
}

// Custom returns the caller-supplied handlers at the head of the chain.
func (p *Pipeline) Custom() []RequestHandler {
	out := make([]RequestHandler, p.custom)
	copy(out, p.handlers[:p.custom])
	return out
}

// HasTransport reports whether Send can reach a transport.
func (p *Pipeline) HasTransport() bool {
	return p.transport != nil
}

// WithTransport returns a pipeline sharing the same handlers but delivering to t.
func (p *Pipeline) WithTransport(t Transport) *Pipeline {
	return &Pipeline{handlers: p.handlers, custom: p.custom, transport: t}
}

// Send runs req through every handler and the transport.
func (p *Pipeline) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil: %w", domain.ErrInvalidArgument)
	}
	return p.step(0)(ctx, req)
}

func (p *Pipeline) step(i int) Next {
	return func(ctx context.Context, req *Request) (*Response, error) {
		var (
			resp *Response
			err  error
		)
		switch {
		case i < len(p.handlers):
			resp, err = p.handlers[i].Handle(ctx, req, p.step(i+1))
			if resp == nil && err == nil {
				return nil, fmt.Errorf("handler %d (%T): %w", i, p.handlers[i], ErrNoResponse)
			}
		case p.transport == nil:
			return nil, ErrNoTransport
		default:
			resp, err = p.transport.RoundTrip(ctx, req)
			if resp == nil && err == nil {
				return nil, fmt.Errorf("transport %T: %w", p.transport, ErrNoResponse)
			}
		}
		return resp, err
	}
}
