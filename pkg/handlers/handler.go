// Package handlers implements the request pipeline a client sends every
// operation through: caller-supplied middleware first, then the built-in
// handlers, then the transport.
package handlers

import (
	"context"
	"net/http"
)

// Header names understood by the built-in handlers.
const (
	HeaderUserAgent          = "User-Agent"
	HeaderActivityID         = "x-ms-activity-id"
	HeaderRetryAfterMs       = "x-ms-retry-after-ms"
	HeaderThrottleRetryCount = "x-ms-throttle-retry-count"
)

// OperationType names the kind of operation a request performs.
type OperationType string

const (
	OperationCreate  OperationType = "Create"
	OperationRead    OperationType = "Read"
	OperationReplace OperationType = "Replace"
	OperationDelete  OperationType = "Delete"
)

// ResourceType names the kind of resource a request targets.
type ResourceType string

const (
	ResourceDatabase ResourceType = "Database"
	ResourceUser     ResourceType = "User"
)

// Request is an outgoing operation as seen by the pipeline.
type Request struct {
	Operation    OperationType
	ResourceType ResourceType
	// ResourceLink addresses the target, e.g. "dbs/db1/users/u1".
	ResourceLink string
	Headers      http.Header
	Body         []byte
}

// Response is the transport's answer to a Request.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Next invokes the remainder of the pipeline.
type Next func(ctx context.Context, req *Request) (*Response, error)

// RequestHandler is a middleware component in the pipeline.
//
// Handle receives the remainder of the pipeline as next; a handler that
// stores its own successor reports it through Inner and cannot be added to
// a pipeline.
type RequestHandler interface {
	Handle(ctx context.Context, req *Request, next Next) (*Response, error)
	Inner() RequestHandler
}

// HandlerFunc adapts a function to RequestHandler.
type HandlerFunc func(ctx context.Context, req *Request, next Next) (*Response, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *Request, next Next) (*Response, error) {
	return f(ctx, req, next)
}

// Inner always returns nil.
func (f HandlerFunc) Inner() RequestHandler { return nil }

// Delegating is embedded by handlers that may be composed by hand. A zero
// Delegating is unlinked; setting InnerHandler links it.
type Delegating struct {
	InnerHandler RequestHandler
}

// Inner returns the linked successor, if any.
func (d Delegating) Inner() RequestHandler { return d.InnerHandler }

// Transport performs a request against the service. It terminates the pipeline.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// RoundTrip calls f.
func (f TransportFunc) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
