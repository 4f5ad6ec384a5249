// Package client is a document database client limited to database and user
// resources. Every operation runs through the request pipeline resolved from
// the client's configuration.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/cosmosclient/pkg/config"
	"github.com/polisai/cosmosclient/pkg/connpolicy"
	"github.com/polisai/cosmosclient/pkg/domain"
	"github.com/polisai/cosmosclient/pkg/handlers"
	"github.com/polisai/cosmosclient/pkg/serialization"
)

// Option customizes a Client.
type Option func(*options)

type options struct {
	transport  handlers.Transport
	logger     *slog.Logger
	metrics    *Metrics
	buildOpts  []connpolicy.Option
	activityID func() string
}

// WithTransport sets the transport requests are delivered to.
func WithTransport(t handlers.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithLogger sets the logger for the client and its pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records every operation into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBuildOptions passes options through to the connection policy build.
func WithBuildOptions(opts ...connpolicy.Option) Option {
	return func(o *options) { o.buildOpts = append(o.buildOpts, opts...) }
}

// Client is safe for concurrent use. Its policy is fixed at construction.
type Client struct {
	resolution *connpolicy.Resolution
	logger     *slog.Logger
	metrics    *Metrics
	activityID func() string
}

// New resolves cfg and creates a client. Later changes to cfg do not affect the client.
func New(cfg *config.ClientConfiguration, opts ...Option) (*Client, error) {
	o := &options{logger: slog.Default(), activityID: uuid.NewString}
	for _, opt := range opts {
		opt(o)
	}

	buildOpts := append([]connpolicy.Option{
		connpolicy.WithLogger(o.logger),
		connpolicy.WithTransport(o.transport),
	}, o.buildOpts...)

	res, err := connpolicy.Build(cfg, buildOpts...)
	if err != nil {
		return nil, err
	}

	o.logger.Info("cosmos client created",
		"endpoint", res.Credentials.Endpoint,
		"mode", res.Policy.ConnectionMode().String(),
		"transport", res.Pipeline.HasTransport(),
	)

	return &Client{
		resolution: res,
		logger:     o.logger,
		metrics:    o.metrics,
		activityID: o.activityID,
	}, nil
}

// NewFromConnectionString creates a client from "AccountEndpoint=...;AccountKey=...;".
func NewFromConnectionString(s string, opts ...Option) (*Client, error) {
	cfg, err := config.FromConnectionString(s)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Endpoint returns the account endpoint.
func (c *Client) Endpoint() string { return c.resolution.Credentials.Endpoint }

// AccountKey returns the account key.
func (c *Client) AccountKey() string { return c.resolution.Credentials.Key }

// Policy returns the resolved connection policy.
func (c *Client) Policy() domain.ConnectionPolicy { return c.resolution.Policy }

// Serializer returns the serializer used for request and response bodies.
func (c *Client) Serializer() *serialization.EffectiveSerializer { return c.resolution.Serializer }

// Pipeline returns the request pipeline.
func (c *Client) Pipeline() *handlers.Pipeline { return c.resolution.Pipeline }

// Options returns a copy of the configuration the client was built from.
func (c *Client) Options() *config.ClientConfiguration { return c.resolution.Configuration.Clone() }

// Database returns a handle to the database id. No request is sent.
func (c *Client) Database(id string) *Database {
	return &Database{client: c, id: id}
}

// CreateDatabaseIfNotExists creates the database id, or reads it when it already exists.
func (c *Client) CreateDatabaseIfNotExists(ctx context.Context, id string) (*DatabaseResponse, error) {
	resp, err := c.Database(id).create(ctx)
	if err == nil || !IsConflict(err) {
		return resp, err
	}
	return c.Database(id).Read(ctx)
}

// result is a successful round trip.
type result struct {
	statusCode int
	activityID string
	body       []byte
}

// send runs req through the pipeline and turns non-2xx statuses into *ResponseError.
func (c *Client) send(ctx context.Context, req *handlers.Request) (*result, error) {
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	activityID := c.activityID()
	req.Headers.Set(handlers.HeaderActivityID, activityID)

	start := time.Now()
	resp, err := c.resolution.Pipeline.Send(ctx, req)
	if c.metrics != nil {
		c.metrics.RecordRequest(req, resp, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Operation, req.ResourceLink, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s %s: %w", req.Operation, req.ResourceLink, handlers.ErrNoResponse)
	}

	if id := resp.Headers.Get(handlers.HeaderActivityID); id != "" {
		activityID = id
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("request failed",
			"operation", req.Operation,
			"resource_link", req.ResourceLink,
			"status", resp.StatusCode,
			"activity_id", activityID,
		)
		return nil, &ResponseError{
			StatusCode:   resp.StatusCode,
			ActivityID:   activityID,
			Operation:    req.Operation,
			ResourceLink: req.ResourceLink,
		}
	}
	return &result{statusCode: resp.StatusCode, activityID: activityID, body: resp.Body}, nil
}

func (c *Client) encode(v any) ([]byte, error) {
	stream, err := c.resolution.Serializer.ToStream(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request body: %w", err)
	}
	return io.ReadAll(stream)
}

func (c *Client) decode(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := c.resolution.Serializer.FromStream(bytes.NewReader(body), v); err != nil {
		return fmt.Errorf("failed to deserialize response body: %w", err)
	}
	return nil
}
