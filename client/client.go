// Package client implements query continuation and batched writes on top of
// a SOAP caller.
//
// Queries are driven to completion across query/queryMore round trips, with
// every page normalized before it reaches the caller's accumulator:
//
//	records, err := c.Query(ctx, "SELECT Id, Name FROM Account")
//
//	// Bound memory with a custom accumulator
//	n, err := client.Execute(ctx, c, client.QueryStandard, client.QueryConfig[int]{
//	    Query:    "SELECT Id FROM Task",
//	    Callback: new(client.Counter).Add,
//	})
//
//	// Or stream records
//	for rec, err := range c.QueryIterator(ctx, "SELECT Id FROM Contact") {
//	    if err != nil { ... }
//	}
//
// Writes: Create is split into chunks of CreateChunkSize records, one call per
// chunk. Update, Upsert, Delete, Undelete and Retrieve always make exactly one
// call.
package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrewBradfordXYZ/sforce-go/core"
	"github.com/DrewBradfordXYZ/sforce-go/soap"
)

const tracerName = "github.com/DrewBradfordXYZ/sforce-go/client"

// Caller performs one remote operation. *soap.Client implements it; retry,
// session handling and rate limiting live behind this interface.
type Caller interface {
	Call(ctx context.Context, operation string, params ...*soap.Element) (*soap.Response, error)
}

// Client runs queries and writes through a Caller.
type Client struct {
	caller   Caller
	throttle Throttle
	maxPages int
	logger   *core.Logger
	tracer   trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *core.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithThrottle sets the throttle consulted before every queryMore call.
func WithThrottle(t Throttle) Option {
	return func(c *Client) {
		c.throttle = t
	}
}

// WithPageDelay pauses d before every queryMore call.
func WithPageDelay(d time.Duration) Option {
	return WithThrottle(NewFixedDelayThrottle(d))
}

// WithAdaptiveThrottle backs off between pages while the API usage reported
// by the service is at or above threshold.
func WithAdaptiveThrottle(threshold float64) Option {
	return WithThrottle(NewAdaptiveThrottle(threshold, 0, 0))
}

// WithMaxPages fails a query with *core.PageLimitError once it has fetched n
// pages without completing. Zero (the default) means no limit.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		c.maxPages = max(0, n)
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider (default: the global one).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// New creates a client calling through caller.
func New(caller Caller, opts ...Option) *Client {
	c := &Client{
		caller:   caller,
		throttle: NewNoOpThrottle(),
		logger:   core.NewLogger(false),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.throttle == nil {
		c.throttle = NewNoOpThrottle()
	}
	return c
}

// Throttle returns the throttle in use.
func (c *Client) Throttle() Throttle {
	return c.throttle
}

// observe hands the usage report of resp to the throttle, if it wants it.
func (c *Client) observe(resp *soap.Response) {
	if o, ok := c.throttle.(LimitObserver); ok {
		o.ObserveLimits(resp.Limits())
	}
}

// fail records err on span and returns it unchanged.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
