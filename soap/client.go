// Package soap implements the remote call layer for the SOAP partner API.
//
// A [Client] posts one envelope per operation to the session's server URL and
// returns the decoded <operationResponse> element as a generic [Element] tree.
// It owns everything transport-shaped:
//   - SessionHeader and QueryOptions headers
//   - SOAP fault decoding into *core.FaultError
//   - Retry with exponential backoff and jitter for transport failures
//   - One transparent re-login when the session has expired
//   - Token bucket rate limiting before every call
//
// Higher layers see an opaque RPC:
//
//	resp, err := c.Call(ctx, "query", soap.Field("queryString", "SELECT Id FROM Account"))
//	result := resp.Result()
package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrewBradfordXYZ/sforce-go/auth"
	"github.com/DrewBradfordXYZ/sforce-go/core"
)

const tracerName = "github.com/DrewBradfordXYZ/sforce-go/soap"

// Client performs SOAP calls with session handling, retry and rate limiting.
type Client struct {
	auth       auth.Strategy
	httpClient *http.Client

	// Retry configuration
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration

	batchSize   int
	rateLimiter *RateLimiter
	logger      *core.Logger
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithMaxRetries sets the maximum number of retry attempts (default 3).
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = max(0, n)
	}
}

// WithRetryDelay sets the initial delay between retries (default 500ms).
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxRetryDelay caps the delay between retries (default 10s).
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxRetryDelay = d
	}
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// WithQueryBatchSize sets the QueryOptions batch size sent with query calls.
// The service accepts 200 to 2000; zero leaves the header out.
func WithQueryBatchSize(n int) Option {
	return func(c *Client) {
		c.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *core.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider (default: the global one).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// New creates a new SOAP client.
func New(strategy auth.Strategy, opts ...Option) *Client {
	c := &Client{
		auth:          strategy,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		maxRetries:    3,
		retryDelay:    500 * time.Millisecond,
		maxRetryDelay: 10 * time.Second,
		logger:        core.NewLogger(false),
		tracer:        otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(25, 25)
	}

	return c
}

// Call invokes operation with params as the children of the operation element.
//
// Retryable failures (network errors, HTTP 429/5xx without a fault, and
// SERVER_UNAVAILABLE faults) are retried with exponential backoff. Write
// operations are not retried after a network error or a 500, 502 or 504,
// since the service may already have applied them. An
// INVALID_SESSION_ID fault invalidates the session through the auth strategy
// and is retried once immediately. Any other error, including every other
// SOAP fault, is returned as-is.
func (c *Client) Call(ctx context.Context, operation string, params ...*Element) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "soap."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", operation)),
	)
	defer span.End()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.maxRetryDelay

	start := time.Now()
	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		attempt++
		resp, session, err := c.do(ctx, operation, params)
		if err != nil && core.IsInvalidSession(err) {
			c.auth.Invalidate(session)
			c.logger.Session("invalidated", session.ServerURL)
			resp, _, err = c.do(ctx, operation, params)
		}
		switch {
		case err == nil:
			return resp, nil
		case attempt > c.maxRetries || !shouldRetry(operation, err):
			return nil, backoff.Permanent(err)
		}
		var transport *core.TransportError
		if errors.As(err, &transport) && transport.RetryAfter > 0 {
			return nil, backoff.RetryAfter(int(transport.RetryAfter / time.Second))
		}
		return nil, err
	},
		backoff.WithBackOff(policy),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Retry(attempt, c.maxRetries, d, err.Error())
		}),
	)

	span.SetAttributes(attribute.Int("rpc.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.logger.Timing(operation, time.Since(start))
	return resp, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, operation string, params []*Element) (*Response, auth.Session, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, auth.Session{}, err
	}

	session, err := c.auth.Session(ctx)
	if err != nil {
		c.rateLimiter.Release()
		return nil, session, fmt.Errorf("getting session: %w", err)
	}

	body, err := encodeRequest(session.ID, c.batchSize, operation, params)
	if err != nil {
		c.rateLimiter.Release()
		return nil, session, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.ServerURL, bytes.NewReader(body))
	if err != nil {
		c.rateLimiter.Release()
		return nil, session, fmt.Errorf("creating %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", operation)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, session, ctxErr
		}
		return nil, session, &core.TransportError{Operation: operation, Cause: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, session, &core.TransportError{Operation: operation, StatusCode: httpResp.StatusCode, Status: httpResp.Status, Cause: err}
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, session, &core.TransportError{
			Operation:  operation,
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")),
		}
	}

	resp, err := decodeResponse(operation, data)
	if err != nil {
		var fault *core.FaultError
		if errors.As(err, &fault) || httpResp.StatusCode == http.StatusOK {
			return nil, session, err
		}
		return nil, session, &core.TransportError{Operation: operation, StatusCode: httpResp.StatusCode, Status: httpResp.Status, Cause: err}
	}
	return resp, session, nil
}

// writeOperations change data. A lost reply does not mean they were not applied.
var writeOperations = map[string]bool{
	"create":      true,
	"update":      true,
	"upsert":      true,
	"delete":      true,
	"undelete":    true,
	"merge":       true,
	"convertLead": true,
}

// shouldRetry reports whether a failed attempt of operation may be sent again.
func shouldRetry(operation string, err error) bool {
	if !core.IsRetryableError(err) {
		return false
	}
	return !writeOperations[operation] || !ambiguous(err)
}

// ambiguous reports whether err leaves open if the request was processed.
func ambiguous(err error) bool {
	var transport *core.TransportError
	if !errors.As(err, &transport) {
		return false
	}
	switch transport.StatusCode {
	case 0, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter parses a Retry-After header given in seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
