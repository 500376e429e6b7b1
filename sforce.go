// Package sforce provides a Go SDK for the SOAP partner API.
//
// This SDK provides:
//   - Session strategies (existing session, username/password login)
//   - Query continuation across query/queryMore with pluggable accumulators
//   - Normalized records: no class tags, no duplicated Id, sub-queries as slices
//   - Create split into chunks of 200 records
//   - Automatic retry with exponential backoff and jitter, re-login on expired sessions
//   - Page throttling, including backoff driven by the reported API usage
//   - Debug logging and OpenTelemetry spans
//
// Basic usage with password login:
//
//	sf, err := sforce.New(sforce.WithPasswordLogin("user@example.com", "password", "TOKEN"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	records, err := sf.Query(ctx, "SELECT Id, Name FROM Account")
//
// With an existing session:
//
//	sf, err := sforce.New(
//	    sforce.WithSession(sessionID, "https://na1.salesforce.com/services/Soap/u/59.0/00D..."),
//	)
//
// With throttling and a page cap:
//
//	sf, err := sforce.New(
//	    sforce.WithPasswordLogin(user, pass, token),
//	    sforce.WithAdaptiveThrottle(0.8),
//	    sforce.WithMaxPages(500),
//	)
//
// With debug logging:
//
//	sf, err := sforce.New(
//	    sforce.WithPasswordLogin(user, pass, token),
//	    sforce.WithDebug(true),
//	)
package sforce

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/DrewBradfordXYZ/sforce-go/auth"
	"github.com/DrewBradfordXYZ/sforce-go/client"
	"github.com/DrewBradfordXYZ/sforce-go/core"
	"github.com/DrewBradfordXYZ/sforce-go/soap"
	"github.com/DrewBradfordXYZ/sforce-go/sobject"
)

// Client is the main API client. It embeds *client.Client, so Query,
// QueryAll, the iterators, Create, Update, Upsert, Delete, Undelete, Retrieve
// and GetServerTimestamp are available directly.
type Client struct {
	*client.Client

	soap *soap.Client
	auth auth.Strategy
}

// SOAP returns the underlying SOAP client for operations the SDK does not wrap.
func (c *Client) SOAP() *soap.Client {
	return c.soap
}

// Auth returns the session strategy.
func (c *Client) Auth() auth.Strategy {
	return c.auth
}

// SignOut drops the current session, if the strategy supports it.
func (c *Client) SignOut() {
	if s, ok := c.auth.(interface{ SignOut() }); ok {
		s.SignOut()
	}
}

// Re-export types for convenience
type (
	// Records
	Record      = sobject.Record
	WriteResult = sobject.WriteResult
	WriteError  = sobject.WriteError

	// Error types
	UsageError             = core.UsageError
	FaultError             = core.FaultError
	TransportError         = core.TransportError
	MalformedResponseError = core.MalformedResponseError
	PageLimitError         = core.PageLimitError

	// Query types
	QueryMode = client.QueryMode
	Collector = client.Collector
	Counter   = client.Counter

	// Throttle types
	Throttle              = client.Throttle
	NoOpThrottle          = client.NoOpThrottle
	FixedDelayThrottle    = client.FixedDelayThrottle
	SlidingWindowThrottle = client.SlidingWindowThrottle
	AdaptiveThrottle      = client.AdaptiveThrottle
)

// Query modes
const (
	QueryStandard        = client.QueryStandard
	QueryIncludeArchived = client.QueryIncludeArchived
)

// Record keys with special meaning
const (
	FieldID   = sobject.FieldID
	FieldType = sobject.FieldType
)

// CreateChunkSize is the number of records sent per create call.
const CreateChunkSize = client.CreateChunkSize

// Login hosts
const (
	DefaultLoginURL = auth.DefaultLoginURL
	SandboxLoginURL = auth.SandboxLoginURL
)

// ErrNoAuth is returned by New when no session or login is configured.
var ErrNoAuth = errors.New("sforce: no authentication configured; use WithSession, WithPasswordLogin or WithAuth")

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	strategy auth.Strategy

	sessionID string
	serverURL string

	username      string
	password      string
	securityToken string
	loginURL      string
	apiVersion    string

	httpClient *http.Client
	timeout    time.Duration
	debug      bool
	tracer     trace.TracerProvider

	soapOpts   []soap.Option
	clientOpts []client.Option
}

// WithSession uses an existing session id and server URL.
func WithSession(sessionID, serverURL string) Option {
	return func(c *clientConfig) {
		c.sessionID = sessionID
		c.serverURL = serverURL
	}
}

// WithPasswordLogin logs in with username, password and security token.
// Pass an empty security token from trusted networks.
func WithPasswordLogin(username, password, securityToken string) Option {
	return func(c *clientConfig) {
		c.username = username
		c.password = password
		c.securityToken = securityToken
	}
}

// WithAuth sets a custom session strategy.
func WithAuth(strategy auth.Strategy) Option {
	return func(c *clientConfig) {
		c.strategy = strategy
	}
}

// WithLoginURL sets the login host for password login (default DefaultLoginURL).
func WithLoginURL(url string) Option {
	return func(c *clientConfig) {
		c.loginURL = url
	}
}

// WithAPIVersion sets the partner API version used for login (default 59.0).
func WithAPIVersion(version string) Option {
	return func(c *clientConfig) {
		c.apiVersion = version
	}
}

// WithHTTPClient sets the HTTP client used for login and API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-attempt HTTP timeout for login and API calls (default 2m).
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts (default 3).
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) {
		c.soapOpts = append(c.soapOpts, soap.WithMaxRetries(n))
	}
}

// WithRetryDelay sets the initial delay between retries (default 500ms).
func WithRetryDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.soapOpts = append(c.soapOpts, soap.WithRetryDelay(d))
	}
}

// WithMaxRetryDelay caps the delay between retries (default 10s).
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.soapOpts = append(c.soapOpts, soap.WithMaxRetryDelay(d))
	}
}

// WithRateLimit limits calls to rate per second with the given burst.
// A non-positive rate disables the limiter.
func WithRateLimit(rate float64, burst int) Option {
	return func(c *clientConfig) {
		c.soapOpts = append(c.soapOpts, soap.WithRateLimiter(soap.NewRateLimiter(rate, burst)))
	}
}

// WithQueryBatchSize asks the service for n records per query page (200 to 2000).
func WithQueryBatchSize(n int) Option {
	return func(c *clientConfig) {
		c.soapOpts = append(c.soapOpts, soap.WithQueryBatchSize(n))
	}
}

// WithDebug enables debug logging.
func WithDebug(enabled bool) Option {
	return func(c *clientConfig) {
		c.debug = enabled
	}
}

// WithThrottle sets the throttle consulted before every queryMore call.
func WithThrottle(t Throttle) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithThrottle(t))
	}
}

// WithPageDelay pauses d before every queryMore call.
func WithPageDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithPageDelay(d))
	}
}

// WithAdaptiveThrottle backs off between pages while API usage is at or
// above threshold (a ratio such as 0.8).
func WithAdaptiveThrottle(threshold float64) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithAdaptiveThrottle(threshold))
	}
}

// WithMaxPages fails queries that are not done after n pages (default 0: no limit).
func WithMaxPages(n int) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, client.WithMaxPages(n))
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *clientConfig) {
		c.tracer = tp
	}
}

// New creates a new client.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	strategy, err := cfg.authStrategy()
	if err != nil {
		return nil, err
	}

	logger := core.NewLogger(cfg.debug)

	var soapOpts []soap.Option
	if cfg.httpClient != nil {
		soapOpts = append(soapOpts, soap.WithHTTPClient(cfg.httpClient))
	}
	if cfg.timeout > 0 {
		soapOpts = append(soapOpts, soap.WithTimeout(cfg.timeout))
	}
	soapOpts = append(soapOpts, soap.WithLogger(logger))
	clientOpts := []client.Option{client.WithLogger(logger)}
	if cfg.tracer != nil {
		soapOpts = append(soapOpts, soap.WithTracerProvider(cfg.tracer))
		clientOpts = append(clientOpts, client.WithTracerProvider(cfg.tracer))
	}

	sc := soap.New(strategy, append(soapOpts, cfg.soapOpts...)...)
	return &Client{
		Client: client.New(sc, append(clientOpts, cfg.clientOpts...)...),
		soap:   sc,
		auth:   strategy,
	}, nil
}

func (cfg *clientConfig) authStrategy() (auth.Strategy, error) {
	switch {
	case cfg.strategy != nil:
		return cfg.strategy, nil
	case cfg.sessionID != "":
		if cfg.serverURL == "" {
			return nil, errors.New("sforce: WithSession requires a server URL")
		}
		return auth.NewStaticStrategy(cfg.sessionID, cfg.serverURL), nil
	case cfg.username != "":
		var opts []auth.PasswordOption
		if cfg.loginURL != "" {
			opts = append(opts, auth.WithLoginURL(cfg.loginURL))
		}
		if cfg.apiVersion != "" {
			opts = append(opts, auth.WithAPIVersion(cfg.apiVersion))
		}
		if hc := cfg.loginHTTPClient(); hc != nil {
			opts = append(opts, auth.WithLoginHTTPClient(hc))
		}
		return auth.NewPasswordStrategy(cfg.username, cfg.password, cfg.securityToken, opts...), nil
	default:
		return nil, ErrNoAuth
	}
}

// loginHTTPClient returns the HTTP client for login requests, carrying the
// configured timeout. Nil leaves the strategy's default.
func (cfg *clientConfig) loginHTTPClient() *http.Client {
	if cfg.timeout <= 0 {
		return cfg.httpClient
	}
	hc := http.Client{}
	if cfg.httpClient != nil {
		hc = *cfg.httpClient
	}
	hc.Timeout = cfg.timeout
	return &hc
}

// Helper functions re-exported from core
var (
	IsRetryableError = core.IsRetryableError
	IsInvalidSession = core.IsInvalidSession
	IsRateLimited    = core.IsRateLimited
	ParseDateTime    = core.ParseDateTime
	FormatDateTime   = core.FormatDateTime
)

// Throttle constructors re-exported from client
var (
	NewNoOpThrottle          = client.NewNoOpThrottle
	NewFixedDelayThrottle    = client.NewFixedDelayThrottle
	NewSlidingWindowThrottle = client.NewSlidingWindowThrottle
	NewAdaptiveThrottle      = client.NewAdaptiveThrottle
	NewCollector             = client.NewCollector
)

// Note: Execute, the generic query runner taking a custom accumulator, must be
// used from the client package:
//
//	n, err := client.Execute(ctx, sf.Client, client.QueryStandard, client.QueryConfig[int]{
//	    Query:    "SELECT Id FROM Task",
//	    Callback: new(client.Counter).Add,
//	})
