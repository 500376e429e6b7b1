package client

import (
	"context"
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrewBradfordXYZ/sforce-go/core"
	"github.com/DrewBradfordXYZ/sforce-go/soap"
	"github.com/DrewBradfordXYZ/sforce-go/sobject"
)

// QueryMode selects the query operation.
type QueryMode int

const (
	// QueryStandard runs "query": live records only.
	QueryStandard QueryMode = iota
	// QueryIncludeArchived runs "queryAll": also deleted and archived records.
	QueryIncludeArchived
)

func (m QueryMode) operation() string {
	if m == QueryIncludeArchived {
		return "queryAll"
	}
	return "query"
}

func (m QueryMode) String() string {
	return m.operation()
}

// Accumulator receives each normalized page in order. The value returned by
// its last invocation is the result of the query.
type Accumulator[A any] func(page []sobject.Record) A

// QueryConfig is a query together with the accumulator combining its pages.
type QueryConfig[A any] struct {
	Query    string
	Callback Accumulator[A]
}

// Collector is the default accumulator: it appends every page and returns
// all records seen so far. A Collector serves one query.
type Collector struct {
	records []sobject.Record
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{records: []sobject.Record{}}
}

// Add appends page and returns the running list.
func (c *Collector) Add(page []sobject.Record) []sobject.Record {
	if c.records == nil {
		c.records = []sobject.Record{}
	}
	c.records = append(c.records, page...)
	return c.records
}

// Records returns the records collected so far.
func (c *Collector) Records() []sobject.Record {
	return c.records
}

// Counter is an accumulator keeping only the number of records seen.
type Counter struct {
	n int
}

// Add counts page and returns the running total.
func (c *Counter) Add(page []sobject.Record) int {
	c.n += len(page)
	return c.n
}

// Count returns the running total.
func (c *Counter) Count() int {
	return c.n
}

// Execute runs cfg.Query to completion, calling cfg.Callback once per page,
// and returns the value of the last callback.
//
// A nil callback defaults to a fresh Collector when A is []sobject.Record;
// for any other result type it fails with *core.UsageError. An empty query
// also fails with *core.UsageError. Both are reported before any remote call. Errors from the caller are returned unchanged; pages already
// passed to the callback are not rolled back.
func Execute[A any](ctx context.Context, c *Client, mode QueryMode, cfg QueryConfig[A]) (A, error) {
	var result A
	if err := checkQuery(mode, cfg.Query); err != nil {
		return result, err
	}
	if cfg.Callback == nil {
		collect, ok := any(NewCollector().Add).(func([]sobject.Record) A)
		if !ok {
			return result, core.NewUsageError(mode.operation(), "callback is nil and the result type has no default accumulator")
		}
		cfg.Callback = collect
	}

	err := c.pages(ctx, mode, cfg.Query, func(page []sobject.Record) bool {
		result = cfg.Callback(page)
		return true
	})
	if err != nil {
		var zero A
		return zero, err
	}
	return result, nil
}

// Query returns every record matched by soql.
func (c *Client) Query(ctx context.Context, soql string) ([]sobject.Record, error) {
	return Execute(ctx, c, QueryStandard, QueryConfig[[]sobject.Record]{
		Query:    soql,
		Callback: NewCollector().Add,
	})
}

// QueryAll is Query including deleted and archived records.
func (c *Client) QueryAll(ctx context.Context, soql string) ([]sobject.Record, error) {
	return Execute(ctx, c, QueryIncludeArchived, QueryConfig[[]sobject.Record]{
		Query:    soql,
		Callback: NewCollector().Add,
	})
}

// QueryIterator returns an iterator over the records matched by soql.
// Pages are fetched as the iteration reaches them; breaking out of the loop
// stops pagination.
func (c *Client) QueryIterator(ctx context.Context, soql string) iter.Seq2[sobject.Record, error] {
	return c.iterate(ctx, QueryStandard, soql)
}

// QueryAllIterator is QueryIterator including deleted and archived records.
func (c *Client) QueryAllIterator(ctx context.Context, soql string) iter.Seq2[sobject.Record, error] {
	return c.iterate(ctx, QueryIncludeArchived, soql)
}

func (c *Client) iterate(ctx context.Context, mode QueryMode, soql string) iter.Seq2[sobject.Record, error] {
	return func(yield func(sobject.Record, error) bool) {
		if err := checkQuery(mode, soql); err != nil {
			yield(nil, err)
			return
		}
		err := c.pages(ctx, mode, soql, func(page []sobject.Record) bool {
			for _, rec := range page {
				if !yield(rec, nil) {
					return false
				}
			}
			return true
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

func checkQuery(mode QueryMode, soql string) error {
	if strings.TrimSpace(soql) == "" {
		return core.NewUsageError(mode.operation(), "query text is empty")
	}
	return nil
}

// pages fetches the pages of a query in order and hands each normalized page
// to fn. It stops when the service reports done, when fn returns false, or on
// the first error.
func (c *Client) pages(ctx context.Context, mode QueryMode, soql string, fn func([]sobject.Record) bool) error {
	opID := uuid.NewString()
	op := mode.operation()

	ctx, span := c.tracer.Start(ctx, "sforce."+op, trace.WithAttributes(
		attribute.String("sforce.operation_id", opID),
		attribute.String("db.query.text", soql),
	))
	defer span.End()

	c.logger.Info("[%s] %s: %s", opID, op, soql)

	operation := op
	params := []*soap.Element{soap.Field("queryString", soql)}
	total := 0
	for page := 1; ; page++ {
		resp, err := c.caller.Call(ctx, operation, params...)
		if err != nil {
			return fail(span, err)
		}
		c.observe(resp)

		raw, err := sobject.DecodeQueryResult(resp)
		if err != nil {
			return fail(span, err)
		}
		records := sobject.Normalize(raw)
		total += len(records)
		span.SetAttributes(attribute.Int("sforce.pages", page), attribute.Int("sforce.records", total))
		c.logger.Debug("[%s] page %d: %d records (%d of %d), done=%t", opID, page, len(records), total, raw.Size, raw.Done)

		if !fn(records) {
			c.logger.Debug("[%s] stopped by consumer after page %d", opID, page)
			return nil
		}
		if raw.Done {
			return nil
		}

		if raw.Locator == "" {
			return fail(span, core.NewMalformedResponseError(operation, "done is false but no query locator was returned"))
		}
		if c.maxPages > 0 && page >= c.maxPages {
			return fail(span, &core.PageLimitError{Operation: op, Pages: page})
		}
		if err := ctx.Err(); err != nil {
			return fail(span, err)
		}
		if err := c.throttle.Acquire(ctx); err != nil {
			return fail(span, err)
		}

		c.logger.Trace("[%s] queryMore %s", opID, raw.Locator)
		operation = "queryMore"
		params = []*soap.Element{soap.Field("queryLocator", raw.Locator)}
	}
}
