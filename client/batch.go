package client

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrewBradfordXYZ/sforce-go/core"
	"github.com/DrewBradfordXYZ/sforce-go/soap"
	"github.com/DrewBradfordXYZ/sforce-go/sobject"
)

// CreateChunkSize is the most records the service accepts in one create call.
const CreateChunkSize = 200

// Create inserts records, CreateChunkSize at a time, and returns one result
// per record in input order. Empty input makes no call.
//
// On error, the results of the chunks already written are returned with it.
// A chunk whose reply was lost to a network error or a 500, 502 or 504 is
// not resent, since the service may have created its records; the error
// then leaves that chunk's outcome unknown.
func (c *Client) Create(ctx context.Context, records ...sobject.Record) ([]sobject.WriteResult, error) {
	results := make([]sobject.WriteResult, 0, len(records))
	if len(records) == 0 {
		return results, nil
	}

	ctx, span, opID := c.startOp(ctx, "create", len(records))
	defer span.End()

	chunks := (len(records) + CreateChunkSize - 1) / CreateChunkSize
	n := 0
	for chunk := range slices.Chunk(records, CreateChunkSize) {
		n++
		c.logger.Debug("[%s] create: chunk %d/%d with %d records", opID, n, chunks, len(chunk))

		res, err := c.write(ctx, "create", nil, chunk)
		if err != nil {
			return results, fail(span, err)
		}
		results = append(results, res...)
	}
	span.SetAttributes(attribute.Int("sforce.chunks", chunks))
	return results, nil
}

// Update updates records by Id in a single call.
func (c *Client) Update(ctx context.Context, records ...sobject.Record) ([]sobject.WriteResult, error) {
	ctx, span, opID := c.startOp(ctx, "update", len(records))
	defer span.End()

	c.logger.Debug("[%s] update: %d records", opID, len(records))
	c.logger.Trace("[%s] update ids: %s", opID, strings.Join(recordIDs(records), ", "))

	results, err := c.write(ctx, "update", nil, records)
	if err != nil {
		return nil, fail(span, err)
	}
	return results, nil
}

// Upsert creates or updates records matched on externalIDField in a single
// call. WriteResult.Created tells which happened.
func (c *Client) Upsert(ctx context.Context, externalIDField string, records ...sobject.Record) ([]sobject.WriteResult, error) {
	if strings.TrimSpace(externalIDField) == "" {
		return nil, core.NewUsageError("upsert", "external id field is empty")
	}
	ctx, span, opID := c.startOp(ctx, "upsert", len(records))
	defer span.End()

	c.logger.Debug("[%s] upsert on %s: %d records", opID, externalIDField, len(records))

	results, err := c.write(ctx, "upsert", []*soap.Element{soap.Field("externalIDFieldName", externalIDField)}, records)
	if err != nil {
		return nil, fail(span, err)
	}
	return results, nil
}

// Delete deletes records by id in a single call.
func (c *Client) Delete(ctx context.Context, ids ...string) ([]sobject.WriteResult, error) {
	return c.byIDs(ctx, "delete", ids)
}

// Undelete restores deleted records by id in a single call.
func (c *Client) Undelete(ctx context.Context, ids ...string) ([]sobject.WriteResult, error) {
	return c.byIDs(ctx, "undelete", ids)
}

func (c *Client) byIDs(ctx context.Context, op string, ids []string) ([]sobject.WriteResult, error) {
	ctx, span, opID := c.startOp(ctx, op, len(ids))
	defer span.End()

	c.logger.Debug("[%s] %s: %d ids", opID, op, len(ids))
	c.logger.Trace("[%s] %s ids: %s", opID, op, strings.Join(ids, ", "))

	resp, err := c.caller.Call(ctx, op, idParams(ids)...)
	if err != nil {
		return nil, fail(span, err)
	}
	return sobject.DecodeWriteResults(resp), nil
}

// Retrieve fetches fields of the sObjectType records with the given ids in a
// single call. The result is aligned with ids; ids the service could not
// find yield a nil Record.
func (c *Client) Retrieve(ctx context.Context, fields []string, sObjectType string, ids ...string) ([]sobject.Record, error) {
	if len(fields) == 0 {
		return nil, core.NewUsageError("retrieve", "field list is empty")
	}
	if strings.TrimSpace(sObjectType) == "" {
		return nil, core.NewUsageError("retrieve", "object type is empty")
	}

	ctx, span, opID := c.startOp(ctx, "retrieve", len(ids))
	defer span.End()

	c.logger.Debug("[%s] retrieve %s (%s): %d ids", opID, sObjectType, strings.Join(fields, ","), len(ids))
	c.logger.Trace("[%s] retrieve ids: %s", opID, strings.Join(ids, ", "))

	params := []*soap.Element{
		soap.Field("fieldList", strings.Join(fields, ",")),
		soap.Field("sObjectType", sObjectType),
	}
	resp, err := c.caller.Call(ctx, "retrieve", append(params, idParams(ids)...)...)
	if err != nil {
		return nil, fail(span, err)
	}

	results := resp.Results()
	records := make([]sobject.Record, 0, len(results))
	for _, el := range results {
		records = append(records, sobject.NormalizeRecord(sobject.DecodeRecord(el)))
	}
	return records, nil
}

// GetServerTimestamp returns the service's current time.
func (c *Client) GetServerTimestamp(ctx context.Context) (time.Time, error) {
	resp, err := c.caller.Call(ctx, "getServerTimestamp")
	if err != nil {
		return time.Time{}, err
	}
	raw := resp.Result().ChildText("timestamp")
	ts, err := core.ParseDateTime(raw)
	if err != nil {
		return time.Time{}, core.NewMalformedResponseError("getServerTimestamp", fmt.Sprintf("invalid timestamp %q", raw))
	}
	return ts, nil
}

// write prepares records and sends them with extra leading params in one call.
func (c *Client) write(ctx context.Context, op string, extra []*soap.Element, records []sobject.Record) ([]sobject.WriteResult, error) {
	prepared, err := sobject.Prepare(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.caller.Call(ctx, op, append(extra, prepared...)...)
	if err != nil {
		return nil, err
	}
	return sobject.DecodeWriteResults(resp), nil
}

func (c *Client) startOp(ctx context.Context, op string, n int) (context.Context, trace.Span, string) {
	opID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "sforce."+op, trace.WithAttributes(
		attribute.String("sforce.operation_id", opID),
		attribute.Int("sforce.records", n),
	))
	return ctx, span, opID
}

func idParams(ids []string) []*soap.Element {
	params := make([]*soap.Element, len(ids))
	for i, id := range ids {
		params[i] = soap.Field("ids", id)
	}
	return params
}

func recordIDs(records []sobject.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID())
	}
	return ids
}
