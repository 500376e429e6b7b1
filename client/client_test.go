package client

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DrewBradfordXYZ/sforce-go/soap"
)

const respNS = `xmlns="urn:partner.soap.sforce.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:sf="urn:sobject.partner.soap.sforce.com"`

// recordedCall is one operation seen by fakeCaller.
type recordedCall struct {
	op     string
	params []*soap.Element
}

// param returns the text of every param with the given local name.
func (c recordedCall) param(name string) []string {
	var out []string
	for _, p := range c.params {
		if p.Name() == name {
			out = append(out, p.Text)
		}
	}
	return out
}

// count returns the number of params with the given local name.
func (c recordedCall) count(name string) int {
	n := 0
	for _, p := range c.params {
		if p.Name() == name {
			n++
		}
	}
	return n
}

// fakeCaller records calls and answers them through handler.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []recordedCall
	handler func(n int, call recordedCall) (*soap.Response, error)
}

func (f *fakeCaller) Call(ctx context.Context, operation string, params ...*soap.Element) (*soap.Response, error) {
	f.mu.Lock()
	call := recordedCall{op: operation, params: params}
	f.calls = append(f.calls, call)
	n := len(f.calls) - 1
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.handler(n, call)
}

func (f *fakeCaller) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeCaller) ops() []string {
	var ops []string
	for _, c := range f.recorded() {
		ops = append(ops, c.op)
	}
	return ops
}

// response wraps inner in an <opResponse> body.
func response(t testing.TB, op, inner string) *soap.Response {
	t.Helper()
	var body soap.Element
	require.NoError(t, xml.Unmarshal([]byte("<"+op+"Response "+respNS+">"+inner+"</"+op+"Response>"), &body))
	return &soap.Response{Operation: op, Body: &body}
}

// queryPage builds a query page holding Account records with the given ids,
// each id sent twice as the service does.
func queryPage(t testing.TB, op string, done bool, locator string, ids ...string) *soap.Response {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, `<result xsi:type="QueryResult"><done>%t</done>`, done)
	if locator == "" {
		b.WriteString(`<queryLocator xsi:nil="true"/>`)
	} else {
		fmt.Fprintf(&b, `<queryLocator>%s</queryLocator>`, locator)
	}
	for _, id := range ids {
		fmt.Fprintf(&b, `<records xsi:type="sf:sObject"><sf:type>Account</sf:type><sf:Id>%s</sf:Id><sf:Id>%s</sf:Id><sf:Name>Account %s</sf:Name></records>`, id, id, id)
	}
	fmt.Fprintf(&b, `<size>%d</size></result>`, len(ids))
	return response(t, op, b.String())
}

// scriptedPages answers the nth call with pages[n].
func scriptedPages(pages ...*soap.Response) func(int, recordedCall) (*soap.Response, error) {
	return func(n int, call recordedCall) (*soap.Response, error) {
		if n >= len(pages) {
			return nil, fmt.Errorf("unexpected call %d (%s)", n, call.op)
		}
		p := *pages[n]
		p.Operation = call.op
		return &p, nil
	}
}

// writeHandler answers write calls with one successful result per sObject,
// using the record's Name as its id.
func writeHandler(t testing.TB) func(int, recordedCall) (*soap.Response, error) {
	return func(n int, call recordedCall) (*soap.Response, error) {
		var b strings.Builder
		for _, p := range call.params {
			if p.Name() != "sObjects" {
				continue
			}
			fmt.Fprintf(&b, `<result><id>%s</id><success>true</success></result>`, p.ChildText("Name"))
		}
		for _, id := range call.param("ids") {
			fmt.Fprintf(&b, `<result><id>%s</id><success>true</success></result>`, id)
		}
		return response(t, call.op, b.String()), nil
	}
}
