package soap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrewBradfordXYZ/sforce-go/auth"
	"github.com/DrewBradfordXYZ/sforce-go/core"
)

const queryOK = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns="urn:partner.soap.sforce.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:sf="urn:sobject.partner.soap.sforce.com">
  <soapenv:Header>
    <LimitInfoHeader>
      <limitInfo>
        <current>1200</current>
        <limit>15000</limit>
        <type>API REQUESTS</type>
      </limitInfo>
    </LimitInfoHeader>
  </soapenv:Header>
  <soapenv:Body>
    <queryResponse>
      <result xsi:type="QueryResult">
        <done>true</done>
        <queryLocator xsi:nil="true"/>
        <records xsi:type="sf:sObject">
          <sf:type>Account</sf:type>
          <sf:Id>001000000000001AAA</sf:Id>
          <sf:Id>001000000000001AAA</sf:Id>
          <sf:Name>Acme</sf:Name>
        </records>
        <size>1</size>
      </result>
    </queryResponse>
  </soapenv:Body>
</soapenv:Envelope>`

func faultEnvelope(code, message string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:sf="urn:fault.partner.soap.sforce.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <soapenv:Body>
    <soapenv:Fault>
      <faultcode>sf:` + code + `</faultcode>
      <faultstring>` + code + `: ` + message + `</faultstring>
      <detail>
        <sf:UnexpectedErrorFault xsi:type="sf:UnexpectedErrorFault">
          <sf:exceptionCode>` + code + `</sf:exceptionCode>
          <sf:exceptionMessage>` + message + `</sf:exceptionMessage>
        </sf:UnexpectedErrorFault>
      </detail>
    </soapenv:Fault>
  </soapenv:Body>
</soapenv:Envelope>`
}

// scriptedServer replies with the scripted responses in order, repeating the last.
type scriptedServer struct {
	mu       sync.Mutex
	replies  []reply
	requests []capturedRequest
}

type reply struct {
	status int
	body   string
	header map[string]string
}

type capturedRequest struct {
	action      string
	contentType string
	body        string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		action:      r.Header.Get("SOAPAction"),
		contentType: r.Header.Get("Content-Type"),
		body:        string(body),
	})
	i := min(len(s.requests)-1, len(s.replies)-1)
	rep := s.replies[i]
	s.mu.Unlock()

	for k, v := range rep.header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(rep.status)
	w.Write([]byte(rep.body))
}

func (s *scriptedServer) calls() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func newTestClient(t *testing.T, srv *scriptedServer, strategy auth.Strategy, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	if strategy == nil {
		strategy = auth.NewStaticStrategy("SESSION-1", server.URL)
	}
	if s, ok := strategy.(*fakeStrategy); ok {
		s.serverURL = server.URL
	}

	base := []Option{
		WithHTTPClient(server.Client()),
		WithRetryDelay(time.Millisecond),
		WithMaxRetryDelay(5 * time.Millisecond),
		WithRateLimiter(NewRateLimiter(0, 1)),
	}
	return New(strategy, append(base, opts...)...)
}

// fakeStrategy hands out numbered sessions and counts invalidations.
type fakeStrategy struct {
	serverURL     string
	generation    atomic.Int32
	invalidations atomic.Int32
}

func (f *fakeStrategy) Session(ctx context.Context) (auth.Session, error) {
	return auth.Session{ID: "SESSION-" + string(rune('1'+f.generation.Load())), ServerURL: f.serverURL}, nil
}

func (f *fakeStrategy) Invalidate(session auth.Session) {
	f.invalidations.Add(1)
	f.generation.Add(1)
}

func TestCall_Success(t *testing.T) {
	srv := &scriptedServer{replies: []reply{{status: http.StatusOK, body: queryOK}}}
	c := newTestClient(t, srv, nil, WithQueryBatchSize(500))

	resp, err := c.Call(context.Background(), "query", Field("queryString", "SELECT Id, Name FROM Account"))
	require.NoError(t, err)

	result := resp.Result()
	require.NotNil(t, result)
	assert.Equal(t, "QueryResult", result.XSIType())
	assert.Equal(t, "true", result.ChildText("done"))
	assert.True(t, result.Child("queryLocator").IsNil())
	assert.Len(t, result.ChildrenNamed("records"), 1)

	limits := resp.Limits()
	require.Len(t, limits, 1)
	assert.Equal(t, "API REQUESTS", limits[0].Type)
	assert.InDelta(t, 0.08, limits[0].Usage(), 0.0001)

	calls := srv.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "query", calls[0].action)
	assert.Equal(t, "text/xml; charset=UTF-8", calls[0].contentType)
	assert.Contains(t, calls[0].body, "<urn:sessionId>SESSION-1</urn:sessionId>")
	assert.Contains(t, calls[0].body, "<urn:batchSize>500</urn:batchSize>")
	assert.Contains(t, calls[0].body, "<urn:query><urn:queryString>SELECT Id, Name FROM Account</urn:queryString></urn:query>")
}

func TestCall_BatchSizeOnlyForQueries(t *testing.T) {
	srv := &scriptedServer{replies: []reply{{status: http.StatusOK, body: strings.ReplaceAll(queryOK, "queryResponse", "deleteResponse")}}}
	c := newTestClient(t, srv, nil, WithQueryBatchSize(500))

	_, err := c.Call(context.Background(), "delete", Field("ids", "001000000000001AAA"))
	require.NoError(t, err)
	assert.NotContains(t, srv.calls()[0].body, "batchSize")
}

func TestCall_FaultIsNotRetried(t *testing.T) {
	srv := &scriptedServer{replies: []reply{{status: http.StatusInternalServerError, body: faultEnvelope("INVALID_FIELD", "No such column 'Foo' on entity 'Account'")}}}
	c := newTestClient(t, srv, nil)

	_, err := c.Call(context.Background(), "query", Field("queryString", "SELECT Foo FROM Account"))

	var fault *core.FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "INVALID_FIELD", fault.Code)
	assert.Equal(t, "INVALID_FIELD", fault.ExceptionCode)
	assert.Equal(t, "query", fault.Operation)
	assert.Len(t, srv.calls(), 1)
}

func TestCall_RetriesServerErrors(t *testing.T) {
	srv := &scriptedServer{replies: []reply{
		{status: http.StatusServiceUnavailable, body: "maintenance"},
		{status: http.StatusInternalServerError, body: faultEnvelope("SERVER_UNAVAILABLE", "try later")},
		{status: http.StatusOK, body: queryOK},
	}}
	c := newTestClient(t, srv, nil)

	resp, err := c.Call(context.Background(), "query", Field("queryString", "SELECT Id FROM Account"))
	require.NoError(t, err)
	assert.NotNil(t, resp.Result())
	assert.Len(t, srv.calls(), 3)
}

func TestCall_GivesUpAfterMaxRetries(t *testing.T) {
	srv := &scriptedServer{replies: []reply{{status: http.StatusBadGateway, body: "bad gateway"}}}
	c := newTestClient(t, srv, nil, WithMaxRetries(2))

	_, err := c.Call(context.Background(), "query", Field("queryString", "SELECT Id FROM Account"))

	var transport *core.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusBadGateway, transport.StatusCode)
	assert.Len(t, srv.calls(), 3)
}

func TestCall_WritesNotRetriedWhenAmbiguous(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		status    int
		body      string
		wantCalls int
	}{
		{"create after 500", "create", http.StatusInternalServerError, "oops", 1},
		{"create after 502", "create", http.StatusBadGateway, "bad gateway", 1},
		{"delete after 504", "delete", http.StatusGatewayTimeout, "timeout", 1},
		{"create after 503", "create", http.StatusServiceUnavailable, "maintenance", 3},
		{"create after SERVER_UNAVAILABLE", "create", http.StatusInternalServerError, faultEnvelope("SERVER_UNAVAILABLE", "try later"), 3},
		{"retrieve after 502", "retrieve", http.StatusBadGateway, "bad gateway", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &scriptedServer{replies: []reply{{status: tt.status, body: tt.body}}}
			c := newTestClient(t, srv, nil, WithMaxRetries(2))

			_, err := c.Call(context.Background(), tt.operation)
			assert.Error(t, err)
			assert.Len(t, srv.calls(), tt.wantCalls)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	network := &core.TransportError{Operation: "create", Cause: errors.New("connection reset")}
	limited := &core.TransportError{Operation: "create", StatusCode: http.StatusTooManyRequests}

	assert.False(t, shouldRetry("create", network))
	assert.True(t, shouldRetry("query", network))
	assert.True(t, shouldRetry("queryMore", network))
	assert.True(t, shouldRetry("create", limited))
	assert.False(t, shouldRetry("query", core.NewFaultError("query", "INVALID_FIELD", "bad", "")))
}

func TestCall_RelogsInOnInvalidSession(t *testing.T) {
	srv := &scriptedServer{replies: []reply{
		{status: http.StatusInternalServerError, body: faultEnvelope("INVALID_SESSION_ID", "Session expired or invalid")},
		{status: http.StatusOK, body: queryOK},
	}}
	strategy := &fakeStrategy{}
	c := newTestClient(t, srv, strategy)

	_, err := c.Call(context.Background(), "query", Field("queryString", "SELECT Id FROM Account"))
	require.NoError(t, err)

	calls := srv.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].body, "SESSION-1")
	assert.Contains(t, calls[1].body, "SESSION-2")
	assert.Equal(t, int32(1), strategy.invalidations.Load())
}

func TestCall_InvalidSessionTwiceSurfaces(t *testing.T) {
	srv := &scriptedServer{replies: []reply{
		{status: http.StatusInternalServerError, body: faultEnvelope("INVALID_SESSION_ID", "Session expired or invalid")},
	}}
	c := newTestClient(t, srv, nil)

	_, err := c.Call(context.Background(), "query", Field("queryString", "SELECT Id FROM Account"))
	assert.True(t, core.IsInvalidSession(err))
	assert.Len(t, srv.calls(), 2)
}

func TestCall_MissingResponseElement(t *testing.T) {
	srv := &scriptedServer{replies: []reply{{status: http.StatusOK, body: queryOK}}}
	c := newTestClient(t, srv, nil)

	_, err := c.Call(context.Background(), "create")

	var malformed *core.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Len(t, srv.calls(), 1)
}

func TestCall_ContextCancelled(t *testing.T) {
	srv := &scriptedServer{replies: []reply{{status: http.StatusOK, body: queryOK}}}
	c := newTestClient(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "query", Field("queryString", "SELECT Id FROM Account"))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Empty(t, srv.calls())
}

func TestNewElement(t *testing.T) {
	el := NewElement("urn:sObjects", Field("type", "Account"), Nil("urn1:fieldsToNull"))
	assert.Equal(t, "urn:sObjects", el.XMLName.Local)
	require.Len(t, el.Children, 2)
	assert.Equal(t, "urn:type", el.Children[0].XMLName.Local)
	assert.True(t, el.Children[1].IsNil())

	c := New(auth.NewStaticStrategy("SID", "https://example.invalid"))
	assert.IsType(t, &Client{}, c)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
}
