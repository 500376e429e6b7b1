package auth

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

	"github.com/DrewBradfordXYZ/sforce-go/core"
)

const loginOK = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns="urn:partner.soap.sforce.com" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <soapenv:Body>
    <loginResponse>
      <result>
        <metadataServerUrl>https://na1.salesforce.com/services/Soap/m/59.0/00D000000000001</metadataServerUrl>
        <passwordExpired>false</passwordExpired>
        <sandbox>false</sandbox>
        <serverUrl>https://na1.salesforce.com/services/Soap/u/59.0/00D000000000001</serverUrl>
        <sessionId>00D000000000001!AQ0AQ</sessionId>
        <userId>005000000000001AAA</userId>
      </result>
    </loginResponse>
  </soapenv:Body>
</soapenv:Envelope>`

const loginFault = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:sf="urn:fault.partner.soap.sforce.com">
  <soapenv:Body>
    <soapenv:Fault>
      <faultcode>sf:INVALID_LOGIN</faultcode>
      <faultstring>INVALID_LOGIN: Invalid username, password, security token; or user locked out.</faultstring>
    </soapenv:Fault>
  </soapenv:Body>
</soapenv:Envelope>`

// TestPasswordStrategy_RequestFormat verifies the login request envelope.
func TestPasswordStrategy_RequestFormat(t *testing.T) {
	var captured struct {
		Method      string
		Path        string
		ContentType string
		Action      string
		Body        string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.ContentType = r.Header.Get("Content-Type")
		captured.Action = r.Header.Get("SOAPAction")
		body, _ := io.ReadAll(r.Body)
		captured.Body = string(body)

		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(loginOK))
	}))
	defer server.Close()

	strategy := NewPasswordStrategy("user@example.com", "s3cret&", "TOKEN",
		WithLoginURL(server.URL+"/"),
		WithAPIVersion("58.0"),
		WithLoginHTTPClient(server.Client()),
	)

	session, err := strategy.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}

	if captured.Method != http.MethodPost {
		t.Errorf("Method = %q, want POST", captured.Method)
	}
	if captured.Path != "/services/Soap/u/58.0" {
		t.Errorf("Path = %q, want /services/Soap/u/58.0", captured.Path)
	}
	if captured.ContentType != "text/xml; charset=UTF-8" {
		t.Errorf("Content-Type = %q, want text/xml; charset=UTF-8", captured.ContentType)
	}
	if captured.Action != "login" {
		t.Errorf("SOAPAction = %q, want login", captured.Action)
	}
	if !strings.Contains(captured.Body, "<urn:username>user@example.com</urn:username>") {
		t.Errorf("Body missing username, got: %s", captured.Body)
	}
	if !strings.Contains(captured.Body, "<urn:password>s3cret&amp;TOKEN</urn:password>") {
		t.Errorf("Body missing escaped password+token, got: %s", captured.Body)
	}

	if session.ID != "00D000000000001!AQ0AQ" {
		t.Errorf("session.ID = %q", session.ID)
	}
	if session.ServerURL != "https://na1.salesforce.com/services/Soap/u/59.0/00D000000000001" {
		t.Errorf("session.ServerURL = %q", session.ServerURL)
	}
	if strategy.UserID() != "005000000000001AAA" {
		t.Errorf("UserID() = %q", strategy.UserID())
	}
}

func TestPasswordStrategy_Fault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(loginFault))
	}))
	defer server.Close()

	strategy := NewPasswordStrategy("user@example.com", "wrong", "", WithLoginURL(server.URL))

	_, err := strategy.Session(context.Background())
	var fault *core.FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("Session() error = %v, want *core.FaultError", err)
	}
	if fault.Code != core.FaultInvalidLogin {
		t.Errorf("fault.Code = %q, want %q", fault.Code, core.FaultInvalidLogin)
	}
}

func TestPasswordStrategy_NonXMLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	strategy := NewPasswordStrategy("user@example.com", "pw", "", WithLoginURL(server.URL))

	_, err := strategy.Session(context.Background())
	var transport *core.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("Session() error = %v, want *core.TransportError", err)
	}
	if transport.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", transport.StatusCode)
	}
}

func TestPasswordStrategy_CachesAndRelogsAfterInvalidate(t *testing.T) {
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.Write([]byte(loginOK))
	}))
	defer server.Close()

	strategy := NewPasswordStrategy("user@example.com", "pw", "", WithLoginURL(server.URL))
	ctx := context.Background()

	first, err := strategy.Session(ctx)
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if _, err := strategy.Session(ctx); err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if logins.Load() != 1 {
		t.Errorf("logins = %d, want 1 (session should be cached)", logins.Load())
	}

	strategy.Invalidate(Session{ID: "someone-else"})
	if _, err := strategy.Session(ctx); err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if logins.Load() != 1 {
		t.Errorf("logins = %d, want 1 (stale invalidation must be ignored)", logins.Load())
	}

	strategy.Invalidate(first)
	if _, err := strategy.Session(ctx); err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if logins.Load() != 2 {
		t.Errorf("logins = %d, want 2 after invalidation", logins.Load())
	}
}

func TestPasswordStrategy_SingleFlight(t *testing.T) {
	var logins atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		<-release
		w.Write([]byte(loginOK))
	}))
	defer server.Close()

	strategy := NewPasswordStrategy("user@example.com", "pw", "", WithLoginURL(server.URL))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := strategy.Session(context.Background())
			errs <- err
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Session() failed: %v", err)
		}
	}
	if logins.Load() != 1 {
		t.Errorf("logins = %d, want 1", logins.Load())
	}
}

func TestPasswordStrategy_SignOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginOK))
	}))
	defer server.Close()

	strategy := NewPasswordStrategy("user@example.com", "pw", "TOKEN", WithLoginURL(server.URL))
	if _, err := strategy.Session(context.Background()); err != nil {
		t.Fatalf("Session() failed: %v", err)
	}

	strategy.SignOut()

	if _, err := strategy.Session(context.Background()); !errors.Is(err, ErrSignedOut) {
		t.Errorf("Session() after SignOut error = %v, want ErrSignedOut", err)
	}
	if strategy.password != "" || strategy.securityToken != "" {
		t.Errorf("credentials not cleared after SignOut")
	}
}

func TestStaticStrategy(t *testing.T) {
	strategy := NewStaticStrategy("sid", "https://na1.salesforce.com/services/Soap/u/59.0/00D")

	session, err := strategy.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if session.ID != "sid" {
		t.Errorf("session.ID = %q, want sid", session.ID)
	}

	strategy.Invalidate(session)
	if again, _ := strategy.Session(context.Background()); again.ID != "sid" {
		t.Errorf("static session changed after Invalidate: %q", again.ID)
	}

	strategy.SignOut()
	if _, err := strategy.Session(context.Background()); !errors.Is(err, ErrSignedOut) {
		t.Errorf("Session() after SignOut error = %v, want ErrSignedOut", err)
	}
}

func TestPasswordStrategy_DefaultLoginTimeout(t *testing.T) {
	s := NewPasswordStrategy("user@example.com", "secret", "")
	if s.client == http.DefaultClient {
		t.Fatal("default login client is http.DefaultClient, want a client with a timeout")
	}
	if s.client.Timeout != DefaultLoginTimeout {
		t.Errorf("login client Timeout = %v, want %v", s.client.Timeout, DefaultLoginTimeout)
	}
}
