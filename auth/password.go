package auth

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DrewBradfordXYZ/sforce-go/core"
)

const (
	// DefaultLoginURL is the production login host.
	DefaultLoginURL = "https://login.salesforce.com"

	// SandboxLoginURL is the login host for sandbox orgs.
	SandboxLoginURL = "https://test.salesforce.com"

	// DefaultAPIVersion is the partner API version used when none is configured.
	DefaultAPIVersion = "59.0"

	// DefaultLoginTimeout bounds a login request when no HTTP client is configured.
	DefaultLoginTimeout = 2 * time.Minute
)

// PasswordStrategy authenticates with the SOAP login call.
//
// The session is obtained lazily on the first API call and shared by
// concurrent callers; only one login is in flight at a time. When the
// transport reports an expired session through Invalidate, the next call
// logs in again with the stored credentials.
type PasswordStrategy struct {
	username      string
	password      string
	securityToken string
	loginURL      string
	apiVersion    string
	client        *http.Client

	mu        sync.RWMutex
	session   Session
	pending   chan struct{}
	signedOut bool
}

// PasswordOption configures a PasswordStrategy.
type PasswordOption func(*PasswordStrategy)

// WithLoginURL sets the login host (default https://login.salesforce.com).
func WithLoginURL(url string) PasswordOption {
	return func(s *PasswordStrategy) {
		s.loginURL = strings.TrimRight(url, "/")
	}
}

// WithAPIVersion sets the partner API version used for login (default 59.0).
func WithAPIVersion(version string) PasswordOption {
	return func(s *PasswordStrategy) {
		s.apiVersion = version
	}
}

// WithLoginHTTPClient sets a custom HTTP client for login requests.
func WithLoginHTTPClient(client *http.Client) PasswordOption {
	return func(s *PasswordStrategy) {
		s.client = client
	}
}

// NewPasswordStrategy creates a new password login strategy.
//
// The security token is appended to the password as the service requires for
// logins from untrusted networks; pass an empty token when the network is
// trusted.
//
// Example:
//
//	strategy := auth.NewPasswordStrategy("user@example.com", "password", "TOKEN",
//	    auth.WithLoginURL(auth.SandboxLoginURL),
//	)
func NewPasswordStrategy(username, password, securityToken string, opts ...PasswordOption) *PasswordStrategy {
	s := &PasswordStrategy{
		username:      username,
		password:      password,
		securityToken: securityToken,
		loginURL:      DefaultLoginURL,
		apiVersion:    DefaultAPIVersion,
		client:        &http.Client{Timeout: DefaultLoginTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns the current session, calling login if needed.
func (s *PasswordStrategy) Session(ctx context.Context) (Session, error) {
	s.mu.RLock()
	if s.session.ID != "" {
		session := s.session
		s.mu.RUnlock()
		return session, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if s.signedOut {
		s.mu.Unlock()
		return Session{}, ErrSignedOut
	}
	if s.session.ID != "" {
		session := s.session
		s.mu.Unlock()
		return session, nil
	}
	if s.pending != nil {
		pending := s.pending
		s.mu.Unlock()
		select {
		case <-pending:
		case <-ctx.Done():
			return Session{}, ctx.Err()
		}
		return s.Session(ctx)
	}
	s.pending = make(chan struct{})
	s.mu.Unlock()

	session, err := s.login(ctx)

	s.mu.Lock()
	if err == nil && !s.signedOut {
		s.session = session
	}
	close(s.pending)
	s.pending = nil
	s.mu.Unlock()

	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// Invalidate drops session if it is still the current one.
func (s *PasswordStrategy) Invalidate(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.ID == session.ID {
		s.session = Session{}
	}
}

// UserID returns the authenticated user's id (available after the first call).
func (s *PasswordStrategy) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.UserID
}

// SignOut clears the session and credentials from memory.
//
// This does NOT invalidate the session on the server; it remains valid until
// it times out. Later calls through this strategy fail with ErrSignedOut.
func (s *PasswordStrategy) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.password = ""
	s.securityToken = ""
	s.signedOut = true
}

// Endpoint returns the URL login requests are posted to.
func (s *PasswordStrategy) Endpoint() string {
	return fmt.Sprintf("%s/services/Soap/u/%s", s.loginURL, s.apiVersion)
}

// loginEnvelope is the SOAP response to the login call.
type loginEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Response *struct {
			Result struct {
				ServerURL       string `xml:"serverUrl"`
				SessionID       string `xml:"sessionId"`
				UserID          string `xml:"userId"`
				PasswordExpired bool   `xml:"passwordExpired"`
			} `xml:"result"`
		} `xml:"loginResponse"`
	} `xml:"Body"`
}

// login calls the SOAP login operation.
func (s *PasswordStrategy) login(ctx context.Context) (Session, error) {
	s.mu.RLock()
	reqBody := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:urn="urn:partner.soap.sforce.com">
    <soapenv:Body>
        <urn:login>
            <urn:username>%s</urn:username>
            <urn:password>%s</urn:password>
        </urn:login>
    </soapenv:Body>
</soapenv:Envelope>`, xmlEscape(s.username), xmlEscape(s.password+s.securityToken))
	s.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint(), bytes.NewBufferString(reqBody))
	if err != nil {
		return Session{}, fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", "login")

	resp, err := s.client.Do(req)
	if err != nil {
		return Session{}, &core.TransportError{Operation: "login", Cause: err}
	}
	defer resp.Body.Close()

	var env loginEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Session{}, &core.TransportError{Operation: "login", StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return Session{}, fmt.Errorf("decoding login response: %w", err)
	}

	if f := env.Body.Fault; f != nil {
		return Session{}, core.NewFaultError("login", f.Code, f.String, "")
	}
	if env.Body.Response == nil || env.Body.Response.Result.SessionID == "" {
		return Session{}, core.NewMalformedResponseError("login", "no session id returned")
	}

	result := env.Body.Response.Result
	if result.PasswordExpired {
		return Session{}, core.NewFaultError("login", "PASSWORD_EXPIRED", "password expired; reset it before using the API", "")
	}
	return Session{
		ID:        result.SessionID,
		ServerURL: result.ServerURL,
		UserID:    result.UserID,
	}, nil
}

// xmlEscape escapes special XML characters in a string.
// If escaping fails (invalid characters), returns empty string for safety.
func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return ""
	}
	return buf.String()
}
