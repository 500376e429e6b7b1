// Package auth provides session strategies for the SOAP partner API.
//
// Every SOAP call carries a session id in its SessionHeader and is posted to
// the instance-specific server URL the session was issued for. Two ways of
// obtaining a session are supported:
//
//   - Static session: an existing session id and server URL (for example handed
//     over by a browser session or an OAuth flow)
//   - Password login: username, password and security token exchanged through
//     the SOAP login call
//
// # Static Session
//
//	client, _ := sforce.New(
//	    sforce.WithSession("00D...!AQ...", "https://na1.salesforce.com/services/Soap/u/59.0/00D..."),
//	)
//
// # Password Login
//
// The login call:
//
//	POST https://login.salesforce.com/services/Soap/u/59.0
//	SOAPAction: login
//	Content-Type: text/xml; charset=UTF-8
//
//	<soapenv:Envelope ...>
//	    <soapenv:Body>
//	        <urn:login>
//	            <urn:username>user@example.com</urn:username>
//	            <urn:password>secretTOKEN</urn:password>
//	        </urn:login>
//	    </soapenv:Body>
//	</soapenv:Envelope>
//
// The response carries the session id and the server URL for all later calls.
// Sessions expire after inactivity; when a call fails with INVALID_SESSION_ID
// the transport invalidates the session and the next call logs in again.
//
//	client, _ := sforce.New(
//	    sforce.WithPasswordLogin("user@example.com", "secret", "TOKEN"),
//	)
package auth

import (
	"context"
)

// Session identifies an authenticated API session.
type Session struct {
	// ID is the value sent in the SessionHeader.
	ID string

	// ServerURL is the endpoint SOAP calls are posted to.
	ServerURL string

	// UserID is the id of the authenticated user, when known.
	UserID string
}

// Strategy defines the interface for session strategies.
//
// The SDK provides two built-in implementations:
//   - [StaticStrategy]: For an existing session id
//   - [PasswordStrategy]: For username/password login
type Strategy interface {
	// Session returns the session to use for the next call, establishing
	// one if needed.
	Session(ctx context.Context) (Session, error)

	// Invalidate reports that the service rejected session. Strategies that
	// can re-authenticate drop it so the next Session call obtains a new one.
	Invalidate(session Session)
}
