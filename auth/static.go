package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrSignedOut is returned by strategies after SignOut.
var ErrSignedOut = errors.New("session signed out; create a new client")

// StaticStrategy uses a session obtained elsewhere.
//
// A static session cannot be renewed. Once the service rejects it, calls fail
// with the INVALID_SESSION_ID fault until a new client is created.
type StaticStrategy struct {
	mu      sync.RWMutex
	session Session
	revoked bool
}

// NewStaticStrategy creates a strategy for an existing session.
//
// Example:
//
//	strategy := auth.NewStaticStrategy("00D...!AQ...", "https://na1.salesforce.com/services/Soap/u/59.0/00D...")
func NewStaticStrategy(sessionID, serverURL string) *StaticStrategy {
	return &StaticStrategy{session: Session{ID: sessionID, ServerURL: serverURL}}
}

// Session returns the configured session.
func (s *StaticStrategy) Session(ctx context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.revoked {
		return Session{}, ErrSignedOut
	}
	return s.session, nil
}

// Invalidate does nothing; a static session can't be refreshed, so the
// fault is surfaced to the caller on the retry.
func (s *StaticStrategy) Invalidate(session Session) {}

// SignOut forgets the session. Later calls fail with ErrSignedOut.
func (s *StaticStrategy) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.revoked = true
}
