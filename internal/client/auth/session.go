// Package auth holds the signed-in credential and owns the realtime
// connector for its lifetime.
package auth

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/client/transport"
)

// Session is the authenticated context. The connector is constructed here
// and torn down by SignOut/Close; nothing else owns it.
type Session struct {
	mu        sync.RWMutex
	token     string
	enabled   bool
	connector *transport.Connector
}

// NewSession creates a signed-out session whose connector dials opts.URL.
// With realtime disabled SignIn only records the token.
func NewSession(opts transport.Options, realtime bool) *Session {
	s := &Session{enabled: realtime}
	if realtime {
		s.connector = transport.NewConnector(opts)
	}
	return s
}

// SignIn stores token and starts the realtime connection with it.
func (s *Session) SignIn(token string) {
	s.mu.Lock()
	s.token = token
	connector := s.connector
	s.mu.Unlock()

	if connector != nil && token != "" {
		log.Info().Str("component", "auth").Msg("signed in, connecting realtime channel")
		connector.Connect(token)
	}
}

// SignOut forgets the token and drops the connection. The connector stays
// usable for a later SignIn.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.token = ""
	connector := s.connector
	s.mu.Unlock()

	if connector != nil {
		connector.Disconnect()
	}
	log.Info().Str("component", "auth").Msg("signed out")
}

// Close destroys the connector. Its event channel is closed afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.token = ""
	connector := s.connector
	s.mu.Unlock()

	if connector != nil {
		connector.Close()
	}
}

// Token returns the bearer token or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Connector returns the owned connector, or nil when realtime is disabled.
func (s *Session) Connector() *transport.Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connector
}

// Events returns the connector's event stream, or nil when realtime is
// disabled.
func (s *Session) Events() <-chan transport.Event {
	if c := s.Connector(); c != nil {
		return c.Events()
	}
	return nil
}
