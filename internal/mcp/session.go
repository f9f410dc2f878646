package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the state of the single connection served over stdio.
type Session struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	InitializedAt   time.Time      `json:"initialized_at,omitzero"`
	ClientInfo      Implementation `json:"client_info"`
	ProtocolVersion string         `json:"protocol_version,omitempty"`
	Initialized     bool           `json:"initialized"`
}

// sessionState guards the session; initialize may race with pipelined calls.
type sessionState struct {
	mu      sync.RWMutex
	session Session
}

func newSessionState() *sessionState {
	return &sessionState{
		session: Session{
			ID:        uuid.NewString(),
			CreatedAt: time.Now(),
		},
	}
}

func (s *sessionState) get() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *sessionState) negotiate(client Implementation, version string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ClientInfo = client
	s.session.ProtocolVersion = version
	return s.session
}

func (s *sessionState) markInitialized() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.Initialized {
		s.session.Initialized = true
		s.session.InitializedAt = time.Now()
	}
	return s.session
}

// negotiateVersion echoes the requested version when supported.
func negotiateVersion(requested string) string {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return LatestProtocolVersion
}
