// Package session keeps per-session privacy settings in memory and
// serializes the turns of a single session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/services"
)

// Session is one conversation. Turns within a session run one at a time.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu          sync.RWMutex
	privacyMode router.PrivacyMode
	lastUsed    time.Time

	sem chan struct{}
}

// Info is a point-in-time view of a session
type Info struct {
	ID          uuid.UUID          `json:"id"`
	PrivacyMode router.PrivacyMode `json:"privacy_mode"`
	CreatedAt   time.Time          `json:"created_at"`
	LastUsed    time.Time          `json:"last_used"`
	Busy        bool               `json:"busy"`
}

func newSession(mode router.PrivacyMode, now time.Time) *Session {
	return &Session{
		ID:          uuid.New(),
		CreatedAt:   now,
		privacyMode: mode,
		lastUsed:    now,
		sem:         make(chan struct{}, 1),
	}
}

// PrivacyMode returns the current privacy mode
func (s *Session) PrivacyMode() router.PrivacyMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.privacyMode
}

// SetPrivacyMode changes the privacy mode for subsequent turns
func (s *Session) SetPrivacyMode(mode router.PrivacyMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privacyMode = mode
}

// Acquire waits for the session's turn slot. It returns ctx.Err() if ctx
// ends first.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		s.mu.Lock()
		s.lastUsed = time.Now()
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the turn slot only if it is free
func (s *Session) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the turn slot taken by Acquire
func (s *Session) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:          s.ID,
		PrivacyMode: s.privacyMode,
		CreatedAt:   s.CreatedAt,
		LastUsed:    s.lastUsed,
		Busy:        len(s.sem) > 0,
	}
}

// Store holds sessions keyed by ID
type Store struct {
	defaultMode router.PrivacyMode

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewStore creates a store whose new sessions start in defaultMode
func NewStore(defaultMode router.PrivacyMode) *Store {
	if defaultMode == "" {
		defaultMode = router.PrivacyNormal
	}
	return &Store{
		defaultMode: defaultMode,
		sessions:    make(map[uuid.UUID]*Session),
	}
}

// DefaultMode returns the privacy mode given to sessions created without one
func (st *Store) DefaultMode() router.PrivacyMode {
	return st.defaultMode
}

// Create starts a session. An empty mode selects the store default.
func (st *Store) Create(mode router.PrivacyMode) *Session {
	if mode == "" {
		mode = st.defaultMode
	}
	s := newSession(mode, time.Now())

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get looks up a session by its string ID
func (st *Store) Get(id string) (*Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, services.ErrSessionNotFound.Clone().WithDetail("session_id", id)
	}

	st.mu.RLock()
	s, ok := st.sessions[parsed]
	st.mu.RUnlock()
	if !ok {
		return nil, services.ErrSessionNotFound.Clone().WithDetail("session_id", id)
	}
	return s, nil
}

// Delete removes a session. A session with a turn in flight cannot be
// deleted.
func (st *Store) Delete(id string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	if !s.TryAcquire() {
		return services.ErrSessionBusy.Clone().WithDetail("session_id", id)
	}
	defer s.Release()

	st.mu.Lock()
	delete(st.sessions, s.ID)
	st.mu.Unlock()
	return nil
}

// Len returns the number of sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
