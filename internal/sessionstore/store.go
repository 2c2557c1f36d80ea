// Package sessionstore keeps the credential and key material of in-flight
// pairing sessions for the lifetime of the process.
package sessionstore

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrExists is returned by Put when the id is already present.
var ErrExists = errors.New("session already exists")

// ErrNotFound is returned when an id is not present.
var ErrNotFound = errors.New("session not found")

// Session is the mutable auth state of one pairing attempt.
type Session struct {
	ID          string
	Credentials []byte
	Keys        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store maps session ids to sessions. It is safe for concurrent use; each
// entry is only ever touched by the request that created it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New returns an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put registers a fresh, empty session.
func (s *Store) Put(id string, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return nil, ErrExists
	}
	sess := &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	return sess.clone(), nil
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// UpdateCredentials replaces the credential blob of a session.
func (s *Store) UpdateCredentials(id string, creds []byte, now time.Time) error {
	return s.update(id, now, func(sess *Session) {
		sess.Credentials = append([]byte(nil), creds...)
	})
}

// UpdateKeys replaces the key material of a session.
func (s *Store) UpdateKeys(id string, keys []byte, now time.Time) error {
	return s.update(id, now, func(sess *Session) {
		sess.Keys = append([]byte(nil), keys...)
	})
}

func (s *Store) update(id string, now time.Time, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(sess)
	sess.UpdatedAt = now
	return nil
}

// Delete removes a session. It reports whether the id was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the live session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (sess *Session) clone() *Session {
	out := *sess
	out.Credentials = append([]byte(nil), sess.Credentials...)
	out.Keys = append([]byte(nil), sess.Keys...)
	return &out
}
