// Package session holds the table of active sessions and the background
// reaper that evicts timed-out ones.
//
// Store is the only shared mutable state of the scheduler. Every operation
// takes the store's single lock exactly once; callbacks never run while the
// lock is held, so they may call back into the store.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/crossing/internal/model"
)

// errUnreserve guards the monotonic reserved flag.
var errUnreserve = errors.New("session: reserved flag cannot be cleared")

// Store is a concurrency-safe table of sessions keyed by session id. It hands
// out copies; callers never hold a pointer into the table.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*model.Session)}
}

// Add inserts sess under sess.ID. It fails with model.ErrAlreadyExists if the
// id is taken.
func (s *Store) Add(sess *model.Session) error {
	c := sess.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[c.ID]; ok {
		return fmt.Errorf("%w: session %q", model.ErrAlreadyExists, c.ID)
	}
	s.sessions[c.ID] = c
	return nil
}

// Get returns a copy of the session, or model.ErrNotFound.
func (s *Store) Get(id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %q", model.ErrNotFound, id)
	}
	return sess.Clone(), nil
}

// Mutate applies fn to a copy of the session and commits the copy if fn
// returns nil. The read, fn and the commit happen under one lock hold, so no
// other operation observes a partial update. fn must not call into the store.
// The committed session is returned.
func (s *Store) Mutate(id string, fn func(*model.Session) error) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %q", model.ErrNotFound, id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	if cur.Reserved && !next.Reserved {
		return nil, errUnreserve
	}
	s.sessions[id] = next
	return next.Clone(), nil
}

// Remove deletes the session if present and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// RemoveIf atomically deletes every session matching pred and returns copies
// of the removed sessions. pred runs under the lock and must not call into
// the store.
func (s *Store) RemoveIf(pred func(*model.Session) bool) []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*model.Session
	for id, sess := range s.sessions {
		if pred(sess) {
			removed = append(removed, sess.Clone())
			delete(s.sessions, id)
		}
	}
	sortByID(removed)
	return removed
}

// Snapshot returns copies of all sessions, sorted by id.
func (s *Store) Snapshot() []*model.Session {
	s.mu.RLock()
	out := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()
	sortByID(out)
	return out
}

// ForEachReserved calls fn for every reserved session as of the call.
func (s *Store) ForEachReserved(fn func(*model.Session)) {
	for _, sess := range s.Snapshot() {
		if sess.Reserved {
			fn(sess)
		}
	}
}

// ForEachExcept calls fn for every session other than id as of the call.
func (s *Store) ForEachExcept(id string, fn func(*model.Session)) {
	for _, sess := range s.Snapshot() {
		if sess.ID != id {
			fn(sess)
		}
	}
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func sortByID(ss []*model.Session) {
	sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
}
