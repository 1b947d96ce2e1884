package session

import "sync"

// Store holds live sessions keyed by conversation. Access to one key is
// serialized for the whole duration of Do; different keys never block
// each other.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	live    int
}

// refs and live are guarded by Store.mu, session by entry.mu.
type entry struct {
	mu      sync.Mutex
	refs    int
	live    bool
	session *Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Do runs fn with exclusive access to the conversation's session. fn gets a
// copy of the current session (nil if none) and returns the replacement;
// returning nil or a Terminal session removes it.
func (s *Store) Do(id string, fn func(current *Session) *Session) {
	e := s.acquire(id)
	defer s.releaseEntry(id, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	next := fn(e.session.clone())
	if next == nil || next.State == Terminal {
		e.session = nil
	} else {
		e.session = next.clone()
	}
	s.setLive(e, e.session != nil)
}

// Get returns a snapshot of the conversation's session.
func (s *Store) Get(id string) (Session, bool) {
	e := s.acquire(id)
	defer s.releaseEntry(id, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session.clone(), true
}

// Len reports the number of live sessions. It never waits on an event
// in progress.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Store) setLive(e *entry, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.live == live {
		return
	}
	e.live = live
	if live {
		s.live++
	} else {
		s.live--
	}
}

func (s *Store) acquire(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.refs++
	return e
}

// releaseEntry drops the key once nobody holds it and it has no session.
func (s *Store) releaseEntry(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	if !e.live {
		delete(s.entries, id)
	}
}
