package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/nother/compiler"
	"github.com/chazu/nother/vm"
)

var errStopped = errors.New("session closed")

// StateFactory builds the interpreter state for a new session. Output
// goes to host.
type StateFactory func(host vm.Host) *vm.State

// Session is one client's persistent interpreter: program, labels and
// stack survive between Evaluate calls.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	worker *Worker
	host   *vm.BufferHost

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns when the session was last looked up.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Do runs fn on the session's worker.
func (s *Session) Do(fn func(*vm.State) any) (any, error) {
	return s.worker.Do(fn)
}

// SessionStore manages interpreter sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newState StateFactory
}

// NewSessionStore creates a session store. A nil factory builds states
// with the standard lexer and no includer.
func NewSessionStore(newState StateFactory) *SessionStore {
	if newState == nil {
		newState = func(host vm.Host) *vm.State {
			return vm.NewState(vm.WithHost(host), vm.WithLexer(compiler.Lex))
		}
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		newState: newState,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	host := &vm.BufferHost{}
	now := time.Now()
	session := &Session{
		ID:       uuid.NewString(),
		Name:     name,
		Created:  now,
		worker:   NewWorker(s.newState(host)),
		host:     host,
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Infof("session %s created", session.ID)
	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		session.touch()
	}
	return session, ok
}

// Destroy removes a session and stops its worker.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.worker.Stop()
		log.Infof("session %s destroyed", id)
	}
	return ok
}

// IDs lists the live sessions in sorted order.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep removes sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var stale []*Session
	for id, session := range s.sessions {
		if session.LastUsed().Before(cutoff) {
			stale = append(stale, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range stale {
		session.worker.Stop()
	}
	if len(stale) > 0 {
		log.Infof("swept %d idle sessions", len(stale))
	}
	return len(stale)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Close destroys every session.
func (s *SessionStore) Close() {
	for _, id := range s.IDs() {
		s.Destroy(id)
	}
}
