package auth

import (
	"sync"
)

// Storage is a string key/value persistence medium. Get never fails:
// errors in the underlying medium read as an absent value.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStorage keeps values in process memory. It backs the provider
// client's own token cache and is handy in tests.
type MemoryStorage struct {
	mu     sync.RWMutex
	prefix string
	values map[string]string
}

// NewMemoryStorage returns a storage whose keys are namespaced by prefix.
func NewMemoryStorage(prefix string) *MemoryStorage {
	return &MemoryStorage{
		prefix: prefix,
		values: map[string]string{},
	}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[m.prefix+key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[m.prefix+key] = value
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, m.prefix+key)
	return nil
}

// SessionStore persists the current Session under a single key.
type SessionStore struct {
	storage Storage
	key     string
	logger  Logger
}

// SessionStoreOption customizes a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionStoreLogger overrides the logger used for write failures.
func WithSessionStoreLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSessionStore(storage Storage, key string, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		storage: storage,
		key:     key,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load returns the stored session. Missing, undecodable or incomplete
// values all read as no session.
func (s *SessionStore) Load() (*Session, bool) {
	raw, ok := s.storage.Get(s.key)
	if !ok {
		return nil, false
	}

	session, ok := DecodeSession(raw)
	if !ok {
		s.logger.Debug("session store: discarding undecodable value for key %s", s.key)
		return nil, false
	}

	return session, true
}

// Save replaces the stored session. A nil session clears it.
func (s *SessionStore) Save(session *Session) error {
	if session == nil {
		return s.Clear()
	}

	raw, err := EncodeSession(session)
	if err != nil {
		return err
	}

	if err := s.storage.Set(s.key, raw); err != nil {
		s.logger.Error("session store: failed to write key %s: %v", s.key, err)
		return err
	}
	return nil
}

func (s *SessionStore) Clear() error {
	return s.storage.Remove(s.key)
}
