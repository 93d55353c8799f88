package authclient

import (
	"context"
	"encoding/json"
	"sync"
)

// Storage persists the session under a named key. Load returns nil, nil
// when nothing is stored.
type Storage interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, session *Session) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps sessions in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: map[string][]byte{}}
}

// Load implements Storage.
func (m *MemoryStorage) Load(_ context.Context, key string) (*Session, error) {
	m.mu.RLock()
	raw, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return DecodeSession(raw)
}

// Save implements Storage.
func (m *MemoryStorage) Save(_ context.Context, key string, session *Session) error {
	if session == nil {
		return m.Delete(context.Background(), key)
	}
	raw, err := EncodeSession(session)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = raw
	m.mu.Unlock()
	return nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// EncodeSession serializes a session for storage backends.
func EncodeSession(session *Session) ([]byte, error) {
	return json.Marshal(session)
}

// DecodeSession parses a stored session.
func DecodeSession(raw []byte) (*Session, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

type noopStorage struct{}

func (noopStorage) Load(context.Context, string) (*Session, error) { return nil, nil }
func (noopStorage) Save(context.Context, string, *Session) error   { return nil }
func (noopStorage) Delete(context.Context, string) error           { return nil }

func normalizeStorage(s Storage) Storage {
	if s == nil {
		return noopStorage{}
	}
	return s
}
