package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joiedevivre/jasmine/pkg/redis"
)

var ErrSessionNotFound = errors.New("cascade confirmation not found or expired")

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update overwrites an existing, unexpired session.
	Update(ctx context.Context, s *Session) error
	// Take returns the session and removes it, so only one caller can execute it.
	Take(ctx context.Context, id string) (*Session, error)
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Used when Redis is disabled.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: map[string]memoryEntry{},
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpired()
	m.sessions[s.ID] = memoryEntry{session: copySession(s), expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := copySession(&entry.session)
	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(s.ID)
	if !ok {
		return ErrSessionNotFound
	}
	entry.session = copySession(s)
	m.sessions[s.ID] = entry
	return nil
}

func (m *MemoryStore) Take(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.sessions, id)
	return &entry.session, nil
}

func (m *MemoryStore) live(id string) (memoryEntry, bool) {
	entry, ok := m.sessions[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.sessions, id)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryStore) evictExpired() {
	now := m.now()
	for id, entry := range m.sessions {
		if !now.Before(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
}

func copySession(s *Session) Session {
	out := *s
	out.Acknowledged = make(map[string]bool, len(s.Acknowledged))
	for k, v := range s.Acknowledged {
		out.Acknowledged[k] = v
	}
	return out
}

// RedisStore shares sessions across replicas with a TTL per session.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "cascade:confirmation:"}
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+s.ID, data, r.ttl); err != nil {
		return fmt.Errorf("failed to store cascade confirmation: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.prefix+id)
	return decodeSession(raw, err)
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetXX(ctx, r.prefix+s.ID, data)
	if err != nil {
		return fmt.Errorf("failed to update cascade confirmation: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) Take(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.GetDel(ctx, r.prefix+id)
	return decodeSession(raw, err)
}

func decodeSession(raw string, err error) (*Session, error) {
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade confirmation: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode cascade confirmation: %w", err)
	}
	return &s, nil
}
