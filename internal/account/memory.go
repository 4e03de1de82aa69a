package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-castor/internal/db"
)

// MemoryStore keeps users and sessions in memory, for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*db.User
	sessions map[string]*db.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*db.User),
		sessions: make(map[string]*db.Session),
		now:      time.Now,
	}
}

// Users returns the store's UserStore view.
func (m *MemoryStore) Users() UserStore { return memoryUsers{m} }

// Sessions returns the store's SessionStore view.
func (m *MemoryStore) Sessions() SessionStore { return memorySessions{m} }

type memoryUsers struct{ m *MemoryStore }

func (u memoryUsers) Create(_ context.Context, user *db.User) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()

	for _, existing := range u.m.users {
		if strings.EqualFold(existing.Email, user.Email) || existing.Username == user.Username {
			return db.ErrConflict
		}
	}
	user.CreatedAt = u.m.now()
	stored := *user
	u.m.users[user.ID] = &stored
	return nil
}

func (u memoryUsers) Get(_ context.Context, id uuid.UUID) (*db.User, error) {
	u.m.mu.RLock()
	defer u.m.mu.RUnlock()

	user, ok := u.m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (u memoryUsers) GetByLogin(_ context.Context, login string) (*db.User, error) {
	u.m.mu.RLock()
	defer u.m.mu.RUnlock()

	for _, user := range u.m.users {
		if user.Email == login || user.Username == login {
			out := *user
			return &out, nil
		}
	}
	return nil, db.ErrNotFound
}

func (u memoryUsers) TouchLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()

	user, ok := u.m.users[id]
	if !ok {
		return db.ErrNotFound
	}
	user.LastLoginAt = &at
	return nil
}

type memorySessions struct{ m *MemoryStore }

func (s memorySessions) Create(_ context.Context, session *db.Session) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	stored := *session
	s.m.sessions[session.Token] = &stored
	return nil
}

func (s memorySessions) Get(_ context.Context, token string) (*db.Session, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	session, ok := s.m.sessions[token]
	if !ok || !s.m.now().Before(session.ExpiresAt) {
		return nil, db.ErrNotFound
	}
	out := *session
	return &out, nil
}

func (s memorySessions) Delete(_ context.Context, token string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	delete(s.m.sessions, token)
	return nil
}

// Ensure both backends satisfy the store interfaces.
var (
	_ UserStore    = memoryUsers{}
	_ SessionStore = memorySessions{}
	_ UserStore    = (*db.UserRepository)(nil)
	_ SessionStore = (*db.SessionRepository)(nil)
)
