// Package memory is an in-process implementation of the repository ports.
// It enforces the same uniqueness rules as the SQL schema and is safe for
// concurrent use. Used for local runs (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clientdesk/clients-api/internal/core/domain"
	"github.com/clientdesk/clients-api/internal/core/ports"
)

type ownerEmail struct {
	owner int64
	email string
}

type idemKey struct {
	owner int64
	key   string
}

// Store keeps users, clients and idempotency keys in maps guarded by a
// single RWMutex.
type Store struct {
	mu sync.RWMutex

	nextUserID   int64
	nextClientID int64

	users        map[int64]domain.User
	usersByEmail map[string]int64

	clients        map[int64]domain.Client
	clientsByEmail map[ownerEmail]int64

	idempotency map[idemKey]int64
}

// UserRepository is the ports.AuthRepository view of a Store.
type UserRepository struct{ s *Store }

// ClientRepository is the ports.ClientRepository view of a Store.
type ClientRepository struct{ s *Store }

var (
	_ ports.AuthRepository   = (*UserRepository)(nil)
	_ ports.ClientRepository = (*ClientRepository)(nil)
	_ ports.IdempotencyStore = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextUserID:     1,
		nextClientID:   1,
		users:          make(map[int64]domain.User),
		usersByEmail:   make(map[string]int64),
		clients:        make(map[int64]domain.Client),
		clientsByEmail: make(map[ownerEmail]int64),
		idempotency:    make(map[idemKey]int64),
	}
}

// Users returns the user repository backed by s.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Clients returns the client repository backed by s.
func (s *Store) Clients() *ClientRepository { return &ClientRepository{s: s} }

// Ping always succeeds; it lets the store stand in as a readiness dependency.
func (s *Store) Ping(context.Context) error { return nil }

// AuthRepository -------------------------------------------------------------

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByEmail[u.Email]; taken {
		return domain.ErrUserExists
	}

	u.ID = s.nextUserID
	s.nextUserID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Avatar == "" {
		u.Avatar = domain.DefaultAvatar
	}
	s.users[u.ID] = *u
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (r *UserRepository) FindByID(_ context.Context, id int64) (*domain.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

// ClientRepository -----------------------------------------------------------

func (r *ClientRepository) Create(_ context.Context, c *domain.Client) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k := ownerEmail{c.OwnerID, c.Email}
	if _, taken := s.clientsByEmail[k]; taken {
		return domain.ErrClientEmailTaken
	}

	c.ID = s.nextClientID
	s.nextClientID++
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.clients[c.ID] = *c
	s.clientsByEmail[k] = c.ID
	return nil
}

func (r *ClientRepository) FindByID(_ context.Context, ownerID, id int64) (*domain.Client, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok || c.OwnerID != ownerID {
		return nil, domain.ErrClientNotFound
	}
	return &c, nil
}

func (r *ClientRepository) List(_ context.Context, f ports.ListClientsFilter) ([]*domain.Client, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(f.Name)
	search := strings.ToLower(f.Search)

	matched := make([]*domain.Client, 0)
	for _, c := range s.clients {
		if c.OwnerID != f.OwnerID {
			continue
		}
		if search == "" && c.Deleted {
			continue
		}
		if search != "" && !containsFold(search, c.Name, c.Email, c.Phone) {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(c.Name), name) {
			continue
		}
		if f.Email != "" && c.Email != f.Email {
			continue
		}
		if f.Active != nil && c.Active != *f.Active {
			continue
		}
		c := c
		matched = append(matched, &c)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if f.Offset >= len(matched) {
		return []*domain.Client{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (r *ClientRepository) Update(_ context.Context, ownerID, id int64, ch domain.ClientChanges) (*domain.Client, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok || c.OwnerID != ownerID {
		return nil, domain.ErrClientNotFound
	}

	oldKey := ownerEmail{ownerID, c.Email}
	if ch.Email != nil && *ch.Email != c.Email {
		if _, taken := s.clientsByEmail[ownerEmail{ownerID, *ch.Email}]; taken {
			return nil, domain.ErrClientEmailTaken
		}
	}

	ch.Apply(&c)
	if ch.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	delete(s.clientsByEmail, oldKey)
	s.clientsByEmail[ownerEmail{ownerID, c.Email}] = c.ID
	s.clients[id] = c
	return &c, nil
}

func (r *ClientRepository) Delete(_ context.Context, ownerID, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok || c.OwnerID != ownerID {
		return domain.ErrClientNotFound
	}
	delete(s.clients, id)
	delete(s.clientsByEmail, ownerEmail{ownerID, c.Email})
	return nil
}

// IdempotencyStore -----------------------------------------------------------

func (s *Store) Lookup(_ context.Context, ownerID int64, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idempotency[idemKey{ownerID, key}]
	return id, ok, nil
}

func (s *Store) Remember(_ context.Context, ownerID int64, key string, clientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idempotency[idemKey{ownerID, key}] = clientID
	return nil
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
