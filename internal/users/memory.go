package users

import (
	"context"
	"sync"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// MemoryStore is an in-process [Store]. It is safe for concurrent use and
// enforces the same unique email rule as the database.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, userNotFound(nil, "email", email)
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, userNotFound(nil, "user_id", id)
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return emailTaken(nil, user.Email)
	}
	s.byID[user.ID] = cloneUser(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

// Len returns the number of stored users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.WalletAddress != nil {
		w := *u.WalletAddress
		c.WalletAddress = &w
	}
	if u.Password != nil {
		p := *u.Password
		c.Password = &p
	}
	return &c
}
