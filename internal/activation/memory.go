package activation

import (
	"context"
	"sync"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// MemoryStore is an in-process [Store], safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	byToken map[string]*models.ActivationToken
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byToken: make(map[string]*models.ActivationToken)}
}

func (s *MemoryStore) Create(ctx context.Context, token *models.ActivationToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byToken[token.Token]; taken {
		return sserr.New(sserr.CodeConflictAlreadyExists, "activation: token already exists")
	}
	s.byToken[token.Token] = cloneToken(token)
	return nil
}

func (s *MemoryStore) FindByToken(ctx context.Context, token string) (*models.ActivationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byToken[token]
	if !ok {
		return nil, tokenNotFound(nil)
	}
	return cloneToken(t), nil
}

func (s *MemoryStore) MarkActivated(ctx context.Context, token string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byToken[token]
	if !ok {
		return false, nil
	}
	return t.Activate(at), nil
}

func cloneToken(t *models.ActivationToken) *models.ActivationToken {
	c := *t
	if t.ActivatedAt != nil {
		at := *t.ActivatedAt
		c.ActivatedAt = &at
	}
	return &c
}
