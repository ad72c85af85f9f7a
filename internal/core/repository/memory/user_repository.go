// Package memory holds an in-process user document collection, used when no
// PostgreSQL host is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/duynhne/profile-service/internal/core/domain"
)

// UserRepository implements domain.UserRepository over a map of record copies.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserRepository creates an empty in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*domain.User)}
}

func (r *UserRepository) Insert(_ context.Context, user *domain.User) error {
	id, err := domain.ParseID(user.ID)
	if err != nil {
		return fmt.Errorf("insert user %q: %w", user.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := id.String()
	if _, exists := r.users[key]; exists {
		return fmt.Errorf("insert user %q: duplicate id", key)
	}
	stored := user.Clone()
	stored.ID = key
	r.users[key] = stored
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	parsed, err := domain.ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", id, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[parsed.String()]
	if !ok {
		return nil, fmt.Errorf("get user %q: %w", id, domain.ErrUserNotFound)
	}
	return user.Clone(), nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User) error {
	id, err := domain.ParseID(user.ID)
	if err != nil {
		return fmt.Errorf("update user %q: %w", user.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := id.String()
	if _, ok := r.users[key]; !ok {
		return fmt.Errorf("update user %q: %w", user.ID, domain.ErrUserNotFound)
	}
	stored := user.Clone()
	stored.ID = key
	r.users[key] = stored
	return nil
}

// Len returns the number of stored records.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
