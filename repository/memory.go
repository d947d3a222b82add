package repository

import (
	"context"
	"sync"

	"github.com/floradex-app/server/model"
)

// MemoryUserRepository is an in-process UserRepository with the same
// optimistic-concurrency contract as the gorm implementation. It backs
// unit tests that need no database.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*model.User // stored clones, Version = current stamp
}

// NewMemoryUserRepository creates an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*model.User)}
}

func (r *MemoryUserRepository) Get(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryUserRepository) Put(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != u.Version {
		return ErrConflict
	}
	next := u.Clone()
	next.Version = stored.Version + 1
	r.users[u.ID] = next
	u.Version = next.Version
	return nil
}

func (r *MemoryUserRepository) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return ErrExists
	}
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return ErrExists
		}
	}
	stored := u.Clone()
	stored.Version = 1
	r.users[u.ID] = stored
	u.Version = 1
	return nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) Scan(_ context.Context, fn func(u *model.User) error) error {
	r.mu.Lock()
	snapshot := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		snapshot = append(snapshot, u.Clone())
	}
	r.mu.Unlock()

	for _, u := range snapshot {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}
