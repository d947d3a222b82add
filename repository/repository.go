package repository

import (
	"context"
	"errors"

	"github.com/floradex-app/server/model"
)

var (
	// ErrNotFound is returned when no aggregate exists for the given id.
	ErrNotFound = errors.New("repository: user not found")
	// ErrConflict is returned by Put when the stored version does not
	// match the version carried by the aggregate. Callers must re-read
	// and recompute.
	ErrConflict = errors.New("repository: version conflict")
	// ErrExists is returned by Create when the id or username is taken.
	ErrExists = errors.New("repository: user already exists")
)

// UserRepository persists User aggregates with optimistic concurrency.
// There is no cross-aggregate atomicity: each Get/Put touches exactly one
// document. Multi-document consistency is the reconcile package's job.
type UserRepository interface {
	// Get returns the aggregate with its current version stamp.
	Get(ctx context.Context, id string) (*model.User, error)

	// Put writes the aggregate if the stored version still equals
	// u.Version. On success u.Version is advanced to the new stamp.
	Put(ctx context.Context, u *model.User) error

	// Create inserts a new aggregate at version 1.
	Create(ctx context.Context, u *model.User) error

	// FindByUsername returns the aggregate owning the given username.
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Scan visits every aggregate. Used by the consistency sweep; the
	// visited aggregates are snapshots, not live documents.
	Scan(ctx context.Context, fn func(u *model.User) error) error
}
