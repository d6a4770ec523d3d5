package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// Repository stores user accounts. Emails are compared lower-cased.
type Repository interface {
	Create(ctx context.Context, u User) (User, error)
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)

	// List returns users ordered by creation time, newest first. An empty
	// role lists every user.
	List(ctx context.Context, role Role) ([]User, error)
	// Search returns the ids of users whose name or email contains text,
	// ignoring case.
	Search(ctx context.Context, text string) ([]uuid.UUID, error)
	CountByRole(ctx context.Context, role Role, activeOnly bool) (int, error)

	SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error)
	SetMaxDevices(ctx context.Context, id uuid.UUID, maxDevices int) (User, error)
}
