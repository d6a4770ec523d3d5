package activitylog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("activity log entry not found")

// Repository is append-only: entries are never updated after Append
type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)

	// LatestLoginWithCoordinates returns the newest login entry of the user
	// with both coordinates set and since <= timestamp <= until.
	LatestLoginWithCoordinates(ctx context.Context, userID uuid.UUID, since, until time.Time) (Entry, error)

	// List returns one page, newest first. f must be normalized.
	List(ctx context.Context, f Filter) (Page, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)

	// CountSuspicious counts suspicious entries at or after since; a zero
	// since counts all of them.
	CountSuspicious(ctx context.Context, since time.Time) (int, error)
	ListSuspicious(ctx context.Context, limit int) ([]Entry, error)
}
