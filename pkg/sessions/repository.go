package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/geo"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrDuplicateToken = errors.New("session token already exists")
)

// Repository stores sessions. Every method that depends on liveness takes
// now from the caller; stores never read their own clock.
type Repository interface {
	// Create inserts s, replacing any active row for the same user and
	// device, live or expired.
	Create(ctx context.Context, s Session) (Session, error)

	FindByID(ctx context.Context, id uuid.UUID) (Session, error)
	FindLiveByToken(ctx context.Context, token string, now time.Time) (Session, error)
	FindLiveByDevice(ctx context.Context, userID uuid.UUID, deviceID string, now time.Time) (Session, error)

	CountLive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	CountAllLive(ctx context.Context, now time.Time) (int, error)
	CountLiveByUser(ctx context.Context, now time.Time) (map[uuid.UUID]int, error)

	// ListLive and ListAllLive order by last activity, most recent first
	ListLive(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error)
	ListAllLive(ctx context.Context, now time.Time) ([]Session, error)

	// Refresh moves lastActivity and expiresAt of an active session; loc
	// replaces the stored location unless nil. ErrNotFound when the session
	// is unknown or was deactivated.
	Refresh(ctx context.Context, id uuid.UUID, lastActivity, expiresAt time.Time, loc *geo.Location) (Session, error)

	// Deactivate marks the live session holding token inactive. found is
	// false when no live session matched.
	Deactivate(ctx context.Context, token string, now time.Time) (s Session, found bool, err error)
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)

	// DeleteExpiredOrInactive removes every row with is_active false or
	// expires_at <= now in a single predicate delete.
	DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int, error)
}
