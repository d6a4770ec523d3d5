package reporting

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ownerCache resolves each user at most once per listing. Deleted or
// unreadable owners resolve to nil.
type ownerCache struct {
	users UserDirectory
	seen  map[uuid.UUID]*UserSummary
}

func newOwnerCache(users UserDirectory) *ownerCache {
	return &ownerCache{users: users, seen: make(map[uuid.UUID]*UserSummary)}
}

func (c *ownerCache) get(ctx context.Context, id uuid.UUID) *UserSummary {
	if summary, ok := c.seen[id]; ok {
		return summary
	}
	user, err := c.users.FindUserByID(ctx, id)
	var summary *UserSummary
	if err == nil {
		summary = summarize(user)
	} else {
		slog.Debug("Owner lookup failed", "user_id", id, "error", err)
	}
	c.seen[id] = summary
	return summary
}
