package activitylog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/geo"
)

// InMemRepository implements Repository using an in-memory slice
type InMemRepository struct {
	mu      sync.Mutex
	entries []Entry
}

// NewInMemRepository creates a new in-memory activity log
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{}
}

func (r *InMemRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Location = copyLocation(e)
	r.entries = append(r.entries, e)
	return e, nil
}

// newest returns the matching entries, newest first
func (r *InMemRepository) newest(match func(Entry) bool) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []Entry{}
	for _, e := range r.entries {
		if match(e) {
			c := e
			c.Location = copyLocation(e)
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result
}

func (r *InMemRepository) LatestLoginWithCoordinates(ctx context.Context, userID uuid.UUID, since, until time.Time) (Entry, error) {
	matches := r.newest(func(e Entry) bool {
		return e.UserID == userID &&
			e.Action == ActionLogin &&
			e.Location.HasCoordinates() &&
			!e.Timestamp.Before(since) &&
			!e.Timestamp.After(until)
	})
	if len(matches) == 0 {
		return Entry{}, ErrNotFound
	}
	return matches[0], nil
}

func (r *InMemRepository) List(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	matches := r.newest(f.matches)
	total := len(matches)

	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return NewPage(matches[start:end], total, f), nil
}

func (r *InMemRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	return head(r.newest(func(e Entry) bool { return e.UserID == userID }), limit), nil
}

func (r *InMemRepository) CountSuspicious(ctx context.Context, since time.Time) (int, error) {
	return len(r.newest(func(e Entry) bool {
		return e.IsSuspicious && !e.Timestamp.Before(since)
	})), nil
}

func (r *InMemRepository) ListSuspicious(ctx context.Context, limit int) ([]Entry, error) {
	return head(r.newest(func(e Entry) bool { return e.IsSuspicious }), limit), nil
}

func head(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func copyLocation(e Entry) *geo.Location {
	if e.Location == nil {
		return nil
	}
	c := *e.Location
	return &c
}
