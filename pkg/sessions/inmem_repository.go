package sessions

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/geo"
)

// InMemRepository implements Repository using in-memory maps
type InMemRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	byToken  map[string]uuid.UUID
}

// NewInMemRepository creates a new in-memory session repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		sessions: make(map[uuid.UUID]Session),
		byToken:  make(map[string]uuid.UUID),
	}
}

func (r *InMemRepository) Create(ctx context.Context, s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[s.SessionToken]; exists {
		return Session{}, ErrDuplicateToken
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	for id, existing := range r.sessions {
		if existing.IsActive && existing.UserID == s.UserID && existing.DeviceID == s.DeviceID {
			slog.Debug("Replacing active session for device", "session_id", id, "user_id", s.UserID)
			delete(r.byToken, existing.SessionToken)
			delete(r.sessions, id)
		}
	}

	s.Location = copyLocation(s.Location)
	r.sessions[s.ID] = s
	r.byToken[s.SessionToken] = s.ID
	return clone(s), nil
}

func (r *InMemRepository) FindByID(ctx context.Context, id uuid.UUID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return clone(s), nil
}

func (r *InMemRepository) FindLiveByToken(ctx context.Context, token string, now time.Time) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	s := r.sessions[id]
	if !s.IsLive(now) {
		return Session{}, ErrNotFound
	}
	return clone(s), nil
}

func (r *InMemRepository) FindLiveByDevice(ctx context.Context, userID uuid.UUID, deviceID string, now time.Time) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.UserID == userID && s.DeviceID == deviceID && s.IsLive(now) {
			return clone(s), nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *InMemRepository) CountLive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsLive(now) {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) CountAllLive(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.sessions {
		if s.IsLive(now) {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) CountLiveByUser(ctx context.Context, now time.Time) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[uuid.UUID]int)
	for _, s := range r.sessions {
		if s.IsLive(now) {
			counts[s.UserID]++
		}
	}
	return counts, nil
}

func (r *InMemRepository) ListLive(ctx context.Context, userID uuid.UUID, now time.Time) ([]Session, error) {
	return r.list(func(s Session) bool { return s.UserID == userID && s.IsLive(now) }), nil
}

func (r *InMemRepository) ListAllLive(ctx context.Context, now time.Time) ([]Session, error) {
	return r.list(func(s Session) bool { return s.IsLive(now) }), nil
}

func (r *InMemRepository) list(match func(Session) bool) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []Session{}
	for _, s := range r.sessions {
		if match(s) {
			result = append(result, clone(s))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	return result
}

func (r *InMemRepository) Refresh(ctx context.Context, id uuid.UUID, lastActivity, expiresAt time.Time, loc *geo.Location) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.IsActive {
		return Session{}, ErrNotFound
	}
	s.LastActivity = lastActivity
	s.ExpiresAt = expiresAt
	if loc != nil {
		s.Location = copyLocation(loc)
	}
	r.sessions[id] = s
	return clone(s), nil
}

func (r *InMemRepository) Deactivate(ctx context.Context, token string, now time.Time) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return Session{}, false, nil
	}
	s := r.sessions[id]
	if !s.IsLive(now) {
		return Session{}, false, nil
	}
	s.IsActive = false
	r.sessions[id] = s
	return clone(s), true, nil
}

func (r *InMemRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, s := range r.sessions {
		if s.UserID == userID && s.IsLive(now) {
			s.IsActive = false
			r.sessions[id] = s
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) DeleteExpiredOrInactive(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, s := range r.sessions {
		if !s.IsLive(now) {
			delete(r.byToken, s.SessionToken)
			delete(r.sessions, id)
			count++
		}
	}
	return count, nil
}

func clone(s Session) Session {
	s.Location = copyLocation(s.Location)
	return s
}

func copyLocation(loc *geo.Location) *geo.Location {
	if loc == nil {
		return nil
	}
	c := *loc
	return &c
}
