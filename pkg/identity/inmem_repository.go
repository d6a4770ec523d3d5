package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory map
type InMemRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
}

// NewInMemRepository creates a new in-memory user repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		users: make(map[uuid.UUID]User),
	}
}

func (r *InMemRepository) Create(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = NormalizeEmail(u.Email)
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *InMemRepository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *InMemRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = NormalizeEmail(email)
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *InMemRepository) List(ctx context.Context, role Role) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []User{}
	for _, u := range r.users {
		if role == "" || u.Role == role {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemRepository) Search(ctx context.Context, text string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	text = strings.ToLower(text)
	ids := []uuid.UUID{}
	for id, u := range r.users {
		if strings.Contains(strings.ToLower(u.Name), text) || strings.Contains(u.Email, text) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *InMemRepository) CountByRole(ctx context.Context, role Role, activeOnly bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, u := range r.users {
		if u.Role == role && (!activeOnly || u.IsActive) {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	return r.update(id, func(u *User) { u.IsActive = active })
}

func (r *InMemRepository) SetMaxDevices(ctx context.Context, id uuid.UUID, maxDevices int) (User, error) {
	return r.update(id, func(u *User) { u.MaxDevices = maxDevices })
}

func (r *InMemRepository) update(id uuid.UUID, fn func(*User)) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	fn(&u)
	r.users[id] = u
	return u, nil
}
