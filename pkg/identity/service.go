package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tendant/device-trust/pkg/errors"
)

const (
	MinPasswordLength = 6
	MinNameLength     = 2
	MaxNameLength     = 50
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service is the identity provider consumed by the trust engine and the
// admin surface.
type Service struct {
	repo              Repository
	hasher            PasswordHasher
	defaultMaxDevices int
	nowTime           func() time.Time
}

type Option func(*Service)

func WithHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithDefaultMaxDevices sets the cap given to newly registered users
func WithDefaultMaxDevices(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultMaxDevices = n
		}
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(s *Service) { s.nowTime = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		hasher:            NewBcryptHasher(),
		defaultMaxDevices: DefaultMaxDevices,
		nowTime:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest carries a self-service signup
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// Register creates an active account with the user role
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)

	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return User{}, pkgerrors.ValidationFailed("name",
			fmt.Sprintf("name must be between %d and %d characters", MinNameLength, MaxNameLength))
	}
	if !emailPattern.MatchString(email) {
		return User{}, pkgerrors.ValidationFailed("email", "invalid email address")
	}
	if len(req.Password) < MinPasswordLength {
		return User{}, pkgerrors.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters long", MinPasswordLength))
	}

	return s.create(ctx, name, email, req.Password, RoleUser, s.defaultMaxDevices)
}

// SeedAdmin creates an admin account unless one already exists for email
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string, maxDevices int) (User, error) {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		slog.Info("Admin account already exists", "email", existing.Email)
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}
	if maxDevices < 1 {
		maxDevices = s.defaultMaxDevices
	}
	return s.create(ctx, name, NormalizeEmail(email), password, RoleAdmin, maxDevices)
}

func (s *Service) create(ctx context.Context, name, email, password string, role Role, maxDevices int) (User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		MaxDevices:   maxDevices,
		IsActive:     true,
		CreatedAt:    s.nowTime().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, pkgerrors.AlreadyExists("user", email).WithDetail("field", "email")
		}
		return User{}, err
	}
	slog.Info("User registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// FindUserByEmail returns ErrUserNotFound when no account matches
func (s *Service) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, email)
}

func (s *Service) FindUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// VerifyCredential reports whether secret is the user's password
func (s *Service) VerifyCredential(user User, secret string) bool {
	ok, err := s.hasher.Verify(secret, user.PasswordHash)
	if err != nil {
		slog.Warn("Password verification failed", "user_id", user.ID, "error", err)
		return false
	}
	return ok
}

func (s *Service) ListUsers(ctx context.Context, role Role) ([]User, error) {
	return s.repo.List(ctx, role)
}

func (s *Service) SearchUserIDs(ctx context.Context, text string) ([]uuid.UUID, error) {
	return s.repo.Search(ctx, strings.TrimSpace(text))
}

func (s *Service) CountUsers(ctx context.Context, role Role, activeOnly bool) (int, error) {
	return s.repo.CountByRole(ctx, role, activeOnly)
}

// SetActive changes the account status. Revoking sessions on deactivation is
// the trust engine's job.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	user, err := s.repo.SetActive(ctx, id, active)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, pkgerrors.NotFound("user", id.String())
	}
	return user, err
}

func (s *Service) SetMaxDevices(ctx context.Context, id uuid.UUID, maxDevices int) (User, error) {
	if maxDevices < 1 {
		return User{}, pkgerrors.ValidationFailed("maxDevices", "max devices must be at least 1")
	}
	user, err := s.repo.SetMaxDevices(ctx, id, maxDevices)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, pkgerrors.NotFound("user", id.String())
	}
	return user, err
}
