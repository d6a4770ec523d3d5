package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/activitylog"
	pkgerrors "github.com/tendant/device-trust/pkg/errors"
	"github.com/tendant/device-trust/pkg/identity"
	"github.com/tendant/device-trust/pkg/sessions"
)

const (
	UserDetailLogLimit  = 10
	SuspiciousListLimit = 20
	SuspiciousLookback  = 7 * 24 * time.Hour
)

// UserDirectory is the read side of the identity provider.
// *identity.Service satisfies it.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (identity.User, error)
	ListUsers(ctx context.Context, role identity.Role) ([]identity.User, error)
	SearchUserIDs(ctx context.Context, text string) ([]uuid.UUID, error)
	CountUsers(ctx context.Context, role identity.Role, activeOnly bool) (int, error)
}

// Service builds the read models behind the user and admin dashboards
type Service struct {
	users    UserDirectory
	sessions sessions.Repository
	logs     activitylog.Repository
	nowTime  func() time.Time
}

type Option func(*Service)

func WithNowTime(now func() time.Time) Option {
	return func(s *Service) { s.nowTime = now }
}

func NewService(users UserDirectory, sessionRepo sessions.Repository, logs activitylog.Repository, opts ...Option) *Service {
	s := &Service{
		users:    users,
		sessions: sessionRepo,
		logs:     logs,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.nowTime().UTC()
}

// UserSummary is the owner information attached to sessions and log entries
type UserSummary struct {
	ID    uuid.UUID     `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
	Role  identity.Role `json:"role"`
}

func summarize(u identity.User) *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// SessionView is a live session as shown to its owner
type SessionView struct {
	sessions.Session
	Nickname  string `json:"nickname"`
	IsCurrent bool   `json:"isCurrent"`
}

type UserDashboard struct {
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	MaxDevices     int           `json:"maxDevices"`
	ActiveSessions int           `json:"activeSessions"`
	AvailableSlots int           `json:"availableSlots"`
	Sessions       []SessionView `json:"sessions"`
}

// UserDashboard describes the live devices of userID. The session with id
// currentSessionID, if any, is marked current.
func (s *Service) UserDashboard(ctx context.Context, userID, currentSessionID uuid.UUID) (UserDashboard, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return UserDashboard{}, err
	}
	views, err := s.UserSessions(ctx, userID, currentSessionID)
	if err != nil {
		return UserDashboard{}, err
	}

	available := user.MaxDevices - len(views)
	if available < 0 {
		available = 0
	}
	return UserDashboard{
		Name:           user.Name,
		Email:          user.Email,
		MaxDevices:     user.MaxDevices,
		ActiveSessions: len(views),
		AvailableSlots: available,
		Sessions:       views,
	}, nil
}

// UserSessions lists the live sessions of userID, most recently active first
func (s *Service) UserSessions(ctx context.Context, userID, currentSessionID uuid.UUID) ([]SessionView, error) {
	live, err := s.sessions.ListLive(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	views := make([]SessionView, len(live))
	for i, sess := range live {
		views[i] = SessionView{
			Session:   sess,
			Nickname:  sess.Nickname(),
			IsCurrent: sess.ID == currentSessionID,
		}
	}
	return views, nil
}

type AdminDashboard struct {
	TotalUsers      int `json:"totalUsers"`
	ActiveUsers     int `json:"activeUsers"`
	TotalSessions   int `json:"totalSessions"`
	SuspiciousCount int `json:"suspiciousCount"`
}

// AdminDashboard counts accounts with the user role, live sessions across
// all users and suspicious entries of all time.
func (s *Service) AdminDashboard(ctx context.Context) (AdminDashboard, error) {
	var d AdminDashboard
	var err error
	if d.TotalUsers, err = s.users.CountUsers(ctx, identity.RoleUser, false); err != nil {
		return AdminDashboard{}, fmt.Errorf("failed to count users: %w", err)
	}
	if d.ActiveUsers, err = s.users.CountUsers(ctx, identity.RoleUser, true); err != nil {
		return AdminDashboard{}, fmt.Errorf("failed to count active users: %w", err)
	}
	if d.TotalSessions, err = s.sessions.CountAllLive(ctx, s.now()); err != nil {
		return AdminDashboard{}, fmt.Errorf("failed to count sessions: %w", err)
	}
	if d.SuspiciousCount, err = s.logs.CountSuspicious(ctx, time.Time{}); err != nil {
		return AdminDashboard{}, fmt.Errorf("failed to count suspicious entries: %w", err)
	}
	return d, nil
}

type UserWithSessions struct {
	identity.User
	ActiveSessionCount int `json:"activeSessionCount"`
}

// ListUsers returns accounts with the user role, newest first, with their
// live session counts.
func (s *Service) ListUsers(ctx context.Context) ([]UserWithSessions, error) {
	users, err := s.users.ListUsers(ctx, identity.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	counts, err := s.sessions.CountLiveByUser(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	result := make([]UserWithSessions, len(users))
	for i, u := range users {
		result[i] = UserWithSessions{User: u, ActiveSessionCount: counts[u.ID]}
	}
	return result, nil
}

type UserDetails struct {
	User           identity.User       `json:"user"`
	ActiveSessions []sessions.Session  `json:"activeSessions"`
	Logs           []activitylog.Entry `json:"logs"`
}

func (s *Service) UserDetails(ctx context.Context, userID uuid.UUID) (UserDetails, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return UserDetails{}, err
	}
	live, err := s.sessions.ListLive(ctx, userID, s.now())
	if err != nil {
		return UserDetails{}, fmt.Errorf("failed to list sessions: %w", err)
	}
	logs, err := s.logs.ListByUser(ctx, userID, UserDetailLogLimit)
	if err != nil {
		return UserDetails{}, fmt.Errorf("failed to list activity: %w", err)
	}
	return UserDetails{User: user, ActiveSessions: live, Logs: logs}, nil
}

// LogView is an activity log entry with its owner resolved
type LogView struct {
	activitylog.Entry
	User *UserSummary `json:"user,omitempty"`
}

type SuspiciousSummary struct {
	Last7Days int       `json:"last7Days"`
	Recent    []LogView `json:"recentSuspicious"`
}

func (s *Service) SuspiciousSummary(ctx context.Context) (SuspiciousSummary, error) {
	count, err := s.logs.CountSuspicious(ctx, s.now().Add(-SuspiciousLookback))
	if err != nil {
		return SuspiciousSummary{}, fmt.Errorf("failed to count suspicious entries: %w", err)
	}
	recent, err := s.logs.ListSuspicious(ctx, SuspiciousListLimit)
	if err != nil {
		return SuspiciousSummary{}, fmt.Errorf("failed to list suspicious entries: %w", err)
	}
	return SuspiciousSummary{Last7Days: count, Recent: s.withOwners(ctx, recent)}, nil
}

// OwnedSession is a live session with its owner resolved
type OwnedSession struct {
	sessions.Session
	User *UserSummary `json:"user,omitempty"`
}

// AllSessions lists live sessions across users, most recently active first
func (s *Service) AllSessions(ctx context.Context) ([]OwnedSession, error) {
	live, err := s.sessions.ListAllLive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	owners := newOwnerCache(s.users)
	result := make([]OwnedSession, len(live))
	for i, sess := range live {
		result[i] = OwnedSession{Session: sess, User: owners.get(ctx, sess.UserID)}
	}
	return result, nil
}

// LogQuery is the admin log listing filter
type LogQuery struct {
	Search         string
	Action         activitylog.Action
	SuspiciousOnly bool
	Page           int
	Limit          int
}

type LogPage struct {
	Logs  []LogView `json:"logs"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Pages int       `json:"pages"`
	Limit int       `json:"limit"`
}

// ListLogs pages through the activity log, newest first. Search matches a
// substring of the entry IP or any user whose name or email contains it.
func (s *Service) ListLogs(ctx context.Context, q LogQuery) (LogPage, error) {
	if q.Action != "" && q.Action != activitylog.ActionAll && !q.Action.Valid() {
		return LogPage{}, pkgerrors.ValidationFailed("type", fmt.Sprintf("unknown action %q", q.Action))
	}
	f := activitylog.Filter{
		Search:         q.Search,
		Action:         q.Action,
		SuspiciousOnly: q.SuspiciousOnly,
		Page:           q.Page,
		Limit:          q.Limit,
	}.Normalize()
	if f.Search != "" {
		ids, err := s.users.SearchUserIDs(ctx, f.Search)
		if err != nil {
			return LogPage{}, fmt.Errorf("failed to search users: %w", err)
		}
		f.UserIDs = ids
	}

	page, err := s.logs.List(ctx, f)
	if err != nil {
		return LogPage{}, fmt.Errorf("failed to list activity log: %w", err)
	}
	return LogPage{
		Logs:  s.withOwners(ctx, page.Entries),
		Total: page.Total,
		Page:  page.Page,
		Pages: page.Pages,
		Limit: page.Limit,
	}, nil
}

func (s *Service) withOwners(ctx context.Context, entries []activitylog.Entry) []LogView {
	owners := newOwnerCache(s.users)
	views := make([]LogView, len(entries))
	for i, e := range entries {
		views[i] = LogView{Entry: e, User: owners.get(ctx, e.UserID)}
	}
	return views
}

func (s *Service) findUser(ctx context.Context, id uuid.UUID) (identity.User, error) {
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, pkgerrors.NotFound("user", id.String())
		}
		return identity.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
