package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/device-trust/pkg/device"
	"github.com/tendant/device-trust/pkg/geo"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// repoFactory returns a fresh repository and a function that makes a user id
// valid for the store's foreign keys.
type repoFactory func(t *testing.T) (Repository, func(t *testing.T) uuid.UUID)

func newTestSession(t *testing.T, userID uuid.UUID, deviceID string, now time.Time) Session {
	t.Helper()
	token, err := NewToken()
	require.NoError(t, err)
	return Session{
		ID:           uuid.New(),
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceInfo:   device.Info{Browser: "Chrome", OS: "Windows", DeviceType: device.TypeDesktop},
		SessionToken: token,
		IPAddress:    "81.2.69.160",
		Location:     geo.NewLocation("United Kingdom", "London", 51.5074, -0.1278, geo.SourceOracle),
		IsActive:     true,
		LastActivity: now,
		ExpiresAt:    now.Add(24 * time.Hour),
		CreatedAt:    now,
	}
}

func runRepositoryContract(t *testing.T, factory repoFactory) {
	ctx := context.Background()

	t.Run("CreateAndFind", func(t *testing.T) {
		repo, newUser := factory(t)
		userID := newUser(t)
		s := newTestSession(t, userID, "device-a", baseTime)

		created, err := repo.Create(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, s.ID, created.ID)
		assert.Equal(t, "Chrome", created.DeviceInfo.Browser)
		require.NotNil(t, created.Location)
		assert.Equal(t, "London", created.Location.City)
		assert.Equal(t, geo.SourceOracle, created.Location.Source)

		byToken, err := repo.FindLiveByToken(ctx, s.SessionToken, baseTime)
		require.NoError(t, err)
		assert.Equal(t, s.ID, byToken.ID)
		assert.True(t, byToken.ExpiresAt.Equal(s.ExpiresAt))

		byDevice, err := repo.FindLiveByDevice(ctx, userID, "device-a", baseTime)
		require.NoError(t, err)
		assert.Equal(t, s.ID, byDevice.ID)

		_, err = repo.FindLiveByDevice(ctx, userID, "device-b", baseTime)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NoLocation", func(t *testing.T) {
		repo, newUser := factory(t)
		s := newTestSession(t, newUser(t), "device-a", baseTime)
		s.Location = nil

		created, err := repo.Create(ctx, s)
		require.NoError(t, err)
		assert.Nil(t, created.Location)
	})

	t.Run("LivenessFollowsClock", func(t *testing.T) {
		repo, newUser := factory(t)
		userID := newUser(t)
		s := newTestSession(t, userID, "device-a", baseTime)
		_, err := repo.Create(ctx, s)
		require.NoError(t, err)

		count, err := repo.CountLive(ctx, userID, baseTime.Add(23*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = repo.CountLive(ctx, userID, baseTime.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		_, err = repo.FindLiveByToken(ctx, s.SessionToken, baseTime.Add(25*time.Hour))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreateReplacesActiveRowForDevice", func(t *testing.T) {
		repo, newUser := factory(t)
		userID := newUser(t)

		first := newTestSession(t, userID, "device-a", baseTime)
		_, err := repo.Create(ctx, first)
		require.NoError(t, err)

		// the first row has expired but is still flagged active
		later := baseTime.Add(48 * time.Hour)
		second := newTestSession(t, userID, "device-a", later)
		_, err = repo.Create(ctx, second)
		require.NoError(t, err)

		_, err = repo.FindByID(ctx, first.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		live, err := repo.ListLive(ctx, userID, later)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, second.ID, live[0].ID)
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		repo, newUser := factory(t)
		userID := newUser(t)

		a := newTestSession(t, userID, "device-a", baseTime)
		_, err := repo.Create(ctx, a)
		require.NoError(t, err)

		b := newTestSession(t, userID, "device-b", baseTime)
		b.SessionToken = a.SessionToken
		_, err = repo.Create(ctx, b)
		assert.ErrorIs(t, err, ErrDuplicateToken)
	})

	t.Run("Refresh", func(t *testing.T) {
		repo, newUser := factory(t)
		s := newTestSession(t, newUser(t), "device-a", baseTime)
		_, err := repo.Create(ctx, s)
		require.NoError(t, err)

		later := baseTime.Add(time.Hour)
		refreshed, err := repo.Refresh(ctx, s.ID, later, later.Add(24*time.Hour), nil)
		require.NoError(t, err)
		assert.True(t, refreshed.LastActivity.Equal(later))
		assert.True(t, refreshed.ExpiresAt.Equal(later.Add(24*time.Hour)))
		assert.Equal(t, "London", refreshed.Location.City)

		paris := geo.NewLocation("France", "Paris", 48.8566, 2.3522, geo.SourceGeoIP)
		refreshed, err = repo.Refresh(ctx, s.ID, later, later.Add(24*time.Hour), paris)
		require.NoError(t, err)
		assert.Equal(t, "Paris", refreshed.Location.City)
		assert.Equal(t, geo.SourceGeoIP, refreshed.Location.Source)

		_, err = repo.Refresh(ctx, uuid.New(), later, later, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RefreshSkipsDeactivated", func(t *testing.T) {
		repo, newUser := factory(t)
		s := newTestSession(t, newUser(t), "device-a", baseTime)
		_, err := repo.Create(ctx, s)
		require.NoError(t, err)

		_, ok, err := repo.Deactivate(ctx, s.SessionToken, baseTime)
		require.NoError(t, err)
		require.True(t, ok)

		later := baseTime.Add(time.Hour)
		_, err = repo.Refresh(ctx, s.ID, later, later.Add(24*time.Hour), nil)
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.True(t, got.ExpiresAt.Equal(s.ExpiresAt))
	})

	t.Run("DeactivateIsIdempotent", func(t *testing.T) {
		repo, newUser := factory(t)
		s := newTestSession(t, newUser(t), "device-a", baseTime)
		_, err := repo.Create(ctx, s)
		require.NoError(t, err)

		got, found, err := repo.Deactivate(ctx, s.SessionToken, baseTime)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, s.ID, got.ID)
		assert.False(t, got.IsActive)

		_, found, err = repo.Deactivate(ctx, s.SessionToken, baseTime)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = repo.Deactivate(ctx, "unknown-token", baseTime)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("DeactivateAllForUser", func(t *testing.T) {
		repo, newUser := factory(t)
		userID := newUser(t)
		otherID := newUser(t)

		for _, d := range []string{"a", "b", "c"} {
			_, err := repo.Create(ctx, newTestSession(t, userID, d, baseTime))
			require.NoError(t, err)
		}
		_, err := repo.Create(ctx, newTestSession(t, otherID, "a", baseTime))
		require.NoError(t, err)

		n, err := repo.DeactivateAllForUser(ctx, userID, baseTime)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		count, err := repo.CountLive(ctx, userID, baseTime)
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = repo.CountLive(ctx, otherID, baseTime)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		n, err = repo.DeactivateAllForUser(ctx, userID, baseTime)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ListAndCountAcrossUsers", func(t *testing.T) {
		repo, newUser := factory(t)
		alice := newUser(t)
		bob := newUser(t)

		older := newTestSession(t, alice, "a", baseTime)
		newer := newTestSession(t, alice, "b", baseTime.Add(10*time.Minute))
		bobs := newTestSession(t, bob, "a", baseTime.Add(5*time.Minute))
		for _, s := range []Session{older, newer, bobs} {
			_, err := repo.Create(ctx, s)
			require.NoError(t, err)
		}

		now := baseTime.Add(time.Hour)
		live, err := repo.ListLive(ctx, alice, now)
		require.NoError(t, err)
		require.Len(t, live, 2)
		assert.Equal(t, newer.ID, live[0].ID)
		assert.Equal(t, older.ID, live[1].ID)

		all, err := repo.ListAllLive(ctx, now)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []uuid.UUID{newer.ID, bobs.ID, older.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

		total, err := repo.CountAllLive(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 3, total)

		byUser, err := repo.CountLiveByUser(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]int{alice: 2, bob: 1}, byUser)
	})

	t.Run("DeleteExpiredOrInactive", func(t *testing.T) {
		repo, newUser := factory(t)
		userID := newUser(t)

		live := newTestSession(t, userID, "live", baseTime)
		expired := newTestSession(t, userID, "expired", baseTime)
		expired.ExpiresAt = baseTime.Add(-time.Minute)
		inactive := newTestSession(t, userID, "inactive", baseTime)
		for _, s := range []Session{live, expired, inactive} {
			_, err := repo.Create(ctx, s)
			require.NoError(t, err)
		}
		_, found, err := repo.Deactivate(ctx, inactive.SessionToken, baseTime)
		require.NoError(t, err)
		require.True(t, found)

		n, err := repo.DeleteExpiredOrInactive(ctx, baseTime)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = repo.DeleteExpiredOrInactive(ctx, baseTime)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = repo.FindByID(ctx, live.ID)
		assert.NoError(t, err)
		_, err = repo.FindByID(ctx, expired.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.FindByID(ctx, inactive.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestNewToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		require.NoError(t, err)
		assert.Len(t, token, 2*TokenBytes)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestSession_IsLive(t *testing.T) {
	s := Session{IsActive: true, ExpiresAt: baseTime}
	assert.True(t, s.IsLive(baseTime.Add(-time.Second)))
	assert.False(t, s.IsLive(baseTime))

	s.IsActive = false
	assert.False(t, s.IsLive(baseTime.Add(-time.Hour)))
}

func TestNewRepository(t *testing.T) {
	repo, err := NewRepository("memory", RepositoryConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InMemRepository{}, repo)

	_, err = NewRepository("postgres", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewRepository("sqlite", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewRepository("mongo", RepositoryConfig{})
	assert.Error(t, err)
}
