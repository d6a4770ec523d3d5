package sessions

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) (Repository, func(t *testing.T) uuid.UUID) {
		return NewInMemRepository(), func(t *testing.T) uuid.UUID { return uuid.New() }
	})
}

func TestInMemRepository_ConcurrentCreates(t *testing.T) {
	repo := NewInMemRepository()
	userID := uuid.New()
	ctx := context.Background()

	batch := make([]Session, 20)
	for i := range batch {
		batch[i] = newTestSession(t, userID, uuid.NewString(), baseTime)
	}

	var wg sync.WaitGroup
	for _, s := range batch {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			_, err := repo.Create(ctx, s)
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	count, err := repo.CountLive(ctx, userID, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

func TestInMemRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()
	s := newTestSession(t, uuid.New(), "a", baseTime)
	_, err := repo.Create(ctx, s)
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	got.Location.City = "Elsewhere"

	again, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Elsewhere", got.Location.City)
	assert.Equal(t, "London", again.Location.City)
}
