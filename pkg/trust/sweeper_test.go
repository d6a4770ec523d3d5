package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_RunsUntilCancelled(t *testing.T) {
	env := setupEngine(t)
	user := env.register(t, "alice@example.com")
	result, err := env.login("alice@example.com", "device-a", londonIP)
	require.NoError(t, err)
	require.NoError(t, env.engine.Logout(context.Background(), result.Session.SessionToken))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(env.engine, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := env.sessions.FindByID(context.Background(), result.Session.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, env.liveCount(t, user.ID))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	env := setupEngine(t)
	s := NewSweeper(env.engine, 0)
	assert.Equal(t, env.engine.cfg.SweepInterval, s.interval)
}
