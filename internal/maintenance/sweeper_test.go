package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweeperStore struct {
	calls   atomic.Int64
	expired int64
	err     error
}

func (m *mockSweeperStore) ExpireStaleEntitlements(_ context.Context) (int64, error) {
	m.calls.Add(1)
	return m.expired, m.err
}

func TestExpirySweeperRunNow(t *testing.T) {
	store := &mockSweeperStore{expired: 3}
	sweeper := NewExpirySweeper(store, zerolog.Nop())

	sweeper.RunNow()
	assert.Equal(t, int64(1), store.calls.Load())
}

func TestExpirySweeperRunNowError(t *testing.T) {
	store := &mockSweeperStore{err: errors.New("db down")}
	sweeper := NewExpirySweeper(store, zerolog.Nop())

	// Errors are logged, not fatal; the next tick runs again.
	sweeper.RunNow()
	sweeper.RunNow()
	assert.Equal(t, int64(2), store.calls.Load())
}

func TestExpirySweeperStartStop(t *testing.T) {
	store := &mockSweeperStore{}
	sweeper := NewExpirySweeper(store, zerolog.Nop())

	require.NoError(t, sweeper.Start())
	assert.Error(t, sweeper.Start(), "second start should fail")

	done := sweeper.Stop()
	<-done.Done()

	// Stopping an already-stopped sweeper is a no-op.
	done = sweeper.Stop()
	<-done.Done()
}
