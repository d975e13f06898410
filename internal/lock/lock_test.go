package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:lock-%s?mode=memory&cache=shared", uuid.New().String())
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLLocker(t *testing.T) *SQLLocker {
	t.Helper()
	locker := NewSQLLocker(newTestDB(t))
	require.NoError(t, locker.Migrate(context.Background()))
	return locker
}

func TestSQLLocker_MutualExclusion(t *testing.T) {
	locker := newSQLLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "story:generate", time.Minute)
	require.NoError(t, err)
	require.True(t, first.Granted)
	assert.NotEmpty(t, first.Token)

	second, err := locker.Acquire(ctx, "story:generate", time.Minute)
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Equal(t, ReasonBusy, second.Reason)

	// A different name is independent.
	other, err := locker.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Granted)
}

func TestSQLLocker_ConcurrentAcquire(t *testing.T) {
	locker := newSQLLocker(t)

	const contenders = 8
	granted := make(chan string, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := locker.Acquire(context.Background(), "race", time.Minute)
			assert.NoError(t, err)
			if res.Granted {
				granted <- res.Token
			}
		}()
	}
	wg.Wait()
	close(granted)

	tokens := []string{}
	for token := range granted {
		tokens = append(tokens, token)
	}
	assert.Len(t, tokens, 1, "exactly one contender must win")
}

func TestSQLLocker_ExpiryMakesLockAcquirable(t *testing.T) {
	locker := newSQLLocker(t)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "expiring", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, first.Granted)

	// Not acquirable before the TTL elapses.
	early, err := locker.Acquire(ctx, "expiring", time.Minute)
	require.NoError(t, err)
	assert.False(t, early.Granted)

	time.Sleep(80 * time.Millisecond)

	late, err := locker.Acquire(ctx, "expiring", time.Minute)
	require.NoError(t, err)
	assert.True(t, late.Granted)
	assert.NotEqual(t, first.Token, late.Token)
}

func TestSQLLocker_ExtendOwnerOnly(t *testing.T) {
	locker := newSQLLocker(t)
	ctx := context.Background()

	res, err := locker.Acquire(ctx, "extendable", time.Minute)
	require.NoError(t, err)
	require.True(t, res.Granted)

	ok, err := locker.Extend(ctx, "extendable", res.Token, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.Extend(ctx, "extendable", "stale-token", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLLocker_ExtendExpired(t *testing.T) {
	locker := newSQLLocker(t)
	ctx := context.Background()

	res, err := locker.Acquire(ctx, "gone", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.Granted)

	time.Sleep(60 * time.Millisecond)

	ok, err := locker.Extend(ctx, "gone", res.Token, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLLocker_ReleaseOwnerOnly(t *testing.T) {
	locker := newSQLLocker(t)
	ctx := context.Background()

	res, err := locker.Acquire(ctx, "releasable", time.Minute)
	require.NoError(t, err)
	require.True(t, res.Granted)

	// A stale owner's release is a no-op.
	require.NoError(t, locker.Release(ctx, "releasable", "stale-token"))
	still, err := locker.Acquire(ctx, "releasable", time.Minute)
	require.NoError(t, err)
	assert.False(t, still.Granted)

	// The real owner's release frees the lock.
	require.NoError(t, locker.Release(ctx, "releasable", res.Token))
	next, err := locker.Acquire(ctx, "releasable", time.Minute)
	require.NoError(t, err)
	assert.True(t, next.Granted)
}

func TestSQLLocker_StoreUnavailable(t *testing.T) {
	db := newTestDB(t)
	locker := NewSQLLocker(db)
	require.NoError(t, locker.Migrate(context.Background()))
	require.NoError(t, db.Close())

	res, err := locker.Acquire(context.Background(), "anything", time.Minute)
	require.Error(t, err)
	assert.False(t, res.Granted)
	assert.Equal(t, ReasonUnavailable, res.Reason)
}

func TestLocalLocker_Basics(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	assert.Equal(t, "local", locker.Mode())

	first, err := locker.Acquire(ctx, "n", time.Minute)
	require.NoError(t, err)
	require.True(t, first.Granted)

	second, err := locker.Acquire(ctx, "n", time.Minute)
	require.NoError(t, err)
	assert.False(t, second.Granted)
	assert.Equal(t, ReasonBusy, second.Reason)

	ok, err := locker.Extend(ctx, "n", first.Token, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.Extend(ctx, "n", "wrong", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "n", first.Token))
	third, err := locker.Acquire(ctx, "n", time.Minute)
	require.NoError(t, err)
	assert.True(t, third.Granted)
}

func TestLocalLocker_Expiry(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	res, err := locker.Acquire(ctx, "n", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.Granted)

	time.Sleep(60 * time.Millisecond)

	again, err := locker.Acquire(ctx, "n", time.Minute)
	require.NoError(t, err)
	assert.True(t, again.Granted)
}
