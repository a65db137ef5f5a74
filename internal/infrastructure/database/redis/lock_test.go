package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/turtacn/ChemPredict/pkg/errors"
)

func newTestMutex(t *testing.T) (*Mutex, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	m := NewMutex(NewClientFromUniversal(db, nil), "training", nil,
		WithLockTTL(time.Minute), WithRetryDelay(time.Millisecond))
	m.newToken = func() string { return "tok" }
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return m, mock
}

func TestMutex_TryLockAndUnlock(t *testing.T) {
	m, mock := newTestMutex(t)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetVal(true)
	mock.ExpectEval(unlockScript, []string{"lock:mutex:training"}, "tok").SetVal(int64(1))

	ok, err := m.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, m.Unlock(context.Background()))
}

func TestMutex_TryLockHeldElsewhere(t *testing.T) {
	m, mock := newTestMutex(t)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetVal(false)

	ok, err := m.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	err = m.Unlock(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
}

func TestMutex_LockRetries(t *testing.T) {
	m, mock := newTestMutex(t)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetVal(false)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetVal(true)

	assert.NoError(t, m.Lock(context.Background()))
}

func TestMutex_LockContextDone(t *testing.T) {
	m, mock := newTestMutex(t)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetVal(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Lock(ctx)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
}

func TestMutex_UnlockAfterExpiry(t *testing.T) {
	m, mock := newTestMutex(t)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetVal(true)
	mock.ExpectEval(unlockScript, []string{"lock:mutex:training"}, "tok").SetVal(int64(0))

	_, err := m.TryLock(context.Background())
	require.NoError(t, err)
	err = m.Unlock(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
}

func TestMutex_RedisError(t *testing.T) {
	m, mock := newTestMutex(t)
	mock.ExpectSetNX("lock:mutex:training", "tok", time.Minute).SetErr(assert.AnError)

	_, err := m.TryLock(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}
