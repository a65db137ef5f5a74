package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// unlockScript deletes the key only if it still holds our token.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Mutex is a single-holder lock stored under "lock:mutex:<name>".
type Mutex struct {
	client     *Client
	logger     logging.Logger
	key        string
	ttl        time.Duration
	retryDelay time.Duration
	token      string
	newToken   func() string
}

// LockOption configures a Mutex.
type LockOption func(*Mutex)

// WithLockTTL bounds how long a crashed holder keeps the lock.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(m *Mutex) { m.ttl = ttl }
}

// WithRetryDelay sets the pause between acquisition attempts in Lock.
func WithRetryDelay(d time.Duration) LockOption {
	return func(m *Mutex) { m.retryDelay = d }
}

// NewMutex returns an unlocked mutex named name.
func NewMutex(client *Client, name string, log logging.Logger, opts ...LockOption) *Mutex {
	if log == nil {
		log = logging.NewNopLogger()
	}
	m := &Mutex{
		client:     client,
		logger:     log,
		key:        buildLockKey(name),
		ttl:        30 * time.Minute,
		retryDelay: 500 * time.Millisecond,
		newToken:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func buildLockKey(name string) string {
	return "lock:mutex:" + name
}

// TryLock makes one acquisition attempt.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	token := m.newToken()
	ok, err := m.client.SetNX(ctx, m.key, token, m.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquisition failed").WithDetail(m.key)
	}
	if ok {
		m.token = token
		m.logger.Debug("lock acquired", logging.String("key", m.key))
	}
	return ok, nil
}

// Lock retries TryLock until it succeeds or ctx is done.
func (m *Mutex) Lock(ctx context.Context) error {
	for {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrLockNotAcquired.WithCause(ctx.Err()).WithDetail(m.key)
		case <-time.After(m.retryDelay):
		}
	}
}

// Unlock releases the lock if this mutex still holds it.
func (m *Mutex) Unlock(ctx context.Context) error {
	if m.token == "" {
		return ErrLockNotHeld.WithDetail(m.key)
	}
	res, err := m.client.Eval(ctx, unlockScript, []string{m.key}, m.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock release failed").WithDetail(m.key)
	}
	m.token = ""
	if res == 0 {
		m.logger.Warn("lock expired before release", logging.String("key", m.key))
		return ErrLockNotHeld.WithDetail(m.key)
	}
	m.logger.Debug("lock released", logging.String("key", m.key))
	return nil
}

func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if c.isClosed() {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(ErrClientClosed)
		return cmd
	}
	return c.rdb.Eval(ctx, script, keys, args...)
}
