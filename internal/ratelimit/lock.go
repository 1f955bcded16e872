package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrLockHeld          = errors.New("lock_held")
	ErrLockLost          = errors.New("lock_lost")
)

// Both scripts act only while KEYS[1] still holds the caller's token.
const (
	lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`
)

// Locker is a single-key redis mutex. The token returned by TryLock must be
// handed back to Release and Extend so one holder cannot touch another's
// lock.
type Locker struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:  client,
		release: redis.NewScript(lockReleaseScript),
		extend:  redis.NewScript(lockExtendScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	if key == "" || ttl <= 0 {
		return "", false, fmt.Errorf("lock %q: key and positive ttl required", key)
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Extend resets the ttl of a lock still held under token. It reports false
// once the lock has expired or changed hands.
func (l *Locker) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, ErrLockNotConfigured
	}
	n, err := l.extend.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}

// WithLock runs fn while holding key. ErrLockHeld is returned without running
// fn when another holder owns the key. The lock is extended every third of
// ttl while fn runs; if an extension finds the lock gone, fn's context is
// cancelled and the returned error wraps ErrLockLost.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	token, ok, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go l.keepAlive(runCtx, key, token, ttl, done, cancel)

	defer func() {
		close(done)
		cancel(nil)
		// release must outlive a cancelled ctx
		releaseCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer stop()
		_ = l.Release(releaseCtx, key, token)
	}()

	err = fn(runCtx)
	if cause := context.Cause(runCtx); errors.Is(cause, ErrLockLost) {
		return errors.Join(err, fmt.Errorf("%s: %w", key, ErrLockLost))
	}
	return err
}

func (l *Locker) keepAlive(ctx context.Context, key, token string, ttl time.Duration, done <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(renewInterval(ttl))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := l.Extend(ctx, key, token, ttl)
			// a transient redis error leaves the current ttl running
			if err == nil && !held {
				cancel(ErrLockLost)
				return
			}
		}
	}
}

func renewInterval(ttl time.Duration) time.Duration {
	interval := ttl / 3
	if interval < 100*time.Millisecond {
		return 100 * time.Millisecond
	}
	return interval
}
