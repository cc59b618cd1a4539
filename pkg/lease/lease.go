// Package lease provides per-key mutual exclusion so that two updaters never
// interleave writes on the same job.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contaminer/pkg/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a key.
	DefaultTTL = 10 * time.Minute

	keyPrefix = "contaminer:lease:"
)

var (
	// ErrHeld is returned when the key is already leased by someone else.
	ErrHeld = errors.New("lease held by another holder")

	// ErrNotHeld is returned when releasing a lease that expired or was taken over.
	ErrNotHeld = errors.New("lease not held")
)

// Locker hands out leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held key. Release is safe to call once.
type Lease interface {
	Key() string
	// TTL is how long the lease lives without a Refresh.
	TTL() time.Duration
	// Refresh extends the lease by TTL. It fails with ErrNotHeld once the
	// lease expired or was taken over.
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Keep refreshes l every third of its TTL until the returned cancel func is
// called. The returned context is cancelled as soon as a refresh fails, so
// work bound to it stops before another holder can take the key.
func Keep(ctx context.Context, l Lease) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	interval := l.TTL() / 3
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Refresh(ctx); err != nil {
					zap.L().Warn("[Lease] refresh failed, aborting holder",
						zap.String("key", l.Key()), zap.Error(err))
					cancel(fmt.Errorf("lease %s: %w", l.Key(), err))
					return
				}
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			cancel(context.Canceled)
		})
	}
}

var Module = fx.Module("lease",
	fx.Provide(NewFromConfig),
)

type Params struct {
	fx.In

	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

// NewFromConfig leases through redis when a client is available. Without
// redis the leases only exclude updaters of the same process.
func NewFromConfig(p Params) Locker {
	if p.Redis == nil {
		zap.L().Warn("[Lease] no redis client, using process-local leases")
		return NewLocalLocker()
	}
	return NewRedisLocker(p.Redis, p.Config.Updater.LeaseTTL)
}

var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with SET NX PX and a token-checked delete.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{client: l.client, key: key, token: token, ttl: l.ttl}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) TTL() time.Duration { return l.ttl }

func (l *redisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{keyPrefix + l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// LocalLocker serialises holders inside one process. Used by the one-shot CLI
// commands when no redis is configured, and by tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}
	return &localLease{owner: l, key: key}, nil
}

type localLease struct {
	owner    *LocalLocker
	key      string
	once     sync.Once
	released bool
}

func (l *localLease) Key() string { return l.key }

// TTL of a local lease is unbounded, it lives until Release.
func (l *localLease) TTL() time.Duration { return DefaultTTL }

func (l *localLease) Refresh(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.released {
		return ErrNotHeld
	}
	return nil
}

func (l *localLease) Release(context.Context) error {
	err := ErrNotHeld
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.key)
		l.released = true
		l.owner.mu.Unlock()
		err = nil
	})
	return err
}
