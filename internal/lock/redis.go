package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPollInterval = 100 * time.Millisecond

var errHeld = errors.New("lock held")

// Deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisOptions struct {
	Prefix       string
	TTL          time.Duration // lock expiry
	Wait         time.Duration // how long Acquire polls before giving up
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *zap.Logger
}

// RedisLocker is a Locker shared by every replica through SET NX PX.
type RedisLocker struct {
	client *redis.Client
	opts   RedisOptions
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, opts: opts, logger: logger.Named("lock")}
}

func (l *RedisLocker) key(name string) string {
	if l.opts.Prefix == "" {
		return name
	}
	return l.opts.Prefix + ":" + name
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Unlock, error) {
	key := l.key(name)
	token := uuid.NewString()

	try := func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return fmt.Errorf("redis setnx: %w", err)
		}
		if !ok {
			return errHeld
		}
		return nil
	}

	var err error
	if l.opts.Wait <= 0 {
		err = try()
	} else {
		err = retry.Call(retry.CallArgs{
			Func: try,
			IsFatalError: func(err error) bool {
				return !errors.Is(err, errHeld)
			},
			Delay:       l.opts.PollInterval,
			MaxDuration: l.opts.Wait,
			Clock:       l.opts.Clock,
			Stop:        ctx.Done(),
		})
	}

	switch {
	case err == nil:
		l.logger.Debug("lock acquired", zap.String("key", key))
		return l.unlocker(key, token), nil
	case errors.Is(err, errHeld), retry.IsDurationExceeded(err), retry.IsAttemptsExceeded(err):
		return nil, ErrNotAcquired
	case retry.IsRetryStopped(err):
		return nil, ctx.Err()
	default:
		return nil, err
	}
}

func (l *RedisLocker) unlocker(key, token string) Unlock {
	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true

		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("redis release lock: %w", err)
		}
		if n == 0 {
			l.logger.Warn("lock expired before release", zap.String("key", key))
		}
		return nil
	}
}
