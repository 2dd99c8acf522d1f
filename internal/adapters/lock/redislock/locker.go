package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/lock"
)

const (
	DefaultTTL   = 10 * time.Second
	DefaultRetry = 50 * time.Millisecond
	DefaultWait  = 5 * time.Second
)

// release borra la key solo si el token sigue siendo el nuestro.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	Prefix string        // default "medrem:lock:"
	TTL    time.Duration // expiración del lock si el proceso muere
	Retry  time.Duration // intervalo entre intentos
	Wait   time.Duration // espera máxima si el ctx no tiene deadline
	Logger logger.Logger
}

// Locker serializa transiciones entre réplicas con SET NX PX + token.
type Locker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
	log    logger.Logger
}

func New(rdb redis.UniversalClient, opts Options) *Locker {
	l := &Locker{
		rdb:    rdb,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		retry:  opts.Retry,
		wait:   opts.Wait,
		log:    opts.Logger,
	}
	if l.prefix == "" {
		l.prefix = "medrem:lock:"
	}
	if l.ttl <= 0 {
		l.ttl = DefaultTTL
	}
	if l.retry <= 0 {
		l.retry = DefaultRetry
	}
	if l.wait <= 0 {
		l.wait = DefaultWait
	}
	if l.log == nil {
		l.log = logger.NewNop()
	}
	return l
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	k := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(k, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// unlocker usa un contexto propio: el del request puede estar cancelado al liberar.
func (l *Locker) unlocker(k, token string) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := release.Run(ctx, l.rdb, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn("redis unlock failed", map[string]any{"key": k, "error": err})
		}
	}
}
