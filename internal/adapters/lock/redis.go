package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/gemini-chat/internal/domain"
	"github.com/PabloGalante/gemini-chat/internal/observability"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes requests per session across processes sharing one Redis.
// A lock expires after ttl so a crashed holder cannot block a session forever.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	// polling delay doubles from pollMin up to pollMax while the lock is held elsewhere
	pollMin time.Duration
	pollMax time.Duration
}

var _ domain.SessionLocker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		pollMin: 10 * time.Millisecond,
		pollMax: 250 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, id domain.SessionID) (func(), error) {
	key := l.prefix + ":lock:" + string(id)
	token := uuid.NewString()

	delay := l.pollMin
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "redis lock %s", key)
		}
		if ok {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
		delay = min(delay*2, l.pollMax)
	}

	return func() {
		// release must not depend on the request context, which may already be done
		if err := releaseScript.Run(context.Background(), l.client, []string{key}, token).Err(); err != nil {
			observability.Logger().Warn("failed to release session lock", "key", key, "error", err)
		}
	}, nil
}
