package attest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard serialises commits for one target so a retried request cannot submit a second
// transaction while the first is in flight.
type Guard interface {
	// Acquire returns ok=false when another holder owns key. release must be called
	// when ok is true.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type memHold struct {
	token   string
	expires time.Time
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu    sync.Mutex
	held  map[string]memHold
	nowFn func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]memHold), nowFn: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFn()
	if h, ok := g.held[key]; ok && now.Before(h.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	g.held[key] = memHold{token: token, expires: now.Add(ttl)}
	return func() {
		g.mu.Lock()
		// a holder whose ttl lapsed must not release its successor
		if h, ok := g.held[key]; ok && h.token == token {
			delete(g.held, key)
		}
		g.mu.Unlock()
	}, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisGuard shares in-flight markers across instances with SET NX.
type RedisGuard struct {
	rc *redis.Client
}

func NewRedisGuard(rc *redis.Client) *RedisGuard {
	return &RedisGuard{rc: rc}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := g.rc.SetNX(ctx, "attest:inflight:"+key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// the request context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.rc, []string{"attest:inflight:" + key}, token).Err()
	}, true, nil
}
