// Package lease provides the per-tenant mutual exclusion the
// provisioning workflow requires: domain creation is not idempotent on
// tenant id, so two concurrent workflows for the same tenant would
// silently create two domains.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"saasid/pkg/apperr"
)

// Lease is held for the duration of one tenant lifecycle workflow.
type Lease interface {
	// Acquire takes the lease for key, failing with Conflict when another
	// workflow already holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// releaseScript deletes the lease only if still owned by this holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

type redisLease struct {
	rdb *redis.Client
}

// NewRedis returns a Redis-backed lease shared across service replicas.
func NewRedis(rdb *redis.Client) Lease { return &redisLease{rdb: rdb} }

func (l *redisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, "lease:"+key, token, ttl).Result()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "acquire tenant lease")
	}
	if !ok {
		return nil, apperr.Newf(apperr.Conflict, "workflow already in flight for %s", key)
	}
	release := func() {
		// Release must not inherit workflow cancellation.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{"lease:" + key}, token).Err()
	}
	return release, nil
}

type memoryLease struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory returns a process-local lease, used when REDIS_URL is not
// configured. Sufficient for single-replica dev deployments only.
func NewMemory() Lease { return &memoryLease{held: map[string]struct{}{}} }

func (l *memoryLease) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, apperr.Newf(apperr.Conflict, "workflow already in flight for %s", key)
	}
	l.held[key] = struct{}{}
	release := func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}
	return release, nil
}
