package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held by another instance")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lease is a best-effort exclusive lock in Redis with a TTL. It only avoids
// duplicate work; it is never relied upon for correctness.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLease takes key for ttl or returns ErrLeaseHeld.
func AcquireLease(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{client: client, key: key, token: token, ttl: ttl}, nil
}

// Extend pushes the expiry out by the original TTL if the lease is still ours.
func (l *Lease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// Release drops the lease if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Key returns the Redis key of the lease.
func (l *Lease) Key() string {
	return l.key
}
