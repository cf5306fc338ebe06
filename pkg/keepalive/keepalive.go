// Package keepalive implements C3, the keep-alive register: a Redis-backed
// TTL store mapping tenant key -> last-seen Unix timestamp. Workers write
// entries on every successfully handled message (out of scope to enforce
// here); this package only implements the read/delete side the core
// consumes, per §4.3 and §6.
package keepalive

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// Register is the C3 collaborator used by the control loop.
type Register struct {
	client *redis.Client
	prefix string
}

// New builds a Register from a redis connection URI (e.g.
// "redis://localhost:6379/0") and the configured key-namespace prefix.
func New(uri, prefix string) (*Register, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, corerr.Wrap(corerr.ConfigInvalid, "parsing keep-alive uri", err)
	}
	return &Register{client: redis.NewClient(opts), prefix: prefix}, nil
}

// Close releases the underlying connection pool.
func (r *Register) Close() error {
	return r.client.Close()
}

func (r *Register) key(tenantKey types.TenantKey) string {
	return fmt.Sprintf("%s/%s", r.prefix, tenantKey)
}

// Read returns the tenant's last-seen time and whether an entry exists at
// all. Absence means the tenant has not been active since start or since
// its last purge.
func (r *Register) Read(ctx context.Context, tenantKey types.TenantKey) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, r.key(tenantKey)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, corerr.Wrap(corerr.KeepAliveUnavailable, "reading keep-alive entry", err)
	}

	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, corerr.Wrap(corerr.KeepAliveUnavailable, "parsing keep-alive timestamp", err)
	}
	return time.Unix(secs, 0), true, nil
}

// Delete removes the tenant's entry; it is a no-op if none exists.
func (r *Register) Delete(ctx context.Context, tenantKey types.TenantKey) error {
	if err := r.client.Del(ctx, r.key(tenantKey)).Err(); err != nil {
		return corerr.Wrap(corerr.KeepAliveUnavailable, "deleting keep-alive entry", err)
	}
	return nil
}

// IsStale reports whether a tenant's last-seen time is older than timeout,
// relative to now.
func IsStale(lastSeen time.Time, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastSeen) > timeout
}
