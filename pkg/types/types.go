// Package types defines the data model shared by every component of the
// reconciliation core: tenant identity, pool records, queue records, and the
// driver-facing metadata used to reconcile observed state against desired
// state.
package types

import "time"

// TenantKey is an opaque, printable identifier recovered from a broker queue
// name (the suffix after "<pool-prefix>-"). Keys are compared by byte
// equality.
type TenantKey string

// PoolIdentity is the tuple returned by a driver's get_or_create_pool: the
// tenant the pool belongs to, and a fresh instance id minted the first time
// the pool was created. Recreating a pool for the same tenant yields a new
// InstanceID, which lets the control loop tell a recreated pool apart from
// the one it replaced.
type PoolIdentity struct {
	TenantKey  TenantKey
	InstanceID string
}

// PoolRecord is the Pool Supervisor's per-tenant bookkeeping: one record
// exists per live tenant (invariant I1).
type PoolRecord struct {
	TenantKey    TenantKey
	InstanceID   string
	CreatedAt    time.Time
	Handle       string // driver-opaque: container id, deployment name, PID, ...
	Status       PoolStatus
	RetryCount   int
}

// PoolStatus is the last driver-observed status of a pool.
type PoolStatus string

const (
	PoolStatusNew        PoolStatus = "new"
	PoolStatusQueueReady PoolStatus = "queue-ready"
	PoolStatusRunning    PoolStatus = "running"
	PoolStatusStopping   PoolStatus = "stopping"
	PoolStatusDone       PoolStatus = "done"
	PoolStatusFailed     PoolStatus = "failed"
)

// QueueRecord is transient, rebuilt every reconciliation tick: one broker
// queue matching the configured pool prefix.
type QueueRecord struct {
	TenantKey TenantKey
	QueueName string
}

// KeepAliveEntry is the external, TTL-backed liveness record a worker writes
// on every successfully handled message.
type KeepAliveEntry struct {
	TenantKey TenantKey
	LastSeen  time.Time
}

// DriverMetadata is what a driver's list_pools returns for one pool it
// manages: enough to re-adopt the pool across a process restart (invariant
// I4) without spawning a duplicate.
type DriverMetadata struct {
	Handle     string
	TenantKey  TenantKey
	InstanceID string
	Labels     map[string]string
}

// QueuePolicy carries the optional broker policy applied when a tenant's
// queue is declared (§6: default-message-ttl, max-length, max-length-bytes).
type QueuePolicy struct {
	MessageTTL     time.Duration // 0 = unset
	MaxLength      int64         // 0 = unset
	MaxLengthBytes int64         // 0 = unset
}
