// Package coretest exercises C1-C6 together (noop driver, in-memory broker
// and keep-alive fakes) end to end, without a real AMQP broker or container
// platform. The reconnect supervisor (C7) is excluded: pkg/reconnect's own
// tests cover its backoff schedule and two-phase shutdown; its dial and
// NotifyClose handling need a real AMQP connection and are not tested.
package coretest

import (
	"context"
	"sync"
	"time"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// fakeBroker is an in-memory stand-in for C2, backing both the control
// loop's QueueLister and the supervisor's QueueClient.
type fakeBroker struct {
	mu     sync.Mutex
	queues map[types.TenantKey]bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: make(map[types.TenantKey]bool)}
}

func (b *fakeBroker) seed(tenantKey types.TenantKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[tenantKey] = true
}

func (b *fakeBroker) ListPoolQueues(_ context.Context) ([]types.QueueRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.QueueRecord, 0, len(b.queues))
	for k := range b.queues {
		out = append(out, types.QueueRecord{TenantKey: k, QueueName: "pool-" + string(k)})
	}
	return out, nil
}

func (b *fakeBroker) DeclareRequestQueue(_ context.Context, tenantKey types.TenantKey, _ types.QueuePolicy) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[tenantKey] = true
	return nil
}

func (b *fakeBroker) DeleteQueue(_ context.Context, tenantKey types.TenantKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, tenantKey)
	return nil
}

// fakeKeepAlive is an in-memory stand-in for C3.
type fakeKeepAlive struct {
	mu      sync.Mutex
	entries map[types.TenantKey]time.Time
}

func newFakeKeepAlive() *fakeKeepAlive {
	return &fakeKeepAlive{entries: make(map[types.TenantKey]time.Time)}
}

func (k *fakeKeepAlive) touch(tenantKey types.TenantKey, at time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[tenantKey] = at
}

func (k *fakeKeepAlive) Read(_ context.Context, tenantKey types.TenantKey) (time.Time, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.entries[tenantKey]
	return t, ok, nil
}

func (k *fakeKeepAlive) Delete(_ context.Context, tenantKey types.TenantKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, tenantKey)
	return nil
}

// flakyDriver wraps another Driver and fails GetOrCreatePool a fixed number
// of times before delegating, modeling a transient outage (§8 scenario 4).
type flakyDriver struct {
	inner        driverLike
	failuresLeft int
	permanent    bool
}

type driverLike interface {
	GetOrCreatePool(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error)
	DestroyPool(ctx context.Context, tenantKey types.TenantKey) error
	ListPools(ctx context.Context) ([]types.DriverMetadata, error)
	CleanupStalled(ctx context.Context) error
}

func (f *flakyDriver) GetOrCreatePool(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		if f.permanent {
			return types.PoolIdentity{}, corerr.New(corerr.DriverPermanent, "simulated permanent driver failure")
		}
		return types.PoolIdentity{}, corerr.New(corerr.DriverTransient, "simulated transient driver failure")
	}
	return f.inner.GetOrCreatePool(ctx, tenantKey)
}

func (f *flakyDriver) DestroyPool(ctx context.Context, tenantKey types.TenantKey) error {
	return f.inner.DestroyPool(ctx, tenantKey)
}

func (f *flakyDriver) ListPools(ctx context.Context) ([]types.DriverMetadata, error) {
	return f.inner.ListPools(ctx)
}

func (f *flakyDriver) CleanupStalled(ctx context.Context) error {
	return f.inner.CleanupStalled(ctx)
}
