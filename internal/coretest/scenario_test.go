package coretest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/control"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver/noop"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/supervisor"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/tracker"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

const testTenant = types.TenantKey("acme")

func newWiredLoop(t *testing.T, drv driverLike, b *fakeBroker, k *fakeKeepAlive, trk *tracker.Tracker, sup *supervisor.Supervisor) *control.Loop {
	t.Helper()
	return control.New(control.Config{
		Pools:         drv,
		Queues:        b,
		KeepAlive:     k,
		Tenants:       trk,
		Supervisor:    sup,
		LoopInterval:  5 * time.Millisecond,
		CoreTimeout:   50 * time.Millisecond,
		OpTimeout:     time.Second,
		MaxErrorCount: 3,
	})
}

// TestColdStart covers scenario 1: a queue shows up with no keep-alive
// entry yet and no existing pool. The control loop should feed C4, which
// should drive C5 to create a pool.
func TestColdStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv := noop.New()
	b := newFakeBroker()
	b.seed(testTenant)
	k := newFakeKeepAlive()

	trk := tracker.New(50 * time.Millisecond)
	go trk.Run(ctx)

	sup := supervisor.New(supervisor.Config{
		Driver:        drv,
		Broker:        b,
		KeepAlive:     k,
		Tenants:       trk,
		MaxErrorCount: 3,
	})
	go sup.Run(ctx, trk.Subscribe())

	loop := newWiredLoop(t, drv, b, k, trk, sup)
	go loop.Run(ctx)

	assert.Eventually(t, func() bool {
		pools, err := drv.ListPools(ctx)
		return err == nil && len(pools) == 1 && pools[0].TenantKey == testTenant
	}, 2*time.Second, 5*time.Millisecond, "expected a pool to be created for the new queue")
}

// TestStaleTeardown covers scenario 2: a pool with a keep-alive entry older
// than CoreTimeout should be torn down by the next tick.
func TestStaleTeardown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv := noop.New()
	drv.Adopt(testTenant, "instance-1", "noop-instance-1")
	b := newFakeBroker()
	b.seed(testTenant)
	k := newFakeKeepAlive()
	k.touch(testTenant, time.Now().Add(-time.Hour))

	trk := tracker.New(50 * time.Millisecond)
	go trk.Run(ctx)

	sup := supervisor.New(supervisor.Config{
		Driver:        drv,
		Broker:        b,
		KeepAlive:     k,
		Tenants:       trk,
		MaxErrorCount: 3,
	})
	go sup.Run(ctx, trk.Subscribe())

	loop := newWiredLoop(t, drv, b, k, trk, sup)
	go loop.Run(ctx)

	assert.Eventually(t, func() bool {
		pools, err := drv.ListPools(ctx)
		return err == nil && len(pools) == 0
	}, 2*time.Second, 5*time.Millisecond, "expected the stale pool to be torn down")
}

// TestRestartAdoption covers scenario 3: a pool the driver already knows
// about (adopted across a process restart) with no keep-alive entry yet
// must be retained, not torn down, until it either gets a fresh keep-alive
// entry or goes stale.
func TestRestartAdoption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drv := noop.New()
	drv.Adopt(testTenant, "instance-1", "noop-instance-1")
	b := newFakeBroker()
	b.seed(testTenant)
	k := newFakeKeepAlive() // no entry yet

	trk := tracker.New(50 * time.Millisecond)
	go trk.Run(ctx)

	sup := supervisor.New(supervisor.Config{
		Driver:        drv,
		Broker:        b,
		KeepAlive:     k,
		Tenants:       trk,
		MaxErrorCount: 3,
	})
	go sup.Run(ctx, trk.Subscribe())

	loop := newWiredLoop(t, drv, b, k, trk, sup)
	go loop.Run(ctx)

	// Give several ticks a chance to run; the pool should survive all of
	// them since it has no stale keep-alive entry.
	time.Sleep(100 * time.Millisecond)

	pools, err := drv.ListPools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
	assert.Equal(t, testTenant, pools[0].TenantKey)
}

// TestEnsureRetriesThroughTransientDriverFailure covers scenario 4: a
// transient driver error is retried and eventually succeeds.
func TestEnsureRetriesThroughTransientDriverFailure(t *testing.T) {
	ctx := context.Background()

	inner := noop.New()
	drv := &flakyDriver{inner: inner, failuresLeft: 2}
	b := newFakeBroker()
	k := newFakeKeepAlive()

	sup := supervisor.New(supervisor.Config{
		Driver:        drv,
		Broker:        b,
		KeepAlive:     k,
		MaxErrorCount: 5,
	})

	err := sup.Ensure(ctx, testTenant)
	require.NoError(t, err)

	pools, err := inner.ListPools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
}

// TestEnsureFailsOnPermanentDriverFailure covers scenario 5: a permanent
// driver error is not retried and leaves no pool behind.
func TestEnsureFailsOnPermanentDriverFailure(t *testing.T) {
	ctx := context.Background()

	inner := noop.New()
	drv := &flakyDriver{inner: inner, failuresLeft: 1, permanent: true}
	b := newFakeBroker()
	k := newFakeKeepAlive()

	sup := supervisor.New(supervisor.Config{
		Driver:        drv,
		Broker:        b,
		KeepAlive:     k,
		MaxErrorCount: 5,
	})

	err := sup.Ensure(ctx, testTenant)
	assert.Error(t, err)

	pools, err := inner.ListPools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 0)
}
