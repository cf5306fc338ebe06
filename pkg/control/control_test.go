package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

type fakePools struct {
	pools        []types.DriverMetadata
	listErr      error
	cleanupCalls int
}

func (f *fakePools) ListPools(context.Context) ([]types.DriverMetadata, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pools, nil
}

func (f *fakePools) CleanupStalled(context.Context) error {
	f.cleanupCalls++
	return nil
}

type fakeQueues struct {
	queues []types.QueueRecord
}

func (f *fakeQueues) ListPoolQueues(context.Context) ([]types.QueueRecord, error) {
	return f.queues, nil
}

type fakeKeepAlive struct {
	lastSeen map[types.TenantKey]time.Time
}

func (f *fakeKeepAlive) Read(_ context.Context, tenantKey types.TenantKey) (time.Time, bool, error) {
	t, ok := f.lastSeen[tenantKey]
	return t, ok, nil
}

type fakeTeardowner struct {
	torndown []types.TenantKey
}

func (f *fakeTeardowner) Teardown(_ context.Context, tenantKey types.TenantKey) error {
	f.torndown = append(f.torndown, tenantKey)
	return nil
}

type fakeObserver struct {
	observed []types.TenantKey
	removed  []types.TenantKey
}

func (f *fakeObserver) ObserveQueue(tenantKey types.TenantKey) {
	f.observed = append(f.observed, tenantKey)
}

func (f *fakeObserver) ConfirmRemoval(tenantKey types.TenantKey) {
	f.removed = append(f.removed, tenantKey)
}

func newTestLoop(pools *fakePools, queues *fakeQueues, ka *fakeKeepAlive, td *fakeTeardowner, obs *fakeObserver) *Loop {
	return New(Config{
		Pools:         pools,
		Queues:        queues,
		KeepAlive:     ka,
		Tenants:       obs,
		Supervisor:    td,
		LoopInterval:  time.Second,
		CoreTimeout:   time.Minute,
		OpTimeout:     5 * time.Second,
		MaxErrorCount: 3,
	})
}

func TestTickRetainsFreshPoolAndFeedsNewQueue(t *testing.T) {
	pools := &fakePools{pools: []types.DriverMetadata{{TenantKey: "t1"}}}
	queues := &fakeQueues{queues: []types.QueueRecord{{TenantKey: "t1"}, {TenantKey: "t2"}}}
	ka := &fakeKeepAlive{lastSeen: map[types.TenantKey]time.Time{"t1": time.Now()}}
	td := &fakeTeardowner{}
	obs := &fakeObserver{}

	l := newTestLoop(pools, queues, ka, td, obs)
	l.tick(context.Background())

	assert.Empty(t, td.torndown)
	assert.Equal(t, []types.TenantKey{"t2"}, obs.observed)
	assert.Len(t, l.KnownPools().Load(), 1)
}

func TestTickTearsDownStalePool(t *testing.T) {
	pools := &fakePools{pools: []types.DriverMetadata{{TenantKey: "t1"}}}
	queues := &fakeQueues{}
	ka := &fakeKeepAlive{lastSeen: map[types.TenantKey]time.Time{"t1": time.Now().Add(-2 * time.Minute)}}
	td := &fakeTeardowner{}
	obs := &fakeObserver{}

	l := newTestLoop(pools, queues, ka, td, obs)
	l.tick(context.Background())

	assert.Equal(t, []types.TenantKey{"t1"}, td.torndown)
	assert.Equal(t, []types.TenantKey{"t1"}, obs.removed)
	assert.Empty(t, l.KnownPools().Load())
}

func TestTickRetainsPoolWithNoKeepAliveEntryYet(t *testing.T) {
	pools := &fakePools{pools: []types.DriverMetadata{{TenantKey: "t1"}}}
	queues := &fakeQueues{}
	ka := &fakeKeepAlive{lastSeen: map[types.TenantKey]time.Time{}}
	td := &fakeTeardowner{}
	obs := &fakeObserver{}

	l := newTestLoop(pools, queues, ka, td, obs)
	l.tick(context.Background())

	assert.Empty(t, td.torndown)
	assert.Len(t, l.KnownPools().Load(), 1)
}

func TestListPoolsFailureSkipsRestOfTick(t *testing.T) {
	pools := &fakePools{listErr: errors.New("boom")}
	queues := &fakeQueues{queues: []types.QueueRecord{{TenantKey: "t1"}}}
	ka := &fakeKeepAlive{}
	td := &fakeTeardowner{}
	obs := &fakeObserver{}

	l := newTestLoop(pools, queues, ka, td, obs)
	l.tick(context.Background())

	assert.Empty(t, obs.observed)
}

func TestFatalAfterMaxConsecutiveFailures(t *testing.T) {
	pools := &fakePools{listErr: errors.New("boom")}
	l := newTestLoop(pools, &fakeQueues{}, &fakeKeepAlive{}, &fakeTeardowner{}, &fakeObserver{})

	for i := 0; i < 3; i++ {
		l.tick(context.Background())
	}

	select {
	case <-l.Fatal():
	default:
		t.Fatal("expected Fatal channel closed after 3 consecutive failed ticks")
	}
}

func TestCleanupRunsIndependentlyOfTick(t *testing.T) {
	pools := &fakePools{}
	l := newTestLoop(pools, &fakeQueues{}, &fakeKeepAlive{}, &fakeTeardowner{}, &fakeObserver{})

	l.runCleanup(context.Background())

	require.Equal(t, 1, pools.cleanupCalls)
}
