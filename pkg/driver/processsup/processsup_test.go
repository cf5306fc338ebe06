package processsup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

func newTestDriver(t *testing.T, binary string, args ...string) *Driver {
	t.Helper()
	d, err := New(Config{BinaryPath: binary, Args: args, StateDir: t.TempDir()})
	require.NoError(t, err)
	return d
}

func TestGetOrCreatePoolSpawnsAndReuses(t *testing.T) {
	d := newTestDriver(t, "sleep", "5")
	ctx := context.Background()

	first, err := d.GetOrCreatePool(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, types.TenantKey("acme"), first.TenantKey)
	assert.NotEmpty(t, first.InstanceID)

	second, err := d.GetOrCreatePool(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, first.InstanceID, second.InstanceID, "a live process should be reused, not respawned")

	require.NoError(t, d.DestroyPool(ctx, "acme"))
}

func TestGetOrCreatePoolWritesSideChannelFile(t *testing.T) {
	d := newTestDriver(t, "sleep", "5")
	ctx := context.Background()

	_, err := d.GetOrCreatePool(ctx, "acme")
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(d.cfg.StateDir, "acme.env"))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "POOL_TENANT_KEY=acme")
	assert.Contains(t, string(contents), "POOL_INSTANCE_ID=")

	require.NoError(t, d.DestroyPool(ctx, "acme"))
}

func TestDestroyPoolKillsProcessAndRemovesSideChannel(t *testing.T) {
	d := newTestDriver(t, "sleep", "30")
	ctx := context.Background()

	identity, err := d.GetOrCreatePool(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, d.DestroyPool(ctx, "acme"))

	pools, err := d.ListPools(ctx)
	require.NoError(t, err)
	assert.Empty(t, pools)

	_, statErr := os.Stat(filepath.Join(d.cfg.StateDir, "acme.env"))
	assert.True(t, os.IsNotExist(statErr))

	_ = identity
}

func TestDestroyPoolOnUntrackedTenantIsNoop(t *testing.T) {
	d := newTestDriver(t, "sleep", "5")
	assert.NoError(t, d.DestroyPool(context.Background(), "never-spawned"))
}

func TestCleanupStalledDropsExitedProcesses(t *testing.T) {
	d := newTestDriver(t, "true")
	ctx := context.Background()

	_, err := d.GetOrCreatePool(ctx, "acme")
	require.NoError(t, err)

	// "true" exits almost immediately; give the async Wait a moment to reap it.
	assert.Eventually(t, func() bool {
		require.NoError(t, d.CleanupStalled(ctx))
		pools, err := d.ListPools(ctx)
		require.NoError(t, err)
		return len(pools) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestListPoolsOmitsDeadProcesses(t *testing.T) {
	d := newTestDriver(t, "true")
	ctx := context.Background()

	_, err := d.GetOrCreatePool(ctx, "acme")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		pools, err := d.ListPools(ctx)
		require.NoError(t, err)
		return len(pools) == 0
	}, time.Second, 10*time.Millisecond)
}
