// Package noop implements a Driver entirely in memory: it mints synthetic
// instance ids and tracks pool state in a map, with no external side
// effects. Used by the control-loop, supervisor, and scenario tests (§8)
// that exercise reconciliation logic without a real container platform.
package noop

import (
	"context"
	"sync"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
	"github.com/google/uuid"
)

// Driver is a Driver that only tracks state in memory.
type Driver struct {
	mu    sync.Mutex
	pools map[types.TenantKey]types.DriverMetadata
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{pools: make(map[types.TenantKey]types.DriverMetadata)}
}

func (d *Driver) GetOrCreatePool(_ context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.pools[tenantKey]; ok {
		return types.PoolIdentity{TenantKey: tenantKey, InstanceID: existing.InstanceID}, nil
	}

	instanceID := uuid.NewString()
	d.pools[tenantKey] = types.DriverMetadata{
		Handle:     "noop-" + instanceID,
		TenantKey:  tenantKey,
		InstanceID: instanceID,
		Labels:     map[string]string{"tenant_key": string(tenantKey), "instance_id": instanceID},
	}
	return types.PoolIdentity{TenantKey: tenantKey, InstanceID: instanceID}, nil
}

func (d *Driver) DestroyPool(_ context.Context, tenantKey types.TenantKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pools, tenantKey)
	return nil
}

func (d *Driver) ListPools(_ context.Context) ([]types.DriverMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.DriverMetadata, 0, len(d.pools))
	for _, m := range d.pools {
		out = append(out, m)
	}
	return out, nil
}

func (d *Driver) CleanupStalled(_ context.Context) error {
	// Nothing leaks in memory beyond what ListPools already reports.
	return nil
}

// Adopt seeds the driver with a pre-existing pool, used by tests that model
// restart adoption (§8 scenario 3) without a real driver backing it.
func (d *Driver) Adopt(tenantKey types.TenantKey, instanceID, handle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pools[tenantKey] = types.DriverMetadata{
		Handle:     handle,
		TenantKey:  tenantKey,
		InstanceID: instanceID,
		Labels:     map[string]string{"tenant_key": string(tenantKey), "instance_id": instanceID},
	}
}
