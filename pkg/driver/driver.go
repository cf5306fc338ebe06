// Package driver defines the polymorphic container-platform abstraction
// (C1). Concrete variants live in sibling packages (containerd, kubernetes,
// processsup, noop); this package only holds the contract every variant
// implements and is never allowed to leak runtime specifics beyond it.
package driver

import (
	"context"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// Driver is the polymorphic container-platform abstraction described in
// §4.1. Every method is fallible with a typed error from pkg/corerr
// (DriverTransient or DriverPermanent).
type Driver interface {
	// GetOrCreatePool is idempotent by tenant key: if a pool already exists
	// for that key, its existing identity is returned; otherwise one is
	// created with a freshly minted instance id. Safe to call concurrently
	// for distinct keys.
	GetOrCreatePool(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error)

	// DestroyPool is idempotent: it succeeds if nothing exists for the key.
	DestroyPool(ctx context.Context, tenantKey types.TenantKey) error

	// ListPools enumerates every pool this driver manages, scoped by the
	// variant's own namespace, labels or process map; the pool prefix is not
	// consulted.
	ListPools(ctx context.Context) ([]types.DriverMetadata, error)

	// CleanupStalled performs a best-effort removal of pools the variant
	// itself can see are dead or idle (an exited process, a stopped task, a
	// Deployment at zero replicas). Variants have no view of broker queues,
	// so it does not check whether a pool still has one. Called on a longer
	// cadence than the main reconciliation loop.
	CleanupStalled(ctx context.Context) error
}
