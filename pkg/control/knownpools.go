package control

import (
	"sync/atomic"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// KnownPools is the read-copy-update container C6 publishes into on every
// tick (§5: "writer-wins semantics, no reader locks"). Readers either see
// the pre-tick snapshot or the post-tick one, never a partially-built one
// (invariant P7).
type KnownPools struct {
	ptr atomic.Pointer[[]types.DriverMetadata]
}

// NewKnownPools returns an empty, ready-to-read container.
func NewKnownPools() *KnownPools {
	kp := &KnownPools{}
	empty := []types.DriverMetadata{}
	kp.ptr.Store(&empty)
	return kp
}

// Store atomically replaces the published snapshot.
func (kp *KnownPools) Store(pools []types.DriverMetadata) {
	snapshot := make([]types.DriverMetadata, len(pools))
	copy(snapshot, pools)
	kp.ptr.Store(&snapshot)
}

// Load returns the most recently published snapshot. Safe for concurrent
// use; never blocks on a concurrent Store.
func (kp *KnownPools) Load() []types.DriverMetadata {
	return *kp.ptr.Load()
}
