// Package processsup implements the process-supervisor Driver variant
// (§4.1): one pool is one OS process managed by an external supervisor
// (e.g. systemd, runit) that cannot tag processes individually. The driver
// keeps its own in-memory PID -> (tenant-key, instance-id) map and writes a
// side-channel file just before spawning so the new process can read its own
// identity. Restart of this process loses the map: processes spawned by an
// earlier run are neither adopted nor listed, so a new spawn for the same
// tenant runs beside the old one and the stale-pool path never sees the old
// one.
//
// No third-party library fits this: it is a thin wrapper over os/exec and
// plain files, the same surface the teacher's pkg/embedded uses for its
// Lima/containerd process bootstrap (see DESIGN.md).
package processsup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// Config configures the process-supervisor driver.
type Config struct {
	BinaryPath string
	Args       []string
	StateDir   string // holds one side-channel file per spawned process
}

type entry struct {
	pid        int
	tenantKey  types.TenantKey
	instanceID string
}

// Driver implements driver.Driver by spawning and tracking plain OS
// processes.
type Driver struct {
	cfg Config

	// mu serializes spawns: side-channel files are a shared resource (the
	// next spawn's file must not be written while a concurrent spawn's
	// child is still reading its own), and guards the process map.
	mu        sync.Mutex
	processes map[types.TenantKey]*entry
}

// New returns a Driver with an empty process map (nothing is adopted from a
// prior run).
func New(cfg Config) (*Driver, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, corerr.Wrap(corerr.DriverPermanent, "creating process-supervisor state dir", err)
	}
	return &Driver{cfg: cfg, processes: make(map[types.TenantKey]*entry)}, nil
}

// GetOrCreatePool returns the tracked process for tenantKey if this driver
// instance spawned it and it is still alive; otherwise it writes the
// side-channel file and spawns a new process.
func (d *Driver) GetOrCreatePool(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.processes[tenantKey]; ok && processAlive(e.pid) {
		return types.PoolIdentity{TenantKey: tenantKey, InstanceID: e.instanceID}, nil
	}

	instanceID := uuid.NewString()
	sideChannel := filepath.Join(d.cfg.StateDir, string(tenantKey)+".env")
	contents := fmt.Sprintf("POOL_TENANT_KEY=%s\nPOOL_INSTANCE_ID=%s\n", tenantKey, instanceID)
	if err := os.WriteFile(sideChannel, []byte(contents), 0o600); err != nil {
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "writing side-channel file", err)
	}

	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, d.cfg.Args...)
	cmd.Env = append(os.Environ(), "POOL_SIDE_CHANNEL="+sideChannel)
	if err := cmd.Start(); err != nil {
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "spawning pool process", err)
	}

	// Reap the process asynchronously so it doesn't become a zombie; the
	// supervisor itself is responsible for restart policy, not us.
	go func() { _ = cmd.Wait() }()

	d.processes[tenantKey] = &entry{pid: cmd.Process.Pid, tenantKey: tenantKey, instanceID: instanceID}
	return types.PoolIdentity{TenantKey: tenantKey, InstanceID: instanceID}, nil
}

// DestroyPool signals and forgets the tenant's process; succeeds if nothing
// is tracked for the key.
func (d *Driver) DestroyPool(_ context.Context, tenantKey types.TenantKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.processes[tenantKey]
	if !ok {
		return nil
	}
	if proc, err := os.FindProcess(e.pid); err == nil {
		_ = proc.Kill()
	}
	delete(d.processes, tenantKey)
	_ = os.Remove(filepath.Join(d.cfg.StateDir, string(tenantKey)+".env"))
	return nil
}

// ListPools returns every process this driver instance has spawned and
// still believes is alive. Processes adopted by a prior instance of this
// driver are not visible here: the in-memory map does not survive restart
// (accepted, §4.1/§9).
func (d *Driver) ListPools(_ context.Context) ([]types.DriverMetadata, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.DriverMetadata, 0, len(d.processes))
	for tenantKey, e := range d.processes {
		if !processAlive(e.pid) {
			continue
		}
		out = append(out, types.DriverMetadata{
			Handle:     strconv.Itoa(e.pid),
			TenantKey:  tenantKey,
			InstanceID: e.instanceID,
			Labels:     map[string]string{"pid": strconv.Itoa(e.pid)},
		})
	}
	return out, nil
}

// CleanupStalled drops tracked entries whose process has already exited.
func (d *Driver) CleanupStalled(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for tenantKey, e := range d.processes {
		if !processAlive(e.pid) {
			delete(d.processes, tenantKey)
			_ = os.Remove(filepath.Join(d.cfg.StateDir, string(tenantKey)+".env"))
		}
	}
	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks for existence without actually signaling, the
	// standard liveness probe for a tracked PID on POSIX systems.
	return proc.Signal(syscall.Signal(0)) == nil
}
