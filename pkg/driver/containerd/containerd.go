// Package containerd implements the container-runtime Driver variant
// (§4.1): one pool is one container, identified by an OCI label carrying
// tenant-key and instance-id instead of Warren's node/service labels.
// Adapted from the teacher's pkg/runtime/containerd.go: get_or_create_pool
// is "look up by label, else start".
package containerd

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

const (
	labelTenantKey  = "coreloop.osrd/tenant-key"
	labelInstanceID = "coreloop.osrd/instance-id"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// Config configures the containerd driver.
type Config struct {
	SocketPath string
	Namespace  string
	Image      string
}

// Driver implements driver.Driver against a containerd daemon.
type Driver struct {
	client    *containerd.Client
	namespace string
	image     string

	// create/create races are serialized per the teacher's concurrency
	// notes for drivers that look up by label before creating.
	mu sync.Mutex
}

// New connects to containerd and returns a Driver.
func New(cfg Config) (*Driver, error) {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, corerr.Wrap(corerr.DriverPermanent, "connecting to containerd", err)
	}
	return &Driver{
		client:    client,
		namespace: cfg.Namespace,
		image:     cfg.Image,
	}, nil
}

// Close closes the containerd client connection.
func (d *Driver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func (d *Driver) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, d.namespace)
}

// GetOrCreatePool looks up an existing container labeled with tenantKey; if
// found, its instance id label is returned. Otherwise a new container is
// created and started with a fresh instance id.
func (d *Driver) GetOrCreatePool(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx = d.ctx(ctx)

	if meta, ok, err := d.findByTenant(ctx, tenantKey); err != nil {
		return types.PoolIdentity{}, err
	} else if ok {
		return types.PoolIdentity{TenantKey: tenantKey, InstanceID: meta.InstanceID}, nil
	}

	instanceID := uuid.NewString()
	image, err := d.client.GetImage(ctx, d.image)
	if err != nil {
		image, err = d.client.Pull(ctx, d.image, containerd.WithPullUnpack)
		if err != nil {
			return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, fmt.Sprintf("pulling image %s", d.image), err)
		}
	}

	containerID := containerName(tenantKey)
	ctrdContainer, err := d.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithEnv([]string{
				"POOL_TENANT_KEY=" + string(tenantKey),
				"POOL_INSTANCE_ID=" + instanceID,
			}),
		),
		containerd.WithContainerLabels(map[string]string{
			labelTenantKey:  string(tenantKey),
			labelInstanceID: instanceID,
		}),
	)
	if err != nil {
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "creating pool container", err)
	}

	task, err := ctrdContainer.NewTask(ctx, nil)
	if err != nil {
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "creating pool task", err)
	}
	if err := task.Start(ctx); err != nil {
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "starting pool task", err)
	}

	return types.PoolIdentity{TenantKey: tenantKey, InstanceID: instanceID}, nil
}

// DestroyPool stops and removes the tenant's container; it succeeds if
// nothing exists for the key.
func (d *Driver) DestroyPool(ctx context.Context, tenantKey types.TenantKey) error {
	ctx = d.ctx(ctx)

	meta, ok, err := d.findByTenant(ctx, tenantKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	c, err := d.client.LoadContainer(ctx, meta.Handle)
	if err != nil {
		return nil // already gone
	}
	if task, err := c.Task(ctx, nil); err == nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
	}
	if err := c.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return corerr.Wrap(corerr.DriverTransient, "deleting pool container", err)
	}
	return nil
}

// ListPools enumerates every container in the driver's namespace carrying
// the tenant label; the instance id is read from the instance label and is
// empty when that label is missing.
func (d *Driver) ListPools(ctx context.Context) ([]types.DriverMetadata, error) {
	ctx = d.ctx(ctx)

	containers, err := d.client.Containers(ctx)
	if err != nil {
		return nil, corerr.Wrap(corerr.DriverTransient, "listing containers", err)
	}

	out := make([]types.DriverMetadata, 0, len(containers))
	for _, c := range containers {
		labels, err := c.Labels(ctx)
		if err != nil {
			continue
		}
		tenantKey, ok := labels[labelTenantKey]
		if !ok {
			continue // not ours
		}
		out = append(out, types.DriverMetadata{
			Handle:     c.ID(),
			TenantKey:  types.TenantKey(tenantKey),
			InstanceID: labels[labelInstanceID],
			Labels:     labels,
		})
	}
	return out, nil
}

// CleanupStalled removes containers carrying our labels whose task has
// stopped. Whether a container still has a matching broker queue is not
// checked: this only catches containers that died without anyone noticing,
// while the control loop tears down pools (through the pool supervisor) only
// when their keep-alive entry is stale.
func (d *Driver) CleanupStalled(ctx context.Context) error {
	ctx = d.ctx(ctx)

	pools, err := d.ListPools(ctx)
	if err != nil {
		return err
	}
	for _, p := range pools {
		c, err := d.client.LoadContainer(ctx, p.Handle)
		if err != nil {
			continue
		}
		task, err := c.Task(ctx, nil)
		if err != nil {
			continue // no task: nothing running, leave for control loop
		}
		status, err := task.Status(ctx)
		if err != nil {
			continue
		}
		if status.Status == containerd.Stopped {
			_, _ = task.Delete(ctx, containerd.WithProcessKill)
			_ = c.Delete(ctx, containerd.WithSnapshotCleanup)
		}
	}
	return nil
}

func (d *Driver) findByTenant(ctx context.Context, tenantKey types.TenantKey) (types.DriverMetadata, bool, error) {
	pools, err := d.ListPools(ctx)
	if err != nil {
		return types.DriverMetadata{}, false, err
	}
	for _, p := range pools {
		if p.TenantKey == tenantKey {
			return p, true, nil
		}
	}
	return types.DriverMetadata{}, false, nil
}

func containerName(tenantKey types.TenantKey) string {
	return "pool-" + string(tenantKey)
}
