// Package kubernetes implements the cluster Driver variant (§4.1): one pool
// is one Deployment, deleted on destroy; tenant-key and instance-id
// travel as labels, the same tagging convention the containerd variant uses
// via OCI labels.
package kubernetes

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
	"github.com/google/uuid"
)

const (
	labelManagedBy  = "app.kubernetes.io/managed-by"
	managedByValue  = "coreloop"
	labelTenantKey  = "coreloop.osrd/tenant-key"
	labelInstanceID = "coreloop.osrd/instance-id"
)

// Config configures the kubernetes driver.
type Config struct {
	Kubeconfig string // empty = in-cluster config
	Namespace  string
	Image      string
}

// Driver implements driver.Driver against a Kubernetes apiserver.
type Driver struct {
	client    kubernetes.Interface
	namespace string
	image     string
}

// New builds a Driver, using in-cluster config when cfg.Kubeconfig is empty.
func New(cfg Config) (*Driver, error) {
	restCfg, err := loadRestConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, corerr.Wrap(corerr.DriverPermanent, "loading kubeconfig", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, corerr.Wrap(corerr.DriverPermanent, "building kubernetes clientset", err)
	}
	return &Driver{client: clientset, namespace: cfg.Namespace, image: cfg.Image}, nil
}

func loadRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// GetOrCreatePool looks up the tenant's Deployment by name
// ("pool-<tenant-key>"); if it exists (even scaled to zero), it is scaled back up and its instance id
// label is returned. Otherwise a new Deployment is created with a fresh
// instance id.
func (d *Driver) GetOrCreatePool(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error) {
	deployments := d.client.AppsV1().Deployments(d.namespace)

	existing, err := deployments.Get(ctx, deploymentName(tenantKey), metav1.GetOptions{})
	if err == nil {
		instanceID := existing.Labels[labelInstanceID]
		if existing.Spec.Replicas == nil || *existing.Spec.Replicas == 0 {
			replicas := int32(1)
			existing.Spec.Replicas = &replicas
			if _, err := deployments.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
				return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "scaling up pool deployment", err)
			}
		}
		return types.PoolIdentity{TenantKey: tenantKey, InstanceID: instanceID}, nil
	}
	if !apierrors.IsNotFound(err) {
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "getting pool deployment", err)
	}

	instanceID := uuid.NewString()
	replicas := int32(1)
	labels := map[string]string{
		labelManagedBy:  managedByValue,
		labelTenantKey:  string(tenantKey),
		labelInstanceID: instanceID,
	}
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      deploymentName(tenantKey),
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{labelTenantKey: string(tenantKey)}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "pool",
						Image: d.image,
						Env: []corev1.EnvVar{
							{Name: "POOL_TENANT_KEY", Value: string(tenantKey)},
							{Name: "POOL_INSTANCE_ID", Value: instanceID},
						},
					}},
				},
			},
		},
	}

	if _, err := deployments.Create(ctx, dep, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			// Lost a create race against another caller for this tenant;
			// re-read what won.
			existing, getErr := deployments.Get(ctx, deploymentName(tenantKey), metav1.GetOptions{})
			if getErr != nil {
				return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "re-reading pool deployment after create race", getErr)
			}
			return types.PoolIdentity{TenantKey: tenantKey, InstanceID: existing.Labels[labelInstanceID]}, nil
		}
		return types.PoolIdentity{}, corerr.Wrap(corerr.DriverTransient, "creating pool deployment", err)
	}

	return types.PoolIdentity{TenantKey: tenantKey, InstanceID: instanceID}, nil
}

// DestroyPool deletes the tenant's Deployment outright; succeeds if nothing
// exists for the key. (Scaling to zero is treated as equivalent to destroy
// per §4.1, but destroy always removes the object so stale Deployments don't
// accumulate across many tenant churn cycles.)
func (d *Driver) DestroyPool(ctx context.Context, tenantKey types.TenantKey) error {
	err := d.client.AppsV1().Deployments(d.namespace).Delete(ctx, deploymentName(tenantKey), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return corerr.Wrap(corerr.DriverTransient, "deleting pool deployment", err)
	}
	return nil
}

// ListPools enumerates every Deployment we manage, scoped by the
// managed-by label.
func (d *Driver) ListPools(ctx context.Context) ([]types.DriverMetadata, error) {
	list, err := d.client.AppsV1().Deployments(d.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelManagedBy + "=" + managedByValue,
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.DriverTransient, "listing pool deployments", err)
	}

	out := make([]types.DriverMetadata, 0, len(list.Items))
	for _, dep := range list.Items {
		tenantKey, ok := dep.Labels[labelTenantKey]
		if !ok {
			continue
		}
		out = append(out, types.DriverMetadata{
			Handle:     dep.Name,
			TenantKey:  types.TenantKey(tenantKey),
			InstanceID: dep.Labels[labelInstanceID],
			Labels:     dep.Labels,
		})
	}
	return out, nil
}

// CleanupStalled deletes every Deployment we manage that is currently
// scaled to zero replicas. Pod status and how long a Deployment has been at
// zero are not checked; the control loop's per-tick teardown remains the
// primary reaper.
func (d *Driver) CleanupStalled(ctx context.Context) error {
	pools, err := d.ListPools(ctx)
	if err != nil {
		return err
	}
	deployments := d.client.AppsV1().Deployments(d.namespace)
	for _, p := range pools {
		dep, err := deployments.Get(ctx, p.Handle, metav1.GetOptions{})
		if err != nil {
			continue
		}
		if dep.Spec.Replicas != nil && *dep.Spec.Replicas == 0 {
			_ = deployments.Delete(ctx, dep.Name, metav1.DeleteOptions{})
		}
	}
	return nil
}

func deploymentName(tenantKey types.TenantKey) string {
	return fmt.Sprintf("pool-%s", tenantKey)
}
