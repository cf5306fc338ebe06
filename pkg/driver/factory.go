package driver

import (
	"github.com/OpenRailAssociation/osrd-sub002/pkg/config"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver/containerd"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver/kubernetes"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver/noop"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver/processsup"
)

// New builds the Driver selected by cfg.Driver.
func New(cfg *config.Config) (Driver, error) {
	switch cfg.Driver {
	case config.DriverDocker:
		return containerd.New(containerd.Config{
			SocketPath: cfg.Docker.SocketPath,
			Namespace:  cfg.Docker.Namespace,
			Image:      cfg.Docker.Image,
		})
	case config.DriverKubernetes:
		return kubernetes.New(kubernetes.Config{
			Kubeconfig: cfg.Kubernetes.Kubeconfig,
			Namespace:  cfg.Kubernetes.Namespace,
			Image:      cfg.Kubernetes.Image,
		})
	case config.DriverProcessSupervisor:
		return processsup.New(processsup.Config{
			BinaryPath: cfg.ProcessSupervisor.BinaryPath,
			Args:       cfg.ProcessSupervisor.Args,
			StateDir:   cfg.ProcessSupervisor.StateDir,
		})
	case config.DriverNoop:
		return noop.New(), nil
	default:
		return nil, corerr.New(corerr.ConfigInvalid, "unknown driver kind "+string(cfg.Driver))
	}
}
