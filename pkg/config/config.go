// Package config loads the reconciliation core's configuration from the
// environment, using the same struct-tag-driven approach as the rest of the
// corpus: github.com/caarlos0/env decodes env vars into a typed Config, with
// defaults and a validation pass that turns misconfiguration into a
// corerr.ConfigInvalid error at startup.
package config

import (
	"fmt"
	"time"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
	"github.com/caarlos0/env/v11"
)

// DriverKind selects which Driver implementation the core drives.
type DriverKind string

const (
	DriverDocker            DriverKind = "docker"
	DriverKubernetes        DriverKind = "kubernetes"
	DriverProcessSupervisor DriverKind = "process-supervisor"
	DriverNoop              DriverKind = "noop"
)

// Config holds every recognized option from §6.
type Config struct {
	// Identity / scope
	PoolPrefix string `env:"POOL_PREFIX,required"`

	// Broker (C2)
	AMQPURI        string `env:"AMQP_URI,required"`
	ManagementPort int    `env:"AMQP_MANAGEMENT_PORT" envDefault:"15672"`

	// Keep-alive register (C3)
	KeepAliveURI    string `env:"KEEP_ALIVE_URI,required"`
	KeepAlivePrefix string `env:"KEEP_ALIVE_PREFIX" envDefault:"pool"`

	// Timers
	CoreTimeout   time.Duration `env:"CORE_TIMEOUT" envDefault:"5m"`
	LoopInterval  time.Duration `env:"LOOP_INTERVAL" envDefault:"10s"`
	ExtraLifetime time.Duration `env:"EXTRA_LIFETIME" envDefault:"30s"`

	// Retry / fatal threshold (C5)
	MaxErrorCount int `env:"MAX_ERROR_COUNT" envDefault:"3"`

	// Broker queue policy applied on declare (optional, zero = unset)
	DefaultMessageTTL time.Duration `env:"DEFAULT_MESSAGE_TTL"`
	MaxLength         int64         `env:"MAX_LENGTH"`
	MaxLengthBytes    int64         `env:"MAX_LENGTH_BYTES"`

	// Driver selection
	Driver DriverKind `env:"DRIVER" envDefault:"noop"`

	Docker            DockerConfig
	Kubernetes        KubernetesConfig
	ProcessSupervisor ProcessSupervisorConfig

	// Per-operation timeout bound, applied to every broker/driver/keep-alive
	// call (§5: "not tied to the loop interval").
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"15s"`

	// Graceful shutdown budget (§4.7).
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`
}

// DockerConfig configures the container-runtime driver variant.
type DockerConfig struct {
	SocketPath string `env:"DOCKER_SOCKET_PATH" envDefault:"/run/containerd/containerd.sock"`
	Namespace  string `env:"DOCKER_NAMESPACE" envDefault:"pool-core"`
	Image      string `env:"DOCKER_POOL_IMAGE"`
}

// KubernetesConfig configures the cluster driver variant.
type KubernetesConfig struct {
	Kubeconfig string `env:"KUBERNETES_KUBECONFIG"` // empty = in-cluster config
	Namespace  string `env:"KUBERNETES_NAMESPACE" envDefault:"pool-core"`
	Image      string `env:"KUBERNETES_POOL_IMAGE"`
}

// ProcessSupervisorConfig configures the process-supervisor driver variant.
type ProcessSupervisorConfig struct {
	BinaryPath string `env:"PROCESS_SUPERVISOR_BINARY"`
	Args       []string `env:"PROCESS_SUPERVISOR_ARGS" envSeparator:","`
	StateDir   string `env:"PROCESS_SUPERVISOR_STATE_DIR" envDefault:"/var/run/pool-core"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, corerr.Wrap(corerr.ConfigInvalid, "parsing config from env", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the cross-field checks the distilled options alone don't
// capture.
func (c *Config) Validate() error {
	if c.PoolPrefix == "" {
		return corerr.New(corerr.ConfigInvalid, "pool-prefix must not be empty")
	}
	if c.CoreTimeout <= 0 {
		return corerr.New(corerr.ConfigInvalid, "core-timeout must be positive")
	}
	if c.LoopInterval <= 0 {
		return corerr.New(corerr.ConfigInvalid, "loop-interval must be positive")
	}
	if c.MaxErrorCount < 1 {
		return corerr.New(corerr.ConfigInvalid, "max-error-count must be at least 1")
	}
	if c.ExtraLifetime >= c.CoreTimeout {
		return corerr.New(corerr.ConfigInvalid, fmt.Sprintf(
			"extra-lifetime (%s) must be smaller than core-timeout (%s), or the debounce window can never fire",
			c.ExtraLifetime, c.CoreTimeout))
	}

	switch c.Driver {
	case DriverDocker, DriverKubernetes, DriverProcessSupervisor, DriverNoop:
	default:
		return corerr.New(corerr.ConfigInvalid, fmt.Sprintf("unknown driver %q", c.Driver))
	}
	return nil
}

// QueueName returns the broker-visible queue name for a tenant key.
func (c *Config) QueueName(tenantKey string) string {
	return c.PoolPrefix + "-" + tenantKey
}

// QueuePolicy builds the broker queue policy applied on declare from the
// optional, individually-zero-defaulted policy fields.
func (c *Config) QueuePolicy() types.QueuePolicy {
	return types.QueuePolicy{
		MessageTTL:     c.DefaultMessageTTL,
		MaxLength:      c.MaxLength,
		MaxLengthBytes: c.MaxLengthBytes,
	}
}
