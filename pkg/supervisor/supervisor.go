// Package supervisor implements C5, the Pool Supervisor: one per-tenant
// state machine per desired tenant key, converging observed pool state
// toward desired. See §4.5.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/corerr"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/log"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/metrics"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/tracker"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// QueueClient is the subset of the broker client (C2) the supervisor needs:
// declaring and deleting a tenant's request queue.
type QueueClient interface {
	DeclareRequestQueue(ctx context.Context, tenantKey types.TenantKey, policy types.QueuePolicy) error
	DeleteQueue(ctx context.Context, tenantKey types.TenantKey) error
}

// KeepAliveDeleter is the subset of the keep-alive register (C3) the
// supervisor needs: clearing an entry once its pool is torn down.
type KeepAliveDeleter interface {
	Delete(ctx context.Context, tenantKey types.TenantKey) error
}

// Remover is the subset of the target tracker (C4) the supervisor needs:
// telling it a tenant is gone for good, per §7's DriverPermanent row
// ("notify C4 to remove") and §4.5's exhaustion step ("remove from desired
// set").
type Remover interface {
	ConfirmRemoval(tenantKey types.TenantKey)
}

// State is a tenant's position in the §4.5 state machine.
type State int

const (
	StateNew State = iota
	StateQueueReady
	StateRunning
	StateStopping
	StateDone
	StateFailed
)

type tenantTask struct {
	mu    sync.Mutex
	state State
	rec   types.PoolRecord
}

// Supervisor runs one logical task per tenant. Construct with New, feed it
// tracker.Change notifications via Run, and route C6's tick-bound stale
// classification through Teardown directly.
type Supervisor struct {
	driver    driver.Driver
	broker    QueueClient
	keepAlive KeepAliveDeleter
	tenants   Remover
	policy    types.QueuePolicy

	maxErrorCount int
	errorCount    atomic.Int64
	fatal         chan struct{}
	fatalOnce     sync.Once

	logger zerolog.Logger

	mu    sync.Mutex
	tasks map[types.TenantKey]*tenantTask
}

// Config bundles the Supervisor's fixed parameters.
type Config struct {
	Driver        driver.Driver
	Broker        QueueClient
	KeepAlive     KeepAliveDeleter
	Tenants       Remover
	Policy        types.QueuePolicy
	MaxErrorCount int
}

// New constructs a Supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		driver:        cfg.Driver,
		broker:        cfg.Broker,
		keepAlive:     cfg.KeepAlive,
		tenants:       cfg.Tenants,
		policy:        cfg.Policy,
		maxErrorCount: cfg.MaxErrorCount,
		fatal:         make(chan struct{}),
		logger:        log.WithComponent("supervisor"),
		tasks:         make(map[types.TenantKey]*tenantTask),
	}
}

// Fatal is closed once the global error counter reaches MaxErrorCount. C7 (or
// main) should select on it alongside child-task failures and terminate the
// process, per §7's propagation rule.
func (s *Supervisor) Fatal() <-chan struct{} {
	return s.fatal
}

// ErrorCount returns the current value of the global error counter.
func (s *Supervisor) ErrorCount() int64 {
	return s.errorCount.Load()
}

// Run consumes tracker.Change notifications for as long as ctx is alive:
// Added drives new→queue-ready→running, Removed drives running→stopping→done.
// Each tenant's transitions run in their own goroutine so tenants do not
// block one another, while a per-tenant mutex keeps a single tenant's
// transitions serialized (I1).
func (s *Supervisor) Run(ctx context.Context, changes <-chan tracker.Change) {
	s.logger.Info().Msg("pool supervisor started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("pool supervisor stopped")
			return
		case c := <-changes:
			switch c.Kind {
			case tracker.Added:
				go func(tenantKey types.TenantKey) {
					if err := s.Ensure(ctx, tenantKey); err != nil {
						s.logger.Error().Err(err).Str("tenant_key", string(tenantKey)).Msg("ensure failed")
					}
				}(c.TenantKey)
			case tracker.Removed:
				go func(tenantKey types.TenantKey) {
					if err := s.Teardown(ctx, tenantKey); err != nil {
						s.logger.Error().Err(err).Str("tenant_key", string(tenantKey)).Msg("teardown failed")
					}
				}(c.TenantKey)
			}
		}
	}
}

func (s *Supervisor) taskFor(tenantKey types.TenantKey) *tenantTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[tenantKey]
	if !ok {
		t = &tenantTask{state: StateNew}
		s.tasks[tenantKey] = t
	}
	return t
}

func (s *Supervisor) dropTask(tenantKey types.TenantKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, tenantKey)
}

// Ensure drives a tenant from new through queue-ready to running. It is
// idempotent: a tenant already running returns immediately.
func (s *Supervisor) Ensure(ctx context.Context, tenantKey types.TenantKey) error {
	t := s.taskFor(tenantKey)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateRunning {
		return nil
	}

	if t.state == StateNew {
		if err := s.broker.DeclareRequestQueue(ctx, tenantKey, s.policy); err != nil {
			kind, ok := corerr.KindOf(err)
			if !ok {
				kind = "unknown"
			}
			metrics.DriverErrorsTotal.WithLabelValues("declare_queue", string(kind)).Inc()
			s.onFailure(err)
			return fmt.Errorf("declaring queue for %s: %w", tenantKey, err)
		}
		t.state = StateQueueReady
	}

	identity, err := s.createPoolWithRetry(ctx, tenantKey)
	if err != nil {
		t.state = StateFailed
		s.dropTask(tenantKey)
		s.logger.Error().Err(err).Str("tenant_key", string(tenantKey)).
			Msg("pool creation exhausted retry budget, tenant marked failed")
		s.confirmRemoval(tenantKey)
		return err
	}

	t.rec = types.PoolRecord{
		TenantKey:  tenantKey,
		InstanceID: identity.InstanceID,
		CreatedAt:  time.Now(),
		Status:     types.PoolStatusRunning,
	}
	t.state = StateRunning
	s.onSuccess()
	return nil
}

func (s *Supervisor) createPoolWithRetry(ctx context.Context, tenantKey types.TenantKey) (types.PoolIdentity, error) {
	return backoff.Retry(ctx, func() (types.PoolIdentity, error) {
		metrics.RetriesTotal.WithLabelValues("create_pool").Inc()
		timer := metrics.NewTimer()
		identity, err := s.driver.GetOrCreatePool(ctx, tenantKey)
		timer.ObserveDurationVec(metrics.DriverOperationDuration, "get_or_create_pool")
		if err != nil {
			kind, ok := corerr.KindOf(err)
			if !ok {
				kind = "unknown"
			}
			metrics.DriverErrorsTotal.WithLabelValues("get_or_create_pool", string(kind)).Inc()
			if kind == corerr.DriverPermanent {
				return types.PoolIdentity{}, backoff.Permanent(err)
			}
			return types.PoolIdentity{}, err
		}
		return identity, nil
	}, backoff.WithMaxTries(uint(s.maxTries())), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

func (s *Supervisor) maxTries() int {
	if s.maxErrorCount <= 0 {
		return 3
	}
	return s.maxErrorCount
}

// Teardown drives a tenant from running through stopping to done: destroy
// the pool, delete the queue, delete the keep-alive entry. Each step retries
// on errors; if a step still fails, the tenant stays in stopping and a later
// Teardown call for it reruns all three steps from DestroyPool onward (each
// step is idempotent).
func (s *Supervisor) Teardown(ctx context.Context, tenantKey types.TenantKey) error {
	t := s.taskFor(tenantKey)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateDone {
		return nil
	}
	t.state = StateStopping

	if err := s.retryStep(ctx, "destroy_pool", func() error { return s.driver.DestroyPool(ctx, tenantKey) }); err != nil {
		s.onFailure(err)
		return fmt.Errorf("destroying pool for %s: %w", tenantKey, err)
	}

	if err := s.retryStep(ctx, "delete_queue", func() error { return s.broker.DeleteQueue(ctx, tenantKey) }); err != nil {
		s.onFailure(err)
		return fmt.Errorf("deleting queue for %s: %w", tenantKey, err)
	}

	if err := s.retryStep(ctx, "delete_keep_alive", func() error { return s.keepAlive.Delete(ctx, tenantKey) }); err != nil {
		s.onFailure(err)
		return fmt.Errorf("deleting keep-alive entry for %s: %w", tenantKey, err)
	}

	t.state = StateDone
	s.dropTask(tenantKey)
	s.onSuccess()
	return nil
}

func (s *Supervisor) retryStep(ctx context.Context, step string, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		metrics.RetriesTotal.WithLabelValues(step).Inc()
		timer := metrics.NewTimer()
		err := op()
		timer.ObserveDurationVec(metrics.DriverOperationDuration, step)
		if err != nil {
			kind, ok := corerr.KindOf(err)
			if !ok {
				kind = "unknown"
			}
			metrics.DriverErrorsTotal.WithLabelValues(step, string(kind)).Inc()
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithMaxTries(uint(s.maxTries())), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	return err
}

func (s *Supervisor) onFailure(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if s.errorCount.Add(1) >= int64(s.maxErrorCount) {
		s.fatalOnce.Do(func() {
			metrics.FatalThresholdReachedTotal.WithLabelValues("supervisor").Inc()
			close(s.fatal)
		})
	}
}

// confirmRemoval tells C4 a tenant is gone for good, if a Remover was
// configured. Nil-safe so existing tests that don't exercise removal don't
// need to supply one.
func (s *Supervisor) confirmRemoval(tenantKey types.TenantKey) {
	if s.tenants == nil {
		return
	}
	s.tenants.ConfirmRemoval(tenantKey)
}

func (s *Supervisor) onSuccess() {
	for {
		cur := s.errorCount.Load()
		if cur <= 0 {
			return
		}
		if s.errorCount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
