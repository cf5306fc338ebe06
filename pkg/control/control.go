// Package control implements C6, the Control Loop: the periodic reconciler
// that pulls observed state from C1/C2/C3, feeds C4 new queue observations,
// and drives stale-pool teardown through C5. See §4.6.
package control

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/log"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/metrics"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
)

// PoolLister is the C1 surface the control loop needs.
type PoolLister interface {
	ListPools(ctx context.Context) ([]types.DriverMetadata, error)
	CleanupStalled(ctx context.Context) error
}

// QueueLister is the C2 surface the control loop needs.
type QueueLister interface {
	ListPoolQueues(ctx context.Context) ([]types.QueueRecord, error)
}

// KeepAliveReader is the C3 surface the control loop needs.
type KeepAliveReader interface {
	Read(ctx context.Context, tenantKey types.TenantKey) (time.Time, bool, error)
}

// Teardowner is the C5 surface the control loop drives stale pools through.
type Teardowner interface {
	Teardown(ctx context.Context, tenantKey types.TenantKey) error
}

// TenantObserver is the C4 surface fed with queue observations.
type TenantObserver interface {
	ObserveQueue(tenantKey types.TenantKey)
}

// Remover is the C4 surface the control loop notifies once a stale pool has
// actually been torn down, per §4.4 input source 3 and §4.6 step 2: a
// confirmed teardown must remove the tenant from the desired set, not just
// leave the pool gone until the next queue observation re-adds it.
type Remover interface {
	ConfirmRemoval(tenantKey types.TenantKey)
}

// TenantSink is the full C4 surface the control loop drives: new queue
// observations and confirmed removals both flow into the same tracker.
type TenantSink interface {
	TenantObserver
	Remover
}

// Loop is the C6 actor.
type Loop struct {
	pools      PoolLister
	queues     QueueLister
	keepAlive  KeepAliveReader
	tenants    TenantSink
	supervisor Teardowner

	loopInterval time.Duration
	coreTimeout  time.Duration
	opTimeout    time.Duration

	errorCount    int
	maxErrorCount int

	known  *KnownPools
	fatal  chan struct{}
	logger zerolog.Logger
}

// Config bundles the Loop's fixed parameters.
type Config struct {
	Pools      PoolLister
	Queues     QueueLister
	KeepAlive  KeepAliveReader
	Tenants    TenantSink
	Supervisor Teardowner

	LoopInterval  time.Duration
	CoreTimeout   time.Duration
	OpTimeout     time.Duration
	MaxErrorCount int
}

// New constructs a Loop.
func New(cfg Config) *Loop {
	return &Loop{
		pools:         cfg.Pools,
		queues:        cfg.Queues,
		keepAlive:     cfg.KeepAlive,
		tenants:       cfg.Tenants,
		supervisor:    cfg.Supervisor,
		loopInterval:  cfg.LoopInterval,
		coreTimeout:   cfg.CoreTimeout,
		opTimeout:     cfg.OpTimeout,
		maxErrorCount: cfg.MaxErrorCount,
		known:         NewKnownPools(),
		fatal:         make(chan struct{}),
		logger:        log.WithComponent("control"),
	}
}

// KnownPools exposes the RCU snapshot for the (out of scope) status
// collaborator.
func (l *Loop) KnownPools() *KnownPools {
	return l.known
}

// Fatal is closed once the error counter reaches MaxErrorCount consecutive
// failed ticks.
func (l *Loop) Fatal() <-chan struct{} {
	return l.fatal
}

// Run ticks every LoopInterval until ctx is cancelled, and runs
// CleanupStalled on a slower, independent cadence (10x the loop interval)
// so a slow sweep never blocks steady-state reconciliation.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info().Dur("interval", l.loopInterval).Msg("control loop started")

	ticker := time.NewTicker(l.loopInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(l.loopInterval * 10)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("control loop stopped")
			return
		case <-ticker.C:
			l.tick(ctx)
		case <-cleanupTicker.C:
			l.runCleanup(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationTickDuration)

	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	observed, err := l.pools.ListPools(opCtx)
	if err != nil {
		l.logger.Error().Err(err).Msg("listing pools failed, skipping tick")
		l.onTickFailure()
		return
	}

	surviving, err := l.classify(opCtx, observed)
	if err != nil {
		l.logger.Error().Err(err).Msg("teardown step failed, tick aborted without advancing classification")
		l.onTickFailure()
		return
	}

	l.known.Store(surviving)
	metrics.KnownPoolsGauge.Set(float64(len(surviving)))

	queues, err := l.queues.ListPoolQueues(opCtx)
	if err != nil {
		l.logger.Error().Err(err).Msg("listing queues failed, skipping tick")
		l.onTickFailure()
		return
	}

	l.diff(surviving, queues)
	l.onTickSuccess()
}

// classify reads each observed pool's keep-alive entry and tears down any
// tenant whose entry is stale. A teardown failure aborts the tick, per §4.6
// step 2, leaving classification where it stood at the failure.
func (l *Loop) classify(ctx context.Context, observed []types.DriverMetadata) ([]types.DriverMetadata, error) {
	surviving := make([]types.DriverMetadata, 0, len(observed))
	for _, pool := range observed {
		lastSeen, exists, err := l.keepAlive.Read(ctx, pool.TenantKey)
		if err != nil {
			return nil, err
		}

		if !exists {
			// Not yet active: retain without tearing down.
			surviving = append(surviving, pool)
			continue
		}

		if time.Since(lastSeen) > l.coreTimeout {
			if err := l.supervisor.Teardown(ctx, pool.TenantKey); err != nil {
				return nil, err
			}
			l.tenants.ConfirmRemoval(pool.TenantKey)
			continue
		}

		surviving = append(surviving, pool)
	}
	return surviving, nil
}

// diff feeds C4 a queue observation for every queue without a matching
// surviving pool, which C4 turns into an Added notification C5 consumes to
// create the pool.
func (l *Loop) diff(surviving []types.DriverMetadata, queues []types.QueueRecord) {
	has := make(map[types.TenantKey]bool, len(surviving))
	for _, p := range surviving {
		has[p.TenantKey] = true
	}

	for _, q := range queues {
		if !has[q.TenantKey] {
			l.tenants.ObserveQueue(q.TenantKey)
		}
	}
}

func (l *Loop) runCleanup(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()
	if err := l.pools.CleanupStalled(opCtx); err != nil {
		l.logger.Error().Err(err).Msg("stalled-pool cleanup failed")
	}
}

func (l *Loop) onTickFailure() {
	metrics.ReconciliationTicksTotal.WithLabelValues("failure").Inc()
	l.errorCount++
	if l.errorCount >= l.maxErrorCount {
		select {
		case <-l.fatal:
		default:
			metrics.FatalThresholdReachedTotal.WithLabelValues("control").Inc()
			close(l.fatal)
		}
	}
}

func (l *Loop) onTickSuccess() {
	metrics.ReconciliationTicksTotal.WithLabelValues("success").Inc()
	l.errorCount = 0
}
