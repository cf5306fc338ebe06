// Package reconnect implements C7, the Reconnect Supervisor: the outer loop
// owning the AMQP connection's lifetime, (re)starting C2/C5/C6 around it
// while C3 and C4 carry desired-state across reconnects. See §4.7.
package reconnect

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/broker"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/control"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/log"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/metrics"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/supervisor"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/tracker"
)

// defaultShutdownGrace is §5's graceful-shutdown budget.
const defaultShutdownGrace = 10 * time.Second

// ErrShutdownGraceExceeded is returned by Run when children did not stop
// within the shutdown grace budget during a graceful shutdown.
var ErrShutdownGraceExceeded = errors.New("reconnect: shutdown grace period exceeded")

// ErrFatalThreshold is returned by Run when a child (C5 or C6) reached its
// configured max-error-count, per §7's process-exit policy.
var ErrFatalThreshold = errors.New("reconnect: a core component reached its fatal error threshold")

type cycleOutcome int

const (
	// outcomeReconnect: the broker connection was lost; back off and redial.
	outcomeReconnect cycleOutcome = iota
	// outcomeShutdown: ctx was cancelled and children stopped cleanly.
	outcomeShutdown
	// outcomeShutdownGraceExceeded: ctx was cancelled but children did not
	// stop within the grace budget.
	outcomeShutdownGraceExceeded
	// outcomeFatal: a child reached its fatal error threshold.
	outcomeFatal
)

// Children are rebuilt from scratch on every reconnect; only the broker
// connection itself changes between cycles, so each factory is handed the
// fresh connection and returns a component bound to it.
type Children struct {
	// NewBroker builds a C2 client bound to the freshly-opened connection.
	NewBroker func(conn *amqp.Connection) *broker.Client

	// NewSupervisor builds a fresh C5 bound to the new broker client.
	NewSupervisor func(b *broker.Client) *supervisor.Supervisor

	// NewControlLoop builds a fresh C6 bound to the new broker client and
	// the C5 instance built alongside it, since C6 drives stale-pool
	// teardown directly through C5 (§4.6 step 2).
	NewControlLoop func(b *broker.Client, sup *supervisor.Supervisor) *control.Loop

	// Tracker is C4, shared and never rebuilt across reconnects.
	Tracker *tracker.Tracker
}

// Supervisor is the C7 actor.
type Supervisor struct {
	amqpURI       string
	children      Children
	shutdownGrace time.Duration
	reconnectWait backoffFunc
	logger        zerolog.Logger
}

type backoffFunc func(attempt int) time.Duration

// defaultReconnectBackoff grows 1s, 2s, 4s, ... capped at 30s, so a
// persistently unreachable broker never causes a tight reconnect loop.
func defaultReconnectBackoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// New constructs a Supervisor. shutdownGrace of 0 uses defaultShutdownGrace.
func New(amqpURI string, children Children, shutdownGrace time.Duration) *Supervisor {
	if shutdownGrace <= 0 {
		shutdownGrace = defaultShutdownGrace
	}
	return &Supervisor{
		amqpURI:       amqpURI,
		children:      children,
		shutdownGrace: shutdownGrace,
		reconnectWait: defaultReconnectBackoff,
		logger:        log.WithComponent("reconnect"),
	}
}

// Run dials, starts children, and reconnects on failure until ctx is
// cancelled (OS interrupt) or a fatal threshold is hit within a child.
// Returns nil on clean shutdown, ErrShutdownGraceExceeded if the shutdown
// grace period was exceeded, or ErrFatalThreshold if a child reached its
// fatal error threshold (caller should treat either error as a non-zero
// exit).
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := broker.Dial(s.amqpURI)
		if err != nil {
			s.logger.Error().Err(err).Int("attempt", attempt).Msg("dial failed, backing off")
			if !s.sleep(ctx, s.reconnectWait(attempt)) {
				return nil
			}
			attempt++
			continue
		}
		attempt = 0

		closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))
		outcome := s.runCycle(ctx, conn, closeNotify)
		_ = conn.Close()

		switch outcome {
		case outcomeShutdown:
			return nil
		case outcomeShutdownGraceExceeded:
			return ErrShutdownGraceExceeded
		case outcomeFatal:
			return ErrFatalThreshold
		case outcomeReconnect:
			metrics.ReconnectsTotal.Inc()
			s.logger.Warn().Msg("broker connection lost, reconnecting")
			if !s.sleep(ctx, s.reconnectWait(0)) {
				return nil
			}
		}
	}
}

// runCycle starts C2/C5/C6 bound to conn and waits for the first of: ctx
// cancellation (graceful shutdown, C6 stopped before C5), a child reaching
// its fatal error threshold (process exit, §7), or the connection closing
// (reconnect, no process exit).
func (s *Supervisor) runCycle(ctx context.Context, conn *amqp.Connection, closeNotify <-chan *amqp.Error) cycleOutcome {
	b := s.children.NewBroker(conn)
	sup := s.children.NewSupervisor(b)
	ctl := s.children.NewControlLoop(b, sup)

	controlCtx, cancelControl := context.WithCancel(ctx)
	supervisorCtx, cancelSupervisor := context.WithCancel(ctx)
	defer cancelControl()
	defer cancelSupervisor()

	controlDone := make(chan struct{})
	go func() { ctl.Run(controlCtx); close(controlDone) }()

	supervisorDone := make(chan struct{})
	go func() { sup.Run(supervisorCtx, s.children.Tracker.Subscribe()); close(supervisorDone) }()

	select {
	case <-ctx.Done():
		if s.gracefulShutdown(cancelControl, cancelSupervisor, controlDone, supervisorDone) {
			return outcomeShutdownGraceExceeded
		}
		return outcomeShutdown
	case <-ctl.Fatal():
		s.logger.Error().Msg("control loop reached fatal error threshold")
		cancelControl()
		cancelSupervisor()
		<-controlDone
		<-supervisorDone
		return outcomeFatal
	case <-sup.Fatal():
		s.logger.Error().Msg("pool supervisor reached fatal error threshold")
		cancelControl()
		cancelSupervisor()
		<-controlDone
		<-supervisorDone
		return outcomeFatal
	case <-closeNotify:
		cancelControl()
		cancelSupervisor()
		<-controlDone
		<-supervisorDone
		return outcomeReconnect
	}
}

// gracefulShutdown cancels C6 first, giving in-flight per-tenant teardowns a
// chance to reach delete_queue/delete before C5 itself is cancelled. Both
// waits share a single shutdownGrace budget (10 seconds by default) rather
// than one budget each. Returns
// true if the budget was exceeded.
func (s *Supervisor) gracefulShutdown(cancelControl, cancelSupervisor context.CancelFunc, controlDone, supervisorDone <-chan struct{}) bool {
	deadline := time.NewTimer(s.shutdownGrace)
	defer deadline.Stop()

	cancelControl()
	select {
	case <-controlDone:
	case <-deadline.C:
		s.logger.Error().Msg("shutdown grace period exceeded before control loop stopped")
		cancelSupervisor()
		return true
	}

	cancelSupervisor()
	select {
	case <-supervisorDone:
		return false
	case <-deadline.C:
		s.logger.Error().Msg("shutdown grace period exceeded before pool supervisor stopped")
		return true
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
