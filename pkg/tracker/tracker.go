// Package tracker implements C4, the Target Tracker: the single
// authoritative set of desired tenant keys. It runs as a single-threaded
// cooperative actor — every interaction is a message sent to its inbox, with
// no shared mutable state exposed — the same cyclic-graph-avoidance pattern
// §9 calls for between C4/C5/C6.
package tracker

import (
	"context"
	"time"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/log"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/metrics"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/types"
	"github.com/rs/zerolog"
)

// defaultInboxSize is §5's bounded inbox size for C4 ("default 100
// messages").
const defaultInboxSize = 100

// ChangeKind identifies whether a Change is an addition or removal.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
)

// Change is a desired-set transition notification, delivered to subscribers
// (C5 instances) in the order the tracker processed the inputs that caused
// it.
type Change struct {
	Kind      ChangeKind
	TenantKey types.TenantKey
}

type source int

const (
	sourceQueue source = iota
	sourceAPI
)

type entry struct {
	firstSeen      time.Time
	lastConfirmed  time.Time
	pendingRemoval bool
	removalGen     uint64
}

type msgAdd struct {
	tenantKey types.TenantKey
	src       source
}

type msgRemove struct {
	tenantKey types.TenantKey
}

type msgRemovalTimeout struct {
	tenantKey types.TenantKey
	gen       uint64
}

type msgSnapshot struct {
	reply chan []types.TenantKey
}

type msgSubscribe struct {
	reply chan chan Change
}

// Tracker is the C4 actor. Construct with New and start with Run.
type Tracker struct {
	extraLifetime time.Duration
	logger        zerolog.Logger

	inbox chan any

	entries     map[types.TenantKey]*entry
	subscribers []chan Change
}

// New creates a Tracker. Call Run in its own goroutine before using any of
// the request methods.
func New(extraLifetime time.Duration) *Tracker {
	return &Tracker{
		extraLifetime: extraLifetime,
		logger:        log.WithComponent("tracker"),
		inbox:         make(chan any, defaultInboxSize),
		entries:       make(map[types.TenantKey]*entry),
	}
}

// Run processes the inbox until ctx is cancelled. The tracker is long-lived:
// per §4.4, cancellation only happens on full shutdown, after which the
// inbox is drained and dropped.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info().Msg("target tracker started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("target tracker stopped")
			return
		case m := <-t.inbox:
			t.handle(m)
		}
	}
}

func (t *Tracker) handle(m any) {
	switch msg := m.(type) {
	case msgAdd:
		t.handleAdd(msg.tenantKey, msg.src)
	case msgRemove:
		t.handleRemove(msg.tenantKey)
	case msgRemovalTimeout:
		t.handleRemovalTimeout(msg.tenantKey, msg.gen)
	case msgSnapshot:
		msg.reply <- t.snapshotLocked()
	case msgSubscribe:
		ch := make(chan Change, 256)
		t.subscribers = append(t.subscribers, ch)
		msg.reply <- ch
	}
}

func (t *Tracker) handleAdd(tenantKey types.TenantKey, _ source) {
	e, ok := t.entries[tenantKey]
	now := time.Now()
	if !ok {
		t.entries[tenantKey] = &entry{firstSeen: now, lastConfirmed: now}
		metrics.TrackedTenantsGauge.Set(float64(len(t.entries)))
		t.notify(Change{Kind: Added, TenantKey: tenantKey})
		return
	}

	e.lastConfirmed = now
	if e.pendingRemoval {
		// Reconfirmed within the extra-lifetime window: cancel the pending
		// removal. The key was never actually removed from a subscriber's
		// point of view, so no notification is emitted (no storm).
		e.pendingRemoval = false
		e.removalGen++
	}
}

func (t *Tracker) handleRemove(tenantKey types.TenantKey) {
	e, ok := t.entries[tenantKey]
	if !ok || e.pendingRemoval {
		return
	}
	e.pendingRemoval = true
	e.removalGen++
	gen := e.removalGen

	time.AfterFunc(t.extraLifetime, func() {
		t.inbox <- msgRemovalTimeout{tenantKey: tenantKey, gen: gen}
	})
}

func (t *Tracker) handleRemovalTimeout(tenantKey types.TenantKey, gen uint64) {
	e, ok := t.entries[tenantKey]
	if !ok || !e.pendingRemoval || e.removalGen != gen {
		return // superseded by a re-add or a newer removal request
	}
	delete(t.entries, tenantKey)
	metrics.TrackedTenantsGauge.Set(float64(len(t.entries)))
	t.notify(Change{Kind: Removed, TenantKey: tenantKey})
}

func (t *Tracker) notify(c Change) {
	for _, sub := range t.subscribers {
		sub <- c
	}
}

func (t *Tracker) snapshotLocked() []types.TenantKey {
	out := make([]types.TenantKey, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	return out
}

// ObserveQueue tells the tracker a tenant key is currently on the broker
// (input source 1, §4.4). Blocks if the inbox is full (back-pressure).
func (t *Tracker) ObserveQueue(tenantKey types.TenantKey) {
	t.inbox <- msgAdd{tenantKey: tenantKey, src: sourceQueue}
}

// ObserveAPIRequest tells the tracker a tenant key was just requested
// externally (input source 2, §4.4): it keeps the key alive even if no
// queue exists yet, and — per this spec's resolution of the Open Question
// in §9 — never by itself triggers pool creation.
func (t *Tracker) ObserveAPIRequest(tenantKey types.TenantKey) {
	t.inbox <- msgAdd{tenantKey: tenantKey, src: sourceAPI}
}

// ConfirmRemoval tells the tracker a tenant key has been confirmed stale and
// its pool destroyed (input source 3, §4.4). The actual removal — and its
// notification — is debounced by extra-lifetime.
func (t *Tracker) ConfirmRemoval(tenantKey types.TenantKey) {
	t.inbox <- msgRemove{tenantKey: tenantKey}
}

// Snapshot returns every currently-desired tenant key.
func (t *Tracker) Snapshot() []types.TenantKey {
	reply := make(chan []types.TenantKey, 1)
	t.inbox <- msgSnapshot{reply: reply}
	return <-reply
}

// Subscribe returns a channel of Change notifications, delivered in the
// order the tracker processed the inputs that caused them. Subscribers are
// expected to be C5 instances; the channel is never closed by the tracker.
func (t *Tracker) Subscribe() chan Change {
	reply := make(chan chan Change, 1)
	t.inbox <- msgSubscribe{reply: reply}
	return <-reply
}
