package engine

import (
	"sync"

	"github.com/signalsfoundry/handover-engine/model"
)

// feedHistoryDepth bounds the per-UE decision history kept in memory.
const feedHistoryDepth = 32

// DecisionFeed is an in-memory, thread-safe store of emitted handover
// decisions. The API layer reads the latest decision per UE and streams
// new ones to websocket clients through Subscribe.
type DecisionFeed struct {
	mu sync.RWMutex

	latest  map[string]model.HandoverDecision
	history map[string][]model.HandoverDecision

	// Subscribers are keyed by a monotonically increasing id so an
	// unsubscribe always removes exactly the registered callback, no
	// matter how other subscriptions come and go around it.
	subs    map[uint64]func(model.HandoverDecision)
	nextSub uint64
}

// NewDecisionFeed constructs an empty feed.
func NewDecisionFeed() *DecisionFeed {
	return &DecisionFeed{
		latest:  make(map[string]model.HandoverDecision),
		history: make(map[string][]model.HandoverDecision),
		subs:    make(map[uint64]func(model.HandoverDecision)),
	}
}

// Publish records a decision and notifies subscribers.
func (f *DecisionFeed) Publish(d model.HandoverDecision) {
	f.mu.Lock()
	f.latest[d.UEID] = d

	hist := append(f.history[d.UEID], d)
	if len(hist) > feedHistoryDepth {
		hist = hist[len(hist)-feedHistoryDepth:]
	}
	f.history[d.UEID] = hist

	subs := make([]func(model.HandoverDecision), 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(d)
	}
}

// Latest returns the most recent decision for the UE, if any.
func (f *DecisionFeed) Latest(ueID string) (model.HandoverDecision, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.latest[ueID]
	return d, ok
}

// History returns a snapshot of the UE's decision history, oldest first.
func (f *DecisionFeed) History(ueID string) []model.HandoverDecision {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]model.HandoverDecision(nil), f.history[ueID]...)
}

// Subscribe registers a callback for new decisions. It returns an
// unsubscribe function, safe to call more than once.
func (f *DecisionFeed) Subscribe(fn func(model.HandoverDecision)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}
