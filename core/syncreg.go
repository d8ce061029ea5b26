package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/model"
)

// SyncPointRegistry maintains clock-offset anchors per logical timing domain
// (typically one per UE or per ground region). Both sides of a handover read
// the same anchor and so compute the same absolute execute-at instant
// without exchanging a confirmation message.
//
// This is the only state shared across pair workers: reads are concurrent,
// writes are serialized, and readers never observe a partially written
// anchor.
type SyncPointRegistry struct {
	mu      sync.RWMutex
	anchors map[string]model.SyncPoint
	log     logging.Logger
}

// NewSyncPointRegistry constructs an empty registry.
func NewSyncPointRegistry(log logging.Logger) *SyncPointRegistry {
	if log == nil {
		log = logging.Noop()
	}
	return &SyncPointRegistry{
		anchors: make(map[string]model.SyncPoint),
		log:     log,
	}
}

// Update installs a new anchor for the domain. Anchors must move forward in
// time, and a newer anchor must not carry a worse accuracy bound than the
// one it replaces unless it is flagged as a re-synchronization event.
func (r *SyncPointRegistry) Update(domain string, sp model.SyncPoint) error {
	if domain == "" {
		return fmt.Errorf("sync point update: empty domain")
	}
	if sp.AnchorTime.IsZero() {
		return fmt.Errorf("sync point update for %q: zero anchor time", domain)
	}
	if sp.AccuracyMs < 0 {
		return fmt.Errorf("sync point update for %q: negative accuracy bound", domain)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.anchors[domain]; ok {
		if sp.AnchorTime.Before(prev.AnchorTime) {
			return fmt.Errorf("sync point update for %q: anchor time moved backwards", domain)
		}
		if sp.AccuracyMs > prev.AccuracyMs && !sp.Resynchronized {
			return fmt.Errorf("sync point update for %q: accuracy degraded from %.1fms to %.1fms without re-synchronization",
				domain, prev.AccuracyMs, sp.AccuracyMs)
		}
	}
	r.anchors[domain] = sp
	return nil
}

// Get returns the current anchor for the domain.
func (r *SyncPointRegistry) Get(domain string) (model.SyncPoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.anchors[domain]
	return sp, ok
}

// GetOffset returns the domain's clock offset in milliseconds. A domain with
// no anchor yet reports a zero offset.
func (r *SyncPointRegistry) GetOffset(domain string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.anchors[domain]
	if !ok {
		return 0, false
	}
	return sp.ClockOffsetMs, true
}

// Align translates an engine-local instant into the domain's clock by
// applying the current offset. With no anchor the instant is returned
// unchanged.
func (r *SyncPointRegistry) Align(domain string, t time.Time) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.anchors[domain]
	if !ok {
		return t
	}
	return t.Add(sp.Offset())
}

// Domains lists the domains with an installed anchor.
func (r *SyncPointRegistry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.anchors))
	for d := range r.anchors {
		out = append(out, d)
	}
	return out
}
