package model

import "time"

// SyncPoint is a clock-offset anchor for one logical timing domain. It lets
// the terminal-side and network-side schedulers independently compute the
// same absolute execute-at instant without exchanging a confirmation message.
type SyncPoint struct {
	AnchorTime    time.Time `json:"anchor_time"`
	ClockOffsetMs float64   `json:"clock_offset_ms"`
	AccuracyMs    float64   `json:"accuracy_ms"`

	// Resynchronized flags an explicit re-synchronization event. Outside of
	// one, a newer anchor must not carry a worse accuracy bound.
	Resynchronized bool `json:"resynchronized,omitempty"`
}

// Offset returns the anchor's clock offset as a duration.
func (s SyncPoint) Offset() time.Duration {
	return time.Duration(s.ClockOffsetMs * float64(time.Millisecond))
}
