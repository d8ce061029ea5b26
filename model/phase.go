package model

// HandoverPhase is the urgency state of a (UE, serving satellite) connection,
// derived from the serving satellite's elevation. Phases are ordered by
// urgency: escalation is immediate, de-escalation is hysteresis-gated.
type HandoverPhase int

const (
	// PhaseMonitoring: comfortable geometry, routine neighbor monitoring.
	PhaseMonitoring HandoverPhase = iota
	// PhasePreHandover: geometry degrading, candidates should be prepared.
	PhasePreHandover
	// PhaseExecution: handover should be executed while the link still holds.
	PhaseExecution
	// PhaseCritical: link loss is imminent; best-effort decisions are allowed.
	PhaseCritical
)

func (p HandoverPhase) String() string {
	switch p {
	case PhaseMonitoring:
		return "monitoring"
	case PhasePreHandover:
		return "pre_handover"
	case PhaseExecution:
		return "execution"
	case PhaseCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MoreUrgentThan reports whether p is a later (more urgent) phase than other.
func (p HandoverPhase) MoreUrgentThan(other HandoverPhase) bool {
	return p > other
}
