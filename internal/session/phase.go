package session

// Phase is the generation state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseDone
	PhaseAwaitingFeedback
	PhaseRegenerating
	PhaseErrored
	// PhaseDisconnected is terminal: the connection is gone and is never re-dialed.
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseDone:
		return "done"
	case PhaseAwaitingFeedback:
		return "awaiting_feedback"
	case PhaseRegenerating:
		return "regenerating"
	case PhaseErrored:
		return "errored"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// AcceptsPrompt reports whether a new top-level generation may start.
func (p Phase) AcceptsPrompt() bool {
	return p == PhaseIdle || p == PhaseDone || p == PhaseErrored
}

// InFlight reports whether a request has been sent and its completion is pending.
func (p Phase) InFlight() bool {
	return p == PhaseGenerating || p == PhaseRegenerating
}

// Active covers every phase an error envelope can interrupt.
func (p Phase) Active() bool {
	return p.InFlight() || p == PhaseAwaitingFeedback
}
