package engine

// Phase represents the engine's position within the current iteration.
type Phase int

const (
	// PhaseIdle means no pending response for the current prompt.
	PhaseIdle Phase = iota
	// PhaseResponded means the target model produced a response that has
	// not been actioned yet.
	PhaseResponded
	// PhaseSuggested means a revision suggestion is pending accept or
	// reject.
	PhaseSuggested
)

// String returns the string representation of a phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResponded:
		return "responded"
	case PhaseSuggested:
		return "suggested"
	default:
		return "unknown"
	}
}
