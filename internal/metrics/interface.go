package metrics

// Collector receives engine events. The service layer depends only on this
// interface; main wires either the Prometheus collector or the no-op one.
type Collector interface {
	BeliefUpdate(result string)
	CascadeUpdate()
	VerificationOutcome(state string)
	VerificationRetry()
	Escalation(reason string)
	AutonomyDecision(mode string, strength float64)
}

// Belief update results.
const (
	ResultApplied  = "applied"
	ResultSkipped  = "skipped"
	ResultError    = "error"
	ResultRejected = "rejected"
)
