package metrics

// NoopCollector discards every event.
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (NoopCollector) BeliefUpdate(string) {}
func (NoopCollector) CascadeUpdate() {}
func (NoopCollector) VerificationOutcome(string) {}
func (NoopCollector) VerificationRetry() {}
func (NoopCollector) Escalation(string) {}
func (NoopCollector) AutonomyDecision(string, float64) {}
