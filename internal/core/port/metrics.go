package port

// AuthMetrics records flow outcomes.
type AuthMetrics interface {
	ObserveOutcome(flow, outcome string)
	ObserveLockout()
}
