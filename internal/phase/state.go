// Package phase drives the discovery→coding→verification workflow as an
// explicit finite-state machine composed over the dispatcher, judge,
// checkpoint store, telemetry and event hub.
package phase

// Kind identifies a state of the workflow machine.
type Kind string

const (
	KindInit         Kind = "init"
	KindDiscovery    Kind = "discovery"
	KindCoding       Kind = "coding"
	KindVerification Kind = "verification"
	KindCompleted    Kind = "completed"
	KindFailed       Kind = "failed"
)

// State is one position of the workflow machine. Attempt is the
// coding/verification cycle number, 1-based.
type State struct {
	Kind    Kind
	Attempt int
}

// Terminal reports whether the machine has stopped.
func (s State) Terminal() bool {
	return s.Kind == KindCompleted || s.Kind == KindFailed
}

// Outcome is the result of executing one phase.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// Next is the pure transition function. Discovery runs once and is not
// retried; only the coding/verification cycle consumes retries.
func Next(s State, outcome Outcome, maxRetries int) State {
	switch s.Kind {
	case KindInit:
		return State{Kind: KindDiscovery, Attempt: 1}
	case KindDiscovery:
		if outcome == OutcomeSuccess {
			return State{Kind: KindCoding, Attempt: 1}
		}
		return State{Kind: KindFailed}
	case KindCoding:
		// Judge selection cannot fail, so coding always advances.
		return State{Kind: KindVerification, Attempt: s.Attempt}
	case KindVerification:
		if outcome == OutcomeSuccess {
			return State{Kind: KindCompleted}
		}
		if s.Attempt < maxRetries {
			return State{Kind: KindCoding, Attempt: s.Attempt + 1}
		}
		return State{Kind: KindFailed}
	}
	return s
}
