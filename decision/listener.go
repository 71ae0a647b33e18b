package decision

import (
	"time"

	"github.com/liamcoop/decisions/hitpolicy"
)

// EvaluationEvent describes one finished table evaluation
type EvaluationEvent struct {
	TableID  string
	TableKey string
	Config   hitpolicy.Config
	Matched  []string
	Duration time.Duration
	Err      error
}

// EvaluationListener is notified synchronously after every evaluation.
// Implementations must be safe for concurrent use.
type EvaluationListener interface {
	OnEvaluation(event EvaluationEvent)
}

// ListenerFunc adapts a function to an EvaluationListener
type ListenerFunc func(event EvaluationEvent)

func (f ListenerFunc) OnEvaluation(event EvaluationEvent) { f(event) }
