// Package metrics defines what the exchange core reports, backends live in subpackages.
package metrics

import (
	"time"
)

// Collector receives engine and oracle events
type Collector interface {
	// Exchange engine, outcome is "completed" or the failing error kind
	RecordExchange(outcome string, duration time.Duration)

	// Rate oracle lookups per source
	RecordRate(source string, ok bool, duration time.Duration)
	RecordCacheLookup(hit bool)
	RecordCircuitState(name string, state CircuitState)

	// Journal reconciliation, action is "recorded", "committed" or "failed"
	RecordReconcile(action string)
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOp is the default collector
type NoOp struct{}

func (NoOp) RecordExchange(outcome string, duration time.Duration)      {}
func (NoOp) RecordRate(source string, ok bool, duration time.Duration) {}
func (NoOp) RecordCacheLookup(hit bool)                                {}
func (NoOp) RecordCircuitState(name string, state CircuitState)        {}
func (NoOp) RecordReconcile(action string)                             {}
