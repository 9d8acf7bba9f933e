// Package readiness implements the system-level gate consulted by reads
// before touching the KV surface, generalizing
// internal/ingestion.ValidateStateTransition's terminal-state checking
// idiom into a four-state machine.
package readiness

import (
	"errors"
	"fmt"
)

// State is one of the four readiness states a scope (typically a
// datasetId, or a broader label such as "system") can occupy.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateDegraded     State = "degraded"
	StateUnavailable  State = "unavailable"
)

// ErrInvalidTransition is raised when a caller attempts a transition the
// state machine does not permit.
var ErrInvalidTransition = errors.New("readiness: invalid state transition")

// allowedTransitions encodes the diagram from spec.md §4.6:
//
//	initializing --(first valid commit)--> ready
//	ready --(fetch/validate/commit fail)--> degraded
//	degraded --(successful recommit)--> ready
//	any --(explicit admin)--> unavailable
//	any --(admin reset)--> initializing
//
// It also allows unavailable -> ready and unavailable -> degraded, so a
// scope that fell to unavailable can return through a later commit.
var allowedTransitions = map[State]map[State]bool{
	StateInitializing: {StateReady: true, StateUnavailable: true},
	StateReady:        {StateDegraded: true, StateUnavailable: true, StateInitializing: true},
	StateDegraded:     {StateReady: true, StateUnavailable: true, StateInitializing: true},
	StateUnavailable:  {StateInitializing: true, StateReady: true, StateDegraded: true},
}

// ValidateTransition reports whether moving from `from` to `to` is
// permitted. A transition to the same state is always a no-op success.
func ValidateTransition(from, to State) error {
	if from == to {
		return nil
	}

	if allowedTransitions[from][to] {
		return nil
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Check is the (isReady, allowKVRead, allowCache, httpStatus, reason)
// tuple spec.md §4.6 requires callers to consult before touching the KV
// surface.
type Check struct {
	State      State
	IsReady     bool
	AllowKVRead bool
	AllowCache  bool
	HTTPStatus  int
	Reason      string
}

// Evaluate maps a State to its Check tuple per the table in spec.md §4.6.
func Evaluate(s State, reason string) Check {
	switch s {
	case StateReady:
		return Check{State: s, IsReady: true, AllowKVRead: true, AllowCache: true, HTTPStatus: 200, Reason: reason}
	case StateInitializing:
		return Check{State: s, IsReady: false, AllowKVRead: false, AllowCache: false, HTTPStatus: 202, Reason: reason}
	case StateDegraded:
		return Check{State: s, IsReady: false, AllowKVRead: true, AllowCache: false, HTTPStatus: 503, Reason: reason}
	case StateUnavailable:
		return Check{State: s, IsReady: false, AllowKVRead: false, AllowCache: false, HTTPStatus: 503, Reason: reason}
	default:
		return Check{State: StateInitializing, IsReady: false, AllowKVRead: false, AllowCache: false, HTTPStatus: 202, Reason: "unknown state"}
	}
}

// MetadataStoreDown is the fallback Check used when the readiness store
// itself cannot be reached: reads may still attempt to serve LKG, but the
// result must never be cached downstream.
func MetadataStoreDown(reason string) Check {
	return Check{
		State:       StateDegraded,
		IsReady:     false,
		AllowKVRead: true,
		AllowCache:  false,
		HTTPStatus:  503,
		Reason:      reason,
	}
}
