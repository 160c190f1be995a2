package scheduling

import (
	"fmt"

	"fieldops/internal/domain"
)

// AttemptState 分配尝试的状态
type AttemptState string

const (
	StatePending          AttemptState = "PENDING"
	StateCheckedClear     AttemptState = "CHECKED_CLEAR"
	StateCheckedConflict  AttemptState = "CHECKED_CONFLICT"
	StateBlocked          AttemptState = "BLOCKED"
	StateAwaitingOverride AttemptState = "AWAITING_OVERRIDE"
	StateCommitted        AttemptState = "COMMITTED"
)

var transitions = map[AttemptState][]AttemptState{
	StatePending:          {StateCheckedClear, StateCheckedConflict},
	StateCheckedClear:     {StateCommitted},
	StateCheckedConflict:  {StateBlocked, StateAwaitingOverride},
	StateAwaitingOverride: {StateCommitted},
}

// Attempt tracks one assignment attempt. Nothing carries over between attempts:
// every request starts a fresh Attempt at PENDING.
type Attempt struct {
	state   AttemptState
	history []AttemptState
}

// NewAttempt 新建尝试，初始状态 PENDING
func NewAttempt() *Attempt {
	return &Attempt{state: StatePending, history: []AttemptState{StatePending}}
}

// State returns the current state.
func (a *Attempt) State() AttemptState { return a.state }

// History returns every state visited, in order.
func (a *Attempt) History() []AttemptState {
	return append([]AttemptState(nil), a.history...)
}

// Terminal reports whether the attempt reached COMMITTED or BLOCKED.
func (a *Attempt) Terminal() bool {
	return a.state == StateCommitted || a.state == StateBlocked
}

// Transition moves to the next state, rejecting moves the state machine does not allow.
func (a *Attempt) Transition(to AttemptState) error {
	for _, allowed := range transitions[a.state] {
		if allowed == to {
			a.state = to
			a.history = append(a.history, to)
			return nil
		}
	}
	return fmt.Errorf("illegal assignment transition %s -> %s", a.state, to)
}

// Decide applies a check result to a PENDING attempt and reports whether the commit may
// go ahead. Critical conflicts end in BLOCKED regardless of override. Non-critical
// conflicts wait in AWAITING_OVERRIDE and proceed only when override is set.
func (a *Attempt) Decide(result domain.ConflictCheckResult, override bool) (bool, error) {
	if !result.HasConflicts {
		return true, a.Transition(StateCheckedClear)
	}
	if err := a.Transition(StateCheckedConflict); err != nil {
		return false, err
	}
	if !result.CanProceed {
		return false, a.Transition(StateBlocked)
	}
	if err := a.Transition(StateAwaitingOverride); err != nil {
		return false, err
	}
	return override, nil
}
