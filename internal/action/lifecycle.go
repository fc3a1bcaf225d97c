package action

import (
	"fmt"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// State is the lifecycle position of an Action.
//
//	Proposed -> Approved -> Started -> Succeeded | Failed
//	any non-terminal state -> Aborted
type State uint8

const (
	StateProposed State = iota
	StateApproved
	StateStarted
	StateSucceeded
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateApproved:
		return "approved"
	case StateStarted:
		return "started"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAborted
}

// State returns the current lifecycle state.
func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsApproved is true once the action has been approved, including every
// later state reached through the approval chain.
func (b *base) IsApproved() bool {
	s := b.State()
	return s == StateApproved || s == StateStarted || s == StateSucceeded || s == StateFailed
}

// IsStarted is true once execution began.
func (b *base) IsStarted() bool {
	s := b.State()
	return s == StateStarted || s == StateSucceeded || s == StateFailed
}

// IsPending is true while a started action waits for its final status.
func (b *base) IsPending() bool { return b.State() == StateStarted }

// IsDone is true once a final status was set.
func (b *base) IsDone() bool {
	s := b.State()
	return s == StateSucceeded || s == StateFailed
}

func (b *base) IsSuccess() bool { return b.State() == StateSucceeded }
func (b *base) IsFailed() bool  { return b.State() == StateFailed }
func (b *base) IsAborted() bool { return b.State() == StateAborted }

// SetApproved moves Proposed -> Approved.
func (b *base) SetApproved() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateProposed {
		return b.transitionErr("approve")
	}
	b.state = StateApproved
	return nil
}

// SetStarted moves Approved -> Started.
func (b *base) SetStarted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked()
}

func (b *base) startLocked() error {
	if b.state != StateApproved {
		return b.transitionErr("start")
	}
	b.state = StateStarted
	return nil
}

// SetFinalStatus moves Started -> Succeeded or Failed. Exactly one of
// success and failed must be true.
func (b *base) SetFinalStatus(success, failed bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finishLocked(success, failed)
}

func (b *base) finishLocked(success, failed bool) error {
	if success == failed {
		return fmt.Errorf("action %s: final status needs exactly one of success/failed (success=%t failed=%t): %w",
			b.id, success, failed, domain.ErrInvalidTransition)
	}
	if b.state != StateStarted {
		return b.transitionErr("finish")
	}
	if success {
		b.state = StateSucceeded
	} else {
		b.state = StateFailed
	}
	return nil
}

// SetAborted cancels the action from any state before done.
func (b *base) SetAborted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Terminal() {
		return b.transitionErr("abort")
	}
	b.state = StateAborted
	return nil
}

func (b *base) transitionErr(op string) error {
	return fmt.Errorf("action %s: cannot %s from %s: %w", b.id, op, b.state, domain.ErrInvalidTransition)
}
