package game

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation marks a mutation that would leave the document in an
// inconsistent shape. Such mutations are dropped by callers without
// broadcasting; nothing is committed.
var ErrInvariantViolation = errors.New("invariant violation")

// Store owns the canonical match document. Mutations are applied to a copy
// and committed only if the result still satisfies the document invariants,
// so a rejected mutation leaves the held state untouched. Broadcasting the
// committed snapshot is the caller's concern.
type Store struct {
	state State
}

// NewStore wraps an initial document, usually NewState output or a snapshot
// restored from disk.
func NewStore(initial State) *Store {
	return &Store{state: initial.Clone()}
}

// State returns a detached copy of the current document.
func (st *Store) State() State {
	return st.state.Clone()
}

// Apply runs a mutation against a copy of the document, validates the
// result, bumps the version stamp and commits. The returned snapshot is
// detached from the store.
func (st *Store) Apply(m Mutation) (State, error) {
	next := st.state.Clone()
	if err := m.step(&next); err != nil {
		return State{}, err
	}
	if err := validate(&next); err != nil {
		return State{}, err
	}
	next.Version = st.state.Version + 1
	st.state = next
	return next.Clone(), nil
}

func validate(s *State) error {
	if s.Turn != "" {
		p, ok := s.Players[s.Turn]
		if !ok {
			return fmt.Errorf("%w: turn references unknown player %q", ErrInvariantViolation, s.Turn)
		}
		if !p.Connected {
			return fmt.Errorf("%w: turn references disconnected player %q", ErrInvariantViolation, s.Turn)
		}
	}
	for pid := range s.Wins {
		if _, ok := s.Players[pid]; !ok {
			return fmt.Errorf("%w: wins entry references unknown player %q", ErrInvariantViolation, pid)
		}
	}
	for pid := range s.Clock.RemainingMs {
		if _, ok := s.Players[pid]; !ok {
			return fmt.Errorf("%w: clock entry references unknown player %q", ErrInvariantViolation, pid)
		}
	}
	if s.Clock.Running && s.Status != StatusActive && s.Status != StatusOvertime {
		return fmt.Errorf("%w: clock running while status is %s", ErrInvariantViolation, s.Status)
	}
	hosts := 0
	for _, p := range s.Players {
		if p.Connected && p.Role == RoleHost {
			hosts++
		}
	}
	if hosts > 1 {
		return fmt.Errorf("%w: %d connected players claim host", ErrInvariantViolation, hosts)
	}
	return nil
}
