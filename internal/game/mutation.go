package game

import (
	"errors"
	"fmt"
)

// ErrRoomFull is returned when a join would exceed the two seated players.
var ErrRoomFull = errors.New("room already has two players")

// Mutation is a pure step from one document to the next. The set of
// mutations is closed: the unexported step method keeps outside packages
// from adding their own, so the host's dispatch can match exhaustively.
type Mutation interface {
	step(s *State) error
}

// AddPlayer seats a new member. Joiners beyond the two competitor seats are
// rejected; callers treat that as a spectator, not an error surface.
type AddPlayer struct {
	ID    string
	Name  string
	Role  Role
	Color string
}

func (m AddPlayer) step(s *State) error {
	if _, ok := s.Players[m.ID]; ok {
		return fmt.Errorf("%w: player %q already seated", ErrInvariantViolation, m.ID)
	}
	if len(s.Players) >= MaxPlayers {
		return ErrRoomFull
	}
	s.Players[m.ID] = &Player{
		ID:         m.ID,
		Name:       m.Name,
		Role:       m.Role,
		Connected:  true,
		Color:      m.Color,
		TakenItems: []int{},
	}
	return nil
}

// ReconcilePlayer migrates a disconnected seat to a reconnecting member's
// new transport id. Progress, win count, the chess-clock budget and the turn
// reference all move in the same rewrite so no intermediate state ever
// dangles on the old id.
type ReconcilePlayer struct {
	OldID string
	NewID string
	Role  Role
}

func (m ReconcilePlayer) step(s *State) error {
	p, ok := s.Players[m.OldID]
	if !ok {
		return fmt.Errorf("%w: no seat %q to reconcile", ErrInvariantViolation, m.OldID)
	}
	if _, ok := s.Players[m.NewID]; ok {
		return fmt.Errorf("%w: member %q already seated", ErrInvariantViolation, m.NewID)
	}
	delete(s.Players, m.OldID)
	p.ID = m.NewID
	p.Role = m.Role
	p.Connected = true
	s.Players[m.NewID] = p

	if w, ok := s.Wins[m.OldID]; ok {
		delete(s.Wins, m.OldID)
		s.Wins[m.NewID] = w
	}
	if t, ok := s.Clock.RemainingMs[m.OldID]; ok {
		delete(s.Clock.RemainingMs, m.OldID)
		s.Clock.RemainingMs[m.NewID] = t
	}
	if s.Turn == m.OldID {
		s.Turn = m.NewID
	}
	if s.ResumeTurn == m.OldID {
		s.ResumeTurn = m.NewID
	}
	return nil
}

// MarkDisconnected flags a seat offline and, when a game was in flight,
// parks the match until the seat comes back.
type MarkDisconnected struct {
	ID string
}

func (m MarkDisconnected) step(s *State) error {
	p, ok := s.Players[m.ID]
	if !ok {
		return fmt.Errorf("%w: unknown player %q", ErrInvariantViolation, m.ID)
	}
	p.Connected = false
	if s.Turn == m.ID {
		s.ResumeTurn = m.ID
		s.Turn = ""
	}
	if s.Status == StatusActive || s.Status == StatusOvertime {
		s.Status = StatusPaused
	}
	s.Clock.Running = false
	return nil
}

// Resume puts a paused match back in play once both seats are online again.
// The clock picks up where the pause left it; a pause that interrupted
// overtime resumes into overtime.
type Resume struct {
	Turn string // optional: restore the turn cleared by the disconnect
}

func (m Resume) step(s *State) error {
	if s.Status != StatusPaused {
		return fmt.Errorf("%w: resume from status %s", ErrInvariantViolation, s.Status)
	}
	if s.ConnectedCount() < MaxPlayers {
		return fmt.Errorf("%w: resume with %d connected players", ErrInvariantViolation, s.ConnectedCount())
	}
	s.Status = StatusActive
	switch {
	case m.Turn != "":
		s.Turn = m.Turn
	case s.Turn == "" && s.ResumeTurn != "":
		s.Turn = s.ResumeTurn
	}
	s.ResumeTurn = ""
	// A spent shared budget means the pause interrupted overtime; play
	// continues there without a running clock.
	if s.Clock.Mode == ClockShared && s.Clock.LimitMs > 0 && s.Clock.ElapsedMs >= s.Clock.LimitMs {
		s.Status = StatusOvertime
		return nil
	}
	s.Clock.Running = true
	return nil
}

// PromoteHost performs the host hand-off after the previous host's
// membership removal: the surviving seat takes authority, the departed host
// is parked, and the match pauses until play is explicitly resumed.
type PromoteHost struct {
	NewHostID string
	OldHostID string
}

func (m PromoteHost) step(s *State) error {
	np, ok := s.Players[m.NewHostID]
	if !ok {
		return fmt.Errorf("%w: promoting unseated member %q", ErrInvariantViolation, m.NewHostID)
	}
	if op, ok := s.Players[m.OldHostID]; ok {
		op.Role = RoleGuest
		op.Connected = false
		if s.Turn == m.OldHostID {
			s.ResumeTurn = m.OldHostID
			s.Turn = ""
		}
	}
	np.Role = RoleHost
	np.Connected = true
	if s.Status == StatusActive || s.Status == StatusOvertime {
		s.Status = StatusPaused
	}
	s.Clock.Running = false
	return nil
}

// Progress is an absolute replacement for a player's counters. The host
// always assigns whole values, never deltas, which is what makes duplicate
// intent delivery harmless.
type Progress struct {
	TakenItems  []int
	Accumulator *int
}

// SetProgress overwrites one player's progress with the announced value.
type SetProgress struct {
	PlayerID string
	Progress Progress
}

func (m SetProgress) step(s *State) error {
	p, ok := s.Players[m.PlayerID]
	if !ok {
		return fmt.Errorf("%w: progress for unknown player %q", ErrInvariantViolation, m.PlayerID)
	}
	if m.Progress.TakenItems != nil {
		p.TakenItems = append([]int(nil), m.Progress.TakenItems...)
	}
	if m.Progress.Accumulator != nil {
		if *m.Progress.Accumulator < 0 {
			return fmt.Errorf("%w: negative accumulator for %q", ErrInvariantViolation, m.PlayerID)
		}
		p.Accumulator = *m.Progress.Accumulator
	}
	return nil
}

// SetTurn hands the turn to a player. Validation of the target being seated
// and connected rides on the document invariants.
type SetTurn struct {
	PlayerID string
}

func (m SetTurn) step(s *State) error {
	if s.Status != StatusActive && s.Status != StatusOvertime {
		return fmt.Errorf("%w: turn change while status is %s", ErrInvariantViolation, s.Status)
	}
	s.Turn = m.PlayerID
	return nil
}

// MarkWinnerAnnounced stamps the one-shot gate that keeps terminal
// side effects from firing twice across refreshes and re-broadcasts.
type MarkWinnerAnnounced struct{}

func (MarkWinnerAnnounced) step(s *State) error {
	if !s.Status.Terminal() {
		return fmt.Errorf("%w: winner announced while status is %s", ErrInvariantViolation, s.Status)
	}
	s.WinnerAnnounced = true
	return nil
}

// ClockTick advances the clock by a measured wall-clock delta. Expiry folds
// into the same commit: the shared countdown clamps and moves to overtime,
// the chess clock clamps and awards the round to the opponent of whoever
// held the turn.
type ClockTick struct {
	DeltaMs int64
}

func (m ClockTick) step(s *State) error {
	if !s.Clock.Running {
		return fmt.Errorf("%w: tick while clock stopped", ErrInvariantViolation)
	}
	if m.DeltaMs < 0 {
		return fmt.Errorf("%w: negative tick delta", ErrInvariantViolation)
	}
	switch s.Clock.Mode {
	case ClockPerPlayer:
		turn := s.Turn
		if turn == "" {
			return fmt.Errorf("%w: tick with nobody holding the turn", ErrInvariantViolation)
		}
		rem, ok := s.Clock.RemainingMs[turn]
		if !ok {
			return fmt.Errorf("%w: no clock budget for %q", ErrInvariantViolation, turn)
		}
		rem -= m.DeltaMs
		if rem <= 0 {
			s.Clock.RemainingMs[turn] = 0
			s.Clock.Running = false
			opponent := s.Opponent(turn)
			s.Turn = ""
			s.ResumeTurn = ""
			awardWin(s, opponent)
			return nil
		}
		s.Clock.RemainingMs[turn] = rem
	default:
		s.Clock.ElapsedMs += m.DeltaMs
		if s.Clock.LimitMs > 0 && s.Clock.ElapsedMs >= s.Clock.LimitMs {
			s.Clock.ElapsedMs = s.Clock.LimitMs
			s.Clock.Running = false
			s.Status = StatusOvertime
		}
	}
	return nil
}
