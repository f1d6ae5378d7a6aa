package game

import "fmt"

// Round and match progression. Every transition here stops the clock in the
// same commit that changes the match status, so replicas never observe a
// running clock on a decided round.

// StartGame moves waiting → active with a chosen first player. FirstGame
// zeroes the win table and arms the clock; a follow-up game in a
// best-of-three keeps the win table and the shared countdown, resets
// per-round progress and advances the game index.
type StartGame struct {
	FirstPlayerID string
	FirstGame     bool
	NowMs         int64
}

func (m StartGame) step(s *State) error {
	if s.Status == StatusActive || s.Status == StatusOvertime {
		return fmt.Errorf("%w: start while status is %s", ErrInvariantViolation, s.Status)
	}
	s.Status = StatusActive
	s.Turn = m.FirstPlayerID
	s.ResumeTurn = ""
	s.RoundWinnerID = ""
	s.MatchWinnerID = ""
	s.IsTie = false
	s.WinnerAnnounced = false

	if m.FirstGame {
		s.CurrentGame = 1
		s.Clock.Running = true
		s.Clock.StartedAt = m.NowMs
		s.Clock.ElapsedMs = 0
		for pid := range s.Players {
			s.Wins[pid] = 0
		}
		if s.Clock.Mode == ClockPerPlayer {
			for pid := range s.Players {
				s.Clock.RemainingMs[pid] = s.Clock.PerPlayerMs
			}
		}
		return nil
	}

	for _, p := range s.Players {
		p.TakenItems = []int{}
		p.Accumulator = 0
	}
	s.CurrentGame++
	// The shared round budget spans the whole match; keep it counting down
	// unless it already ran out.
	if s.Clock.Mode == ClockShared && (s.Clock.LimitMs == 0 || s.Clock.ElapsedMs < s.Clock.LimitMs) {
		s.Clock.Running = true
	}
	return nil
}

// awardWin assigns the round and, depending on the match mode and the win
// table, either closes the match or parks the round for the next game.
func awardWin(s *State, winnerID string) {
	s.Clock.Running = false
	if winnerID == "" {
		return
	}
	s.RoundWinnerID = winnerID

	if s.MatchMode == ModeBestOfThree {
		s.Wins[winnerID]++
		if s.Wins[winnerID] >= WinsNeeded {
			s.MatchWinnerID = winnerID
			s.Status = StatusFinished
		} else {
			s.Status = StatusGameOver
		}
		return
	}
	s.MatchWinnerID = winnerID
	s.Status = StatusFinished
}

// AwardWin is the host's win assignment: threshold crossings, manual
// "issue win" overrides and chess-clock timeouts all route through it.
type AwardWin struct {
	WinnerID string
}

func (m AwardWin) step(s *State) error {
	if _, ok := s.Players[m.WinnerID]; !ok {
		return fmt.Errorf("%w: award to unknown player %q", ErrInvariantViolation, m.WinnerID)
	}
	if s.Status != StatusActive && s.Status != StatusOvertime {
		return fmt.Errorf("%w: award while status is %s", ErrInvariantViolation, s.Status)
	}
	s.Turn = ""
	s.ResumeTurn = ""
	awardWin(s, m.WinnerID)
	return nil
}

// Scoop is a concession: the remaining seat takes the round.
type Scoop struct {
	LoserID string
}

func (m Scoop) step(s *State) error {
	if _, ok := s.Players[m.LoserID]; !ok {
		return fmt.Errorf("%w: scoop from unknown player %q", ErrInvariantViolation, m.LoserID)
	}
	winner := s.Opponent(m.LoserID)
	if winner == "" {
		return fmt.Errorf("%w: scoop with no opponent seated", ErrInvariantViolation)
	}
	return AwardWin{WinnerID: winner}.step(s)
}

// DeclareTie is the host's stalemate breaker: whoever leads the win table
// takes the round, a level table is recorded as a genuine tie. Either way
// the match ends.
type DeclareTie struct{}

func (m DeclareTie) step(s *State) error {
	if s.Status != StatusActive && s.Status != StatusOvertime {
		return fmt.Errorf("%w: tie declared while status is %s", ErrInvariantViolation, s.Status)
	}
	var a, b *Player
	for _, p := range s.Players {
		if !p.Connected {
			continue
		}
		if a == nil {
			a = p
		} else {
			b = p
		}
	}
	if a == nil || b == nil {
		s.IsTie = true
	} else if s.Wins[a.ID] > s.Wins[b.ID] {
		s.RoundWinnerID = a.ID
		s.MatchWinnerID = a.ID
	} else if s.Wins[b.ID] > s.Wins[a.ID] {
		s.RoundWinnerID = b.ID
		s.MatchWinnerID = b.ID
	} else {
		s.IsTie = true
	}
	s.Turn = ""
	s.ResumeTurn = ""
	s.Status = StatusFinished
	s.Clock.Running = false
	return nil
}

// RestartRound wipes the match back to waiting: progress, win table, clock
// and outcome fields all reset; seats and settings survive.
type RestartRound struct{}

func (RestartRound) step(s *State) error {
	for _, p := range s.Players {
		p.TakenItems = []int{}
		p.Accumulator = 0
	}
	s.Status = StatusWaiting
	s.Turn = ""
	s.ResumeTurn = ""
	s.CurrentGame = 1
	s.Wins = map[string]int{}
	s.RoundWinnerID = ""
	s.MatchWinnerID = ""
	s.IsTie = false
	s.WinnerAnnounced = false
	s.Clock.Running = false
	s.Clock.StartedAt = 0
	s.Clock.ElapsedMs = 0
	s.Clock.RemainingMs = map[string]int64{}
	return nil
}
