package session

import (
	"github.com/duelsync/duelsync/internal/game"
	"github.com/duelsync/duelsync/internal/relay"
)

// ActionRouter surface: every user gesture lands on one of these methods,
// which resolve the same question — am I host? The host path mutates the
// store and broadcasts; the guest path publishes the matching intent and
// waits for the next broadcast to observe the effect. All methods are safe
// to call from any goroutine; they run on the session loop.

// State returns the peer's current copy of the document.
func (s *Session) State() game.State {
	var st game.State
	if err := s.do(func() error {
		st = s.state.Clone()
		return nil
	}); err != nil {
		return game.State{}
	}
	return st
}

// IsHost reports whether this peer currently holds authority.
func (s *Session) IsHost() bool {
	host := false
	s.do(func() error {
		host = s.host
		return nil
	})
	return host
}

// Me returns the relay identity this session is seated under.
func (s *Session) Me() relay.Member {
	var m relay.Member
	s.do(func() error {
		m = s.me
		return nil
	})
	return m
}

// StartGame begins play with the chosen first player. Host only; both
// competitors must be connected.
func (s *Session) StartGame(firstPlayerID string) error {
	return s.do(func() error {
		if !s.host {
			return ErrNotHost
		}
		if s.state.ConnectedCount() < game.MaxPlayers {
			return ErrNotEnoughPlayers
		}
		return s.commit(game.StartGame{
			FirstPlayerID: firstPlayerID,
			FirstGame:     s.state.Status == game.StatusWaiting,
			NowMs:         s.clk.Now().UnixMilli(),
		})
	})
}

// NextGame begins the following game of a best-of-three once a round has
// been decided. Host only.
func (s *Session) NextGame(firstPlayerID string) error {
	return s.do(func() error {
		if !s.host {
			return ErrNotHost
		}
		if s.state.Status != game.StatusGameOver {
			return ErrNoDecidedRound
		}
		if s.state.ConnectedCount() < game.MaxPlayers {
			return ErrNotEnoughPlayers
		}
		return s.commit(game.StartGame{
			FirstPlayerID: firstPlayerID,
			NowMs:         s.clk.Now().UnixMilli(),
		})
	})
}

// RestartRound wipes the match back to waiting. Host only.
func (s *Session) RestartRound() error {
	return s.do(func() error {
		if !s.host {
			return ErrNotHost
		}
		return s.commit(game.RestartRound{})
	})
}

// IssueWin is the host's manual override, awarding the round outright.
func (s *Session) IssueWin(winnerID string) error {
	return s.do(func() error {
		if !s.host {
			return ErrNotHost
		}
		if s.state.ConnectedCount() < game.MaxPlayers {
			return ErrNotEnoughPlayers
		}
		return s.commit(game.AwardWin{WinnerID: winnerID})
	})
}

// DeclareTie ends a stalemate: the win-table leader takes the match, a
// level table records a genuine tie. Host only.
func (s *Session) DeclareTie() error {
	return s.do(func() error {
		if !s.host {
			return ErrNotHost
		}
		if s.state.ConnectedCount() < game.MaxPlayers {
			return ErrNotEnoughPlayers
		}
		return s.commit(game.DeclareTie{})
	})
}

// Scoop concedes the round to the opponent.
func (s *Session) Scoop() error {
	return s.do(func() error {
		if s.host {
			if s.state.ConnectedCount() < game.MaxPlayers {
				return ErrNotEnoughPlayers
			}
			return s.commit(game.Scoop{LoserID: s.me.ID})
		}
		return s.sub.Publish(relay.KindIntentScoop, struct{}{})
	})
}

// EndTurn hands the turn to the opponent.
func (s *Session) EndTurn() error {
	return s.do(func() error {
		if s.state.Turn != s.me.ID {
			return ErrNotYourTurn
		}
		next := s.state.Opponent(s.me.ID)
		if s.host {
			return s.commit(game.SetTurn{PlayerID: next})
		}
		return s.sub.Publish(relay.KindIntentEndTurn, relay.EndTurnPayload{NextPlayerID: next})
	})
}

// SetProgress announces this player's absolute progress value.
func (s *Session) SetProgress(p game.Progress) error {
	return s.do(func() error {
		if s.host {
			s.applyProgress(s.me.ID, p)
			return nil
		}
		return s.sub.Publish(relay.KindIntentProgress, relay.ProgressPayload{
			TakenItems:  p.TakenItems,
			Accumulator: p.Accumulator,
		})
	})
}

// EndSession tears the room down for everyone. Host only.
func (s *Session) EndSession() error {
	return s.do(func() error {
		if !s.host {
			return ErrNotHost
		}
		if err := s.sub.Publish(relay.KindSessionEnded, struct{}{}); err != nil {
			s.logger.Error().Err(err).Msg("session-ended publish failed")
		}
		s.clearLocal(true)
		s.end(ReasonLeft, nil)
		return nil
	})
}

// Leave detaches this peer only; the descriptor is cleared so a restart
// goes back to the lobby, but the host snapshot survives.
func (s *Session) Leave() error {
	return s.do(func() error {
		s.clearLocal(false)
		s.end(ReasonLeft, nil)
		return nil
	})
}
