package session

import (
	"github.com/duelsync/duelsync/internal/game"
	"github.com/duelsync/duelsync/internal/relay"
)

// Guest-side handlers.

// handleStateBroadcast replaces the replica wholesale. The version stamp
// makes duplicates harmless and refuses to roll the replica backward if the
// relay ever redelivers a stale snapshot.
func (s *Session) handleStateBroadcast(env relay.Envelope) {
	payload, err := env.Payload()
	if err != nil {
		s.logger.Warn().Err(err).Msg("ignoring malformed broadcast")
		return
	}
	snap := payload.(game.State)

	s.cancelNoHost()

	if snap.Version <= s.state.Version {
		s.logger.Debug().
			Uint64("held", s.state.Version).
			Uint64("received", snap.Version).
			Msg("discarding stale snapshot")
		return
	}

	s.state = snap
	if s.params.Hooks.OnState != nil {
		s.params.Hooks.OnState(s.state)
	}
}

func (s *Session) handleSessionEnded(env relay.Envelope) {
	s.logger.Info().Str("sender", env.Sender.ID).Msg("host ended the session")
	s.clearLocal(true)
	s.end(ReasonHostEnded, nil)
}

// Host-side intent handlers. Intents referencing unknown players are
// dropped without a broadcast; the relay's sender identity, never the
// payload, says who is acting.

func (s *Session) handleProgressIntent(env relay.Envelope) {
	payload, err := env.Payload()
	if err != nil {
		s.logger.Warn().Err(err).Msg("ignoring malformed progress intent")
		return
	}
	p := payload.(relay.ProgressPayload)
	s.applyProgress(env.Sender.ID, game.Progress{
		TakenItems:  p.TakenItems,
		Accumulator: p.Accumulator,
	})
}

func (s *Session) handleEndTurnIntent(env relay.Envelope) {
	payload, err := env.Payload()
	if err != nil {
		s.logger.Warn().Err(err).Msg("ignoring malformed end-turn intent")
		return
	}
	p := payload.(relay.EndTurnPayload)
	if s.state.Turn != env.Sender.ID {
		// Duplicate or late: whoever sent it no longer holds the turn.
		s.logger.Debug().Str("sender", env.Sender.ID).Msg("ignoring end-turn from non-holder")
		return
	}
	s.commit(game.SetTurn{PlayerID: p.NextPlayerID})
}

func (s *Session) handleScoopIntent(env relay.Envelope) {
	if s.state.ConnectedCount() < game.MaxPlayers {
		s.logger.Debug().Msg("ignoring scoop without both players connected")
		return
	}
	if _, ok := s.state.Players[env.Sender.ID]; !ok {
		s.logger.Debug().Str("sender", env.Sender.ID).Msg("ignoring scoop from non-player")
		return
	}
	s.commit(game.Scoop{LoserID: env.Sender.ID})
}

// applyProgress overwrites a player's progress with the announced absolute
// value and assigns the win if it crosses the room's line. Used for both
// local host gestures and guest intents.
func (s *Session) applyProgress(playerID string, p game.Progress) {
	if err := s.commit(game.SetProgress{PlayerID: playerID, Progress: p}); err != nil {
		return
	}
	if !s.state.ProgressReached(playerID) {
		return
	}
	if s.state.Status != game.StatusActive && s.state.Status != game.StatusOvertime {
		return
	}
	if s.state.ConnectedCount() < game.MaxPlayers {
		return
	}
	s.commit(game.AwardWin{WinnerID: playerID})
}
