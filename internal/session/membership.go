package session

import (
	"github.com/duelsync/duelsync/internal/game"
	"github.com/duelsync/duelsync/internal/relay"
)

// Membership tracking. The host is the only peer that edits seats; guests
// watch presence solely to notice the host vanishing.

func (s *Session) handlePresence(ev relay.PresenceEvent) {
	switch ev.Kind {
	case relay.MemberAdded:
		s.roster[ev.Member.ID] = ev.Member
		if s.host && ev.Member.ID != s.me.ID {
			s.admitMember(ev.Member)
			s.broadcast()
		}
	case relay.MemberRemoved:
		delete(s.roster, ev.Member.ID)
		if ev.Member.ID == s.me.ID {
			return
		}
		if s.host {
			s.seatLost(ev.Member)
		} else if p, ok := s.state.Players[ev.Member.ID]; ok && p.Role == game.RoleHost {
			// Only the host's removal triggers promotion; any other
			// departure is the host's problem to report.
			s.promote(ev.Member)
		}
	}
}

// admitMember is the host-side reconciliation: a disconnected seat with the
// same display name means a reconnecting player, whose whole identity —
// progress, win count, clock budget, turn — migrates to the new transport
// id in one rewrite. Otherwise a free seat means a fresh player, and a full
// table means a spectator, who is never seated.
func (s *Session) admitMember(m relay.Member) {
	if _, ok := s.state.Players[m.ID]; ok {
		return
	}

	for oldID, p := range s.state.Players {
		if p.Name == m.Name && !p.Connected {
			if _, err := s.stor.Apply(game.ReconcilePlayer{OldID: oldID, NewID: m.ID, Role: game.RoleGuest}); err != nil {
				s.logger.Warn().Err(err).Str("member_id", m.ID).Msg("reconciliation dropped")
				return
			}
			s.state = s.stor.State()
			s.logger.Info().Str("name", m.Name).Str("old_id", oldID).Str("new_id", m.ID).
				Msg("player reconnected, seat migrated")
			s.maybeResume()
			return
		}
	}

	if len(s.state.Players) < game.MaxPlayers {
		if _, err := s.stor.Apply(game.AddPlayer{ID: m.ID, Name: m.Name, Role: game.RoleGuest, Color: guestColor}); err != nil {
			s.logger.Warn().Err(err).Str("member_id", m.ID).Msg("seating dropped")
			return
		}
		s.state = s.stor.State()
		s.logger.Info().Str("name", m.Name).Str("member_id", m.ID).Msg("player joined")
		return
	}

	// Reconciliation miss with a full table: presenter or spectator.
	s.logger.Info().Str("name", m.Name).Str("member_id", m.ID).
		Msg("no free seat, member joins as spectator")
}

// maybeResume puts a paused match back in play once both seats are online.
func (s *Session) maybeResume() {
	if s.state.Status != game.StatusPaused || s.state.ConnectedCount() < game.MaxPlayers {
		return
	}
	if err := s.commit(game.Resume{}); err == nil {
		s.logger.Info().Msg("both players connected, match resumed")
	}
}

// seatLost parks a departing player's seat and pauses a live game. Unknown
// members (spectators) leave without a trace.
func (s *Session) seatLost(m relay.Member) {
	if _, ok := s.state.Players[m.ID]; !ok {
		return
	}
	s.commit(game.MarkDisconnected{ID: m.ID})
	s.logger.Info().Str("member_id", m.ID).Msg("player disconnected, match paused")
}
