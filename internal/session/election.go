package session

import (
	"github.com/duelsync/duelsync/internal/game"
	"github.com/duelsync/duelsync/internal/relay"
)

// Host election. Exactly one peer is authoritative at any settled moment.
// The two rules:
//
//   - Demotion (split-brain guard): a peer that believes itself host and
//     finds another host claim already in the channel defers — the
//     established host wins, the newcomer drops to guest before it ever
//     broadcasts or ticks.
//   - Promotion: a seated guest that watches the host's membership removal
//     takes authority, pausing the match until play resumes.
//
// Every role change swaps the dispatch table atomically, so exactly one set
// of host-only intent handlers exists system-wide at a time.

// onSubscribed settles this peer's role against the roster snapshot and
// arms whichever side of the protocol it ends up on.
func (s *Session) onSubscribed() {
	demoted := false
	for _, m := range s.sub.Members() {
		s.roster[m.ID] = m
		if s.host && m.ID != s.me.ID && m.Host {
			demoted = true
		}
	}

	if demoted {
		s.logger.Warn().Msg("another host already present, demoting self to guest")
		s.host = false
		s.stor = nil
		s.persistRole()
	}

	if s.host {
		s.becomeAuthority()
		return
	}

	s.handlers = s.guestHandlers()
	if !demoted {
		// Cancelled by the first state broadcast; fires only if nobody
		// authoritative ever shows up. Presenters arm it too — watching a
		// dead room should fail the same way joining one does.
		s.noHost = s.clk.NewTimer(s.params.NoHostTimeout)
	}
	s.logger.Info().Msg("joined as guest, waiting for host state")
}

// becomeAuthority turns the local document into the source of truth: seat
// ourselves, reconcile anyone already in the channel, then start
// broadcasting (and ticking, if the restored clock was live).
func (s *Session) becomeAuthority() {
	s.stor = game.NewStore(s.state)
	s.handlers = s.hostHandlers()

	s.seatSelf()
	for _, m := range s.roster {
		if m.ID != s.me.ID {
			s.admitMember(m)
		}
	}

	st := s.stor.State()
	s.state = st
	s.syncEngine()
	s.broadcast()
	s.logger.Info().Uint64("version", st.Version).Msg("acting as host")
}

// seatSelf claims the host seat: fresh rooms get a new entry, a restored
// snapshot gets our old seat migrated to the new transport id by name.
func (s *Session) seatSelf() {
	if _, ok := s.state.Players[s.me.ID]; ok {
		return
	}
	for oldID, p := range s.state.Players {
		if p.Name == s.me.Name {
			if _, err := s.stor.Apply(game.ReconcilePlayer{OldID: oldID, NewID: s.me.ID, Role: game.RoleHost}); err != nil {
				s.logger.Warn().Err(err).Msg("could not reclaim host seat")
			}
			s.state = s.stor.State()
			return
		}
	}
	if _, err := s.stor.Apply(game.AddPlayer{ID: s.me.ID, Name: s.me.Name, Role: game.RoleHost, Color: hostColor}); err != nil {
		s.logger.Warn().Err(err).Msg("could not seat host")
	}
	s.state = s.stor.State()
}

// promote is the guest side of a host hand-off, run when the member whose
// seat holds the host role leaves the channel. Only seated competitors
// promote; spectators keep watching.
func (s *Session) promote(removed relay.Member) {
	if _, seated := s.state.Players[s.me.ID]; !seated {
		s.logger.Info().Msg("host left but this peer is not seated, staying read-only")
		return
	}

	s.logger.Info().Str("old_host", removed.ID).Msg("host disconnected, assuming authority")
	s.host = true
	s.stor = game.NewStore(s.state)
	s.handlers = s.hostHandlers()
	s.cancelNoHost()
	s.persistRole()

	s.commit(game.PromoteHost{NewHostID: s.me.ID, OldHostID: removed.ID})
}

func (s *Session) cancelNoHost() {
	if s.noHost != nil {
		s.noHost.Stop()
		s.noHost = nil
	}
}

// handleNoHostTimeout fires when the guest's arm timeout lapses with no
// broadcast received. If the roster still shows no host claim the room is
// dead; reports whether the session ended.
func (s *Session) handleNoHostTimeout() bool {
	for _, m := range s.roster {
		if m.Host {
			return false // host is there, just slow; keep waiting
		}
	}
	s.logger.Warn().Msg("no host found in room, leaving")
	s.clearLocal(false)
	s.end(ReasonNoHost, ErrNoHostFound)
	return true
}

// hostHandlers is the authoritative dispatch table: intents in, nothing
// else honored.
func (s *Session) hostHandlers() map[relay.Kind]func(relay.Envelope) {
	return map[relay.Kind]func(relay.Envelope){
		relay.KindIntentProgress: s.handleProgressIntent,
		relay.KindIntentEndTurn:  s.handleEndTurnIntent,
		relay.KindIntentScoop:    s.handleScoopIntent,
	}
}

// guestHandlers is the replica dispatch table: broadcasts overwrite, the
// end of the session tears down.
func (s *Session) guestHandlers() map[relay.Kind]func(relay.Envelope) {
	return map[relay.Kind]func(relay.Envelope){
		relay.KindStateBroadcast: s.handleStateBroadcast,
		relay.KindSessionEnded:   s.handleSessionEnded,
	}
}
