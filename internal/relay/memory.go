package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const memoryBuffer = 512

// MemoryHub is an in-process Transport: every peer subscribing through the
// same hub shares its channels. It backs tests and same-process matches and
// gives the ordering guarantee for free (delivery happens under the channel
// lock, in publish order).
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[string][]*memorySub
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: make(map[string][]*memorySub)}
}

type memorySub struct {
	hub     *MemoryHub
	channel string
	me      Member
	roster  []Member

	events   chan Envelope
	presence chan PresenceEvent

	mu     sync.Mutex
	closed bool
}

// Subscribe attaches to a channel, snapshots the roster and announces the
// new member to everyone already there.
func (h *MemoryHub) Subscribe(_ context.Context, channel string, self Identity) (Subscription, error) {
	sub := &memorySub{
		hub:      h,
		channel:  channel,
		me:       Member{ID: uuid.New().String(), Name: self.Name, Host: self.Host},
		events:   make(chan Envelope, memoryBuffer),
		presence: make(chan PresenceEvent, memoryBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, peer := range h.rooms[channel] {
		sub.roster = append(sub.roster, peer.me)
		peer.deliverPresence(PresenceEvent{Kind: MemberAdded, Member: sub.me})
	}
	sub.roster = append(sub.roster, sub.me)
	h.rooms[channel] = append(h.rooms[channel], sub)
	return sub, nil
}

func (s *memorySub) Me() Member { return s.me }

func (s *memorySub) Members() []Member {
	return append([]Member(nil), s.roster...)
}

func (s *memorySub) Presence() <-chan PresenceEvent { return s.presence }

func (s *memorySub) Events() <-chan Envelope { return s.events }

// Publish fans the message out to every other member, sender attached.
func (s *memorySub) Publish(kind Kind, payload any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	env := Envelope{Kind: kind, Sender: s.me, Data: data}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for _, peer := range s.hub.rooms[s.channel] {
		if peer == s {
			continue // no echo to the publisher
		}
		peer.deliverEvent(env)
	}
	return nil
}

// Close detaches from the channel and emits member_removed to the others.
func (s *memorySub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	peers := s.hub.rooms[s.channel]
	for i, peer := range peers {
		if peer == s {
			s.hub.rooms[s.channel] = append(peers[:i:i], peers[i+1:]...)
			break
		}
	}
	for _, peer := range s.hub.rooms[s.channel] {
		peer.deliverPresence(PresenceEvent{Kind: MemberRemoved, Member: s.me})
	}
	return nil
}

func (s *memorySub) deliverEvent(env Envelope) {
	select {
	case s.events <- env:
	default:
		log.Warn().Str("member", s.me.ID).Str("kind", string(env.Kind)).
			Msg("memory relay buffer full, dropping event")
	}
}

func (s *memorySub) deliverPresence(ev PresenceEvent) {
	select {
	case s.presence <- ev:
	default:
		log.Warn().Str("member", s.me.ID).Str("kind", string(ev.Kind)).
			Msg("memory relay buffer full, dropping presence event")
	}
}
