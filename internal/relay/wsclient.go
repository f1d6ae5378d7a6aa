package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// WSTransport subscribes to presence channels served by relayd.
type WSTransport struct {
	endpoint string // e.g. ws://relay.example.com/ws
	dialer   *websocket.Dialer
}

// NewWSTransport points at a relayd websocket endpoint.
func NewWSTransport(endpoint string) *WSTransport {
	return &WSTransport{endpoint: endpoint, dialer: websocket.DefaultDialer}
}

// Subscribe dials the relay, waits for the welcome frame carrying the
// assigned member id and the roster snapshot, and starts the read loop.
// A dial or handshake failure here is the peer's fatal transport error.
func (t *WSTransport) Subscribe(ctx context.Context, channel string, self Identity) (Subscription, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("relay endpoint: %w", err)
	}
	q := u.Query()
	q.Set("channel", channel)
	q.Set("name", self.Name)
	if self.Host {
		q.Set("host", "true")
	}
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	var welcome Frame
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != FrameWelcome || welcome.Member == nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected first frame %q", welcome.Type)
	}

	sub := &wsSub{
		conn:     conn,
		me:       *welcome.Member,
		roster:   welcome.Members,
		events:   make(chan Envelope, memoryBuffer),
		presence: make(chan PresenceEvent, memoryBuffer),
	}
	go sub.readLoop()
	return sub, nil
}

type wsSub struct {
	conn   *websocket.Conn
	me     Member
	roster []Member

	events   chan Envelope
	presence chan PresenceEvent

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func (s *wsSub) Me() Member { return s.me }

func (s *wsSub) Members() []Member {
	return append([]Member(nil), s.roster...)
}

func (s *wsSub) Presence() <-chan PresenceEvent { return s.presence }

func (s *wsSub) Events() <-chan Envelope { return s.events }

func (s *wsSub) Publish(kind Kind, payload any) error {
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

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteJSON(Frame{Type: FramePublish, Event: kind, Data: data}); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

func (s *wsSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *wsSub) readLoop() {
	defer func() {
		close(s.events)
		close(s.presence)
	}()

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Msg("relay connection lost")
			}
			return
		}

		switch frame.Type {
		case FrameMemberAdded:
			if frame.Member != nil {
				s.deliverPresence(PresenceEvent{Kind: MemberAdded, Member: *frame.Member})
			}
		case FrameMemberRemoved:
			if frame.Member != nil {
				s.deliverPresence(PresenceEvent{Kind: MemberRemoved, Member: *frame.Member})
			}
		case FrameEvent:
			if frame.Sender == nil {
				continue
			}
			s.deliverEvent(Envelope{Kind: frame.Event, Sender: *frame.Sender, Data: frame.Data})
		default:
			log.Warn().Str("type", frame.Type).Msg("ignoring unknown relay frame")
		}
	}
}

func (s *wsSub) deliverEvent(env Envelope) {
	select {
	case s.events <- env:
	default:
		log.Warn().Str("kind", string(env.Kind)).Msg("relay event buffer full, dropping")
	}
}

func (s *wsSub) deliverPresence(ev PresenceEvent) {
	select {
	case s.presence <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("relay presence buffer full, dropping")
	}
}
