package relayd

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/duelsync/duelsync/internal/relay"
)

// Hub is the channel registry: which clients sit on which channel, plus the
// members announced by peer relayd instances through the NATS bridge. All
// fan-out to local clients happens under the hub lock, in arrival order, so
// each subscriber observes messages in the order they were published.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[*client]bool
	remote   map[string]map[string]relay.Member // channel -> member id -> member

	bridge *Bridge // nil when running standalone
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*client]bool),
		remote:   make(map[string]map[string]relay.Member),
	}
}

// join seats a client on its channel, sends the welcome frame with the
// current roster and announces the newcomer to everyone else.
func (h *Hub) join(c *client) {
	h.mu.Lock()
	if h.channels[c.channel] == nil {
		h.channels[c.channel] = make(map[*client]bool)
	}

	roster := []relay.Member{}
	for peer := range h.channels[c.channel] {
		roster = append(roster, peer.member)
	}
	for _, m := range h.remote[c.channel] {
		roster = append(roster, m)
	}
	roster = append(roster, c.member)

	h.channels[c.channel][c] = true
	c.send(relay.Frame{Type: relay.FrameWelcome, Member: &c.member, Members: roster})

	added := relay.Frame{Type: relay.FrameMemberAdded, Member: &c.member}
	for peer := range h.channels[c.channel] {
		if peer != c {
			peer.send(added)
		}
	}
	h.mu.Unlock()

	if h.bridge != nil {
		h.bridge.publish(c.channel, added)
	}

	log.Info().
		Str("channel", c.channel).
		Str("member_id", c.member.ID).
		Str("name", c.member.Name).
		Bool("host", c.member.Host).
		Msg("member joined")
}

// leave removes a client and announces the removal.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	peers, ok := h.channels[c.channel]
	if !ok || !peers[c] {
		h.mu.Unlock()
		return
	}
	delete(peers, c)
	close(c.sendCh)
	if len(peers) == 0 {
		delete(h.channels, c.channel)
	}

	removed := relay.Frame{Type: relay.FrameMemberRemoved, Member: &c.member}
	for peer := range h.channels[c.channel] {
		peer.send(removed)
	}
	h.mu.Unlock()

	if h.bridge != nil {
		h.bridge.publish(c.channel, removed)
	}

	log.Info().
		Str("channel", c.channel).
		Str("member_id", c.member.ID).
		Msg("member left")
}

// publish forwards a client event to every other member of the channel with
// the sender identity attached, and hands it to the bridge.
func (h *Hub) publish(c *client, event relay.Kind, data json.RawMessage) {
	frame := relay.Frame{Type: relay.FrameEvent, Event: event, Sender: &c.member, Data: data}

	h.mu.Lock()
	for peer := range h.channels[c.channel] {
		if peer != c {
			peer.send(frame)
		}
	}
	h.mu.Unlock()

	if h.bridge != nil {
		h.bridge.publish(c.channel, frame)
	}
}

// fromBridge applies a frame that originated on another relayd instance:
// fan out to local clients and keep the remote roster current.
func (h *Hub) fromBridge(channel string, frame relay.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch frame.Type {
	case relay.FrameMemberAdded:
		if frame.Member != nil {
			if h.remote[channel] == nil {
				h.remote[channel] = make(map[string]relay.Member)
			}
			h.remote[channel][frame.Member.ID] = *frame.Member
		}
	case relay.FrameMemberRemoved:
		if frame.Member != nil {
			delete(h.remote[channel], frame.Member.ID)
		}
	}

	for peer := range h.channels[channel] {
		peer.send(frame)
	}
}

// memberCount reports seated clients, local and remote, for one channel.
func (h *Hub) memberCount(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel]) + len(h.remote[channel])
}
