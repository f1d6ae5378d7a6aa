package relayd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/duelsync/duelsync/internal/relay"
)

// subjectPrefix namespaces all bridged traffic. One subject per channel
// keeps NATS per-publisher ordering aligned with the per-channel ordering
// the protocol needs.
const subjectPrefix = "relay.room."

// bridgeMessage wraps a frame with the originating instance so an instance
// can skip its own traffic coming back off the wire.
type bridgeMessage struct {
	Origin  string      `json:"origin"`
	Channel string      `json:"channel"`
	Frame   relay.Frame `json:"frame"`
}

// Bridge fans every channel frame through NATS so relayd instances serving
// the same room stay consistent.
type Bridge struct {
	instanceID string
	nc         *nats.Conn
	hub        *Hub
}

// NewBridge connects to NATS and subscribes to all room subjects.
func NewBridge(url string, hub *Hub) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &Bridge{
		instanceID: uuid.New().String(),
		nc:         nc,
		hub:        hub,
	}

	if _, err := nc.Subscribe(subjectPrefix+">", b.handle); err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to room subjects: %w", err)
	}

	log.Info().Str("instance", b.instanceID).Str("url", url).Msg("relay bridge connected")
	return b, nil
}

// publish mirrors a local frame onto the channel's subject.
func (b *Bridge) publish(channel string, frame relay.Frame) {
	msg := bridgeMessage{Origin: b.instanceID, Channel: channel, Frame: frame}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal bridge message")
		return
	}
	if err := b.nc.Publish(subjectPrefix+channel, data); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("bridge publish failed")
	}
}

func (b *Bridge) handle(m *nats.Msg) {
	var msg bridgeMessage
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed bridge message")
		return
	}
	if msg.Origin == b.instanceID {
		return // already delivered locally
	}
	b.hub.fromBridge(msg.Channel, msg.Frame)
}

// Close drains the NATS connection.
func (b *Bridge) Close() {
	b.nc.Drain()
}
