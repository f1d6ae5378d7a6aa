// Package relayd implements the relay server peers synchronize through: a
// websocket presence channel per room. The relay assigns every connection an
// opaque member id, announces joins and leaves to the rest of the channel,
// and forwards published events to every other member with the sender
// identity attached. Instances can be bridged over NATS so peers connected
// to different relayds still share a room.
package relayd

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/duelsync/duelsync/internal/relay"
)

// Config holds the relay server's tunables.
type Config struct {
	Addr            string        `envconfig:"RELAYD_ADDR" default:":8080"`
	NATSURL         string        `envconfig:"RELAYD_NATS_URL"` // empty runs standalone
	WriteTimeout    time.Duration `envconfig:"RELAYD_WRITE_TIMEOUT" default:"10s"`
	PongTimeout     time.Duration `envconfig:"RELAYD_PONG_TIMEOUT" default:"60s"`
	PingInterval    time.Duration `envconfig:"RELAYD_PING_INTERVAL" default:"25s"`
	MaxMessageBytes int64         `envconfig:"RELAYD_MAX_MESSAGE_BYTES" default:"65536"`
	SendBuffer      int           `envconfig:"RELAYD_SEND_BUFFER" default:"256"`
}

// Server upgrades websocket connections and runs them against the hub.
type Server struct {
	cfg      Config
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a server. If cfg names a NATS URL the hub is bridged so other
// relayd instances serving the same channels receive every frame.
func New(cfg Config) (*Server, error) {
	hub := NewHub()
	if cfg.NATSURL != "" {
		bridge, err := NewBridge(cfg.NATSURL, hub)
		if err != nil {
			return nil, err
		}
		hub.bridge = bridge
	}
	return &Server{
		cfg: cfg,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Close drains the NATS bridge, if any.
func (s *Server) Close() {
	if s.hub.bridge != nil {
		s.hub.bridge.Close()
	}
}

// Handler returns the HTTP surface: the websocket endpoint plus health and
// roster probes, CORS-wrapped for browser peers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/channels/", s.handleChannelInfo)
	return cors.AllowAll().Handler(mux)
}

func (s *Server) handleChannelInfo(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Path[len("/channels/"):]
	if channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"channel": channel,
		"members": s.hub.memberCount(channel),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	host := r.URL.Query().Get("host") == "true"

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:     s.hub,
		cfg:     s.cfg,
		conn:    conn,
		channel: channel,
		member:  relay.Member{ID: uuid.New().String(), Name: name, Host: host},
		sendCh:  make(chan relay.Frame, s.cfg.SendBuffer),
	}

	s.hub.join(c)
	go c.writePump()
	go c.readPump()
}

// client is one websocket connection seated on a channel.
type client struct {
	hub     *Hub
	cfg     Config
	conn    *websocket.Conn
	channel string
	member  relay.Member
	sendCh  chan relay.Frame
}

// send queues a frame; a full buffer means the client is too slow to keep
// the ordering guarantee, so the connection is cut rather than skipped.
func (c *client) send(frame relay.Frame) {
	select {
	case c.sendCh <- frame:
	default:
		log.Warn().
			Str("member_id", c.member.ID).
			Str("channel", c.channel).
			Msg("send buffer full, dropping client")
		c.conn.Close()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Str("member_id", c.member.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		var frame relay.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("member_id", c.member.ID).Msg("unexpected close")
			}
			return
		}
		if frame.Type != relay.FramePublish || frame.Event == "" {
			log.Warn().
				Str("member_id", c.member.ID).
				Str("type", frame.Type).
				Msg("ignoring malformed client frame")
			continue
		}
		c.hub.publish(c, frame.Event, frame.Data)
	}
}
