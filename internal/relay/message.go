package relay

import (
	"encoding/json"
	"fmt"

	"github.com/duelsync/duelsync/internal/game"
)

// Kind tags every message exchanged over a room channel. The set is closed:
// receivers match on it exhaustively and drop anything else.
type Kind string

const (
	// KindStateBroadcast carries the host's full document; replicas replace
	// their copy wholesale. Idempotent by construction.
	KindStateBroadcast Kind = "state-broadcast"
	// KindIntentProgress is a guest announcing its absolute progress value.
	KindIntentProgress Kind = "intent:update-progress"
	// KindIntentEndTurn is a guest handing the turn over.
	KindIntentEndTurn Kind = "intent:end-turn"
	// KindIntentScoop is a guest conceding the round.
	KindIntentScoop Kind = "intent:scoop"
	// KindSessionEnded is the host tearing the room down for everyone.
	KindSessionEnded Kind = "session-ended"
)

// ProgressPayload carries an absolute progress value. The sender's identity
// is taken from the envelope, never from the payload.
type ProgressPayload struct {
	TakenItems  []int `json:"takenItems,omitempty"`
	Accumulator *int  `json:"accumulator,omitempty"`
}

// EndTurnPayload names the player the sender hands the turn to.
type EndTurnPayload struct {
	NextPlayerID string `json:"nextPlayerId"`
}

// Envelope is a delivered channel message with the relay-attached sender.
type Envelope struct {
	Kind   Kind            `json:"kind"`
	Sender Member          `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

// Payload decodes the envelope's data into the payload type for its kind.
// Unknown kinds are an error; the closed union keeps this exhaustive.
func (e Envelope) Payload() (any, error) {
	switch e.Kind {
	case KindStateBroadcast:
		var s game.State
		if err := json.Unmarshal(e.Data, &s); err != nil {
			return nil, fmt.Errorf("decode state broadcast: %w", err)
		}
		return s, nil
	case KindIntentProgress:
		var p ProgressPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("decode progress intent: %w", err)
		}
		return p, nil
	case KindIntentEndTurn:
		var p EndTurnPayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, fmt.Errorf("decode end-turn intent: %w", err)
		}
		return p, nil
	case KindIntentScoop, KindSessionEnded:
		return struct{}{}, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", e.Kind)
	}
}
