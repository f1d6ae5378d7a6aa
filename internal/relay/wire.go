package relay

import "encoding/json"

// Frame is the websocket wire format between a peer and relayd. One struct
// covers both directions; Type says which fields matter.
type Frame struct {
	Type string `json:"type"`

	// welcome
	Member  *Member  `json:"member,omitempty"`
	Members []Member `json:"members,omitempty"`

	// event / publish
	Event  Kind            `json:"event,omitempty"`
	Sender *Member         `json:"sender,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Frame types.
const (
	FrameWelcome       = "welcome"
	FrameMemberAdded   = "member_added"
	FrameMemberRemoved = "member_removed"
	FrameEvent         = "event"
	FramePublish       = "publish"
)
