// Package relay abstracts the pub/sub plane that synchronizes peers: a
// presence channel per room that tracks membership, attaches a sender
// identity to every published message, and never echoes a message back to
// its publisher. Delivery to each subscriber is in publish order; the
// replication protocol leans on that plus full-overwrite broadcasts.
package relay

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing on a closed subscription.
var ErrClosed = errors.New("subscription closed")

// Identity is what a peer announces about itself when joining a channel.
type Identity struct {
	Name string `json:"name"`
	Host bool   `json:"host"`
}

// Member is a channel participant as seen by the relay: an opaque id that
// changes across reconnects plus the announced identity.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host bool   `json:"host"`
}

// PresenceKind tags membership changes.
type PresenceKind string

const (
	MemberAdded   PresenceKind = "member_added"
	MemberRemoved PresenceKind = "member_removed"
)

// PresenceEvent is one membership change on a channel.
type PresenceEvent struct {
	Kind   PresenceKind `json:"kind"`
	Member Member       `json:"member"`
}

// Transport opens presence channels. Implementations: the websocket client
// against relayd, and the in-process hub used by tests and local matches.
type Transport interface {
	Subscribe(ctx context.Context, channel string, self Identity) (Subscription, error)
}

// Subscription is one peer's attachment to a channel. Members returns the
// roster snapshot taken at subscribe time (the subscriber included); later
// changes arrive on Presence. Close is idempotent and eventually surfaces
// to other members as a member_removed.
type Subscription interface {
	Me() Member
	Members() []Member
	Presence() <-chan PresenceEvent
	Events() <-chan Envelope
	Publish(kind Kind, payload any) error
	Close() error
}
