package relayd

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelsync/duelsync/internal/relay"
)

func newTestRelay(t *testing.T) (*httptest.Server, *relay.WSTransport) {
	t.Helper()
	srv, err := New(Config{
		WriteTimeout:    5 * time.Second,
		PongTimeout:     30 * time.Second,
		PingInterval:    10 * time.Second,
		MaxMessageBytes: 65536,
		SendBuffer:      64,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, relay.NewWSTransport("ws" + strings.TrimPrefix(ts.URL, "http") + "/ws")
}

func waitPresence(t *testing.T, ch <-chan relay.PresenceEvent) relay.PresenceEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence event")
		return relay.PresenceEvent{}
	}
}

func waitEvent(t *testing.T, ch <-chan relay.Envelope) relay.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return relay.Envelope{}
	}
}

func TestRelayd_PresenceAndFanout(t *testing.T) {
	_, transport := newTestRelay(t)
	ctx := context.Background()

	host, err := transport.Subscribe(ctx, "room-77", relay.Identity{Name: "Alex", Host: true})
	require.NoError(t, err)
	defer host.Close()

	require.Len(t, host.Members(), 1)
	assert.Equal(t, "Alex", host.Members()[0].Name)
	assert.NotEmpty(t, host.Me().ID, "relay assigns the member id")

	guest, err := transport.Subscribe(ctx, "room-77", relay.Identity{Name: "Brook"})
	require.NoError(t, err)
	defer guest.Close()

	require.Len(t, guest.Members(), 2, "joiner sees the full roster")

	added := waitPresence(t, host.Presence())
	assert.Equal(t, relay.MemberAdded, added.Kind)
	assert.Equal(t, guest.Me().ID, added.Member.ID)

	require.NoError(t, guest.Publish(relay.KindIntentScoop, struct{}{}))
	env := waitEvent(t, host.Events())
	assert.Equal(t, relay.KindIntentScoop, env.Kind)
	assert.Equal(t, guest.Me().ID, env.Sender.ID, "relay attaches the sender identity")

	select {
	case env := <-guest.Events():
		t.Fatalf("publisher got its own %s back", env.Kind)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, guest.Close())
	removed := waitPresence(t, host.Presence())
	assert.Equal(t, relay.MemberRemoved, removed.Kind)
	assert.Equal(t, guest.Me().ID, removed.Member.ID)
}

func TestRelayd_OrderPreserved(t *testing.T) {
	_, transport := newTestRelay(t)
	ctx := context.Background()

	a, err := transport.Subscribe(ctx, "room-9", relay.Identity{Name: "Alex", Host: true})
	require.NoError(t, err)
	defer a.Close()
	b, err := transport.Subscribe(ctx, "room-9", relay.Identity{Name: "Brook"})
	require.NoError(t, err)
	defer b.Close()

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, a.Publish(relay.KindIntentEndTurn, relay.EndTurnPayload{NextPlayerID: string(rune('0' + i%10))}))
	}
	for i := 0; i < n; i++ {
		env := waitEvent(t, b.Events())
		var p relay.EndTurnPayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, string(rune('0'+i%10)), p.NextPlayerID, "delivery order matches publish order")
	}
}

func TestRelayd_RejectsMissingIdentity(t *testing.T) {
	ts, _ := newTestRelay(t)

	resp, err := ts.Client().Get(ts.URL + "/ws?channel=room-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}
