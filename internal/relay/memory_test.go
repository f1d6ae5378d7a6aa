package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHub_RosterAndPresence(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "room-1", Identity{Name: "Alex", Host: true})
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "room-1", Identity{Name: "Brook"})
	require.NoError(t, err)

	assert.Len(t, a.Members(), 1, "snapshot taken at subscribe time")
	assert.Len(t, b.Members(), 2)
	assert.True(t, b.Members()[0].Host, "identity claims travel with the roster")

	added := <-a.Presence()
	assert.Equal(t, MemberAdded, added.Kind)
	assert.Equal(t, b.Me().ID, added.Member.ID)

	require.NoError(t, b.Close())
	removed := <-a.Presence()
	assert.Equal(t, MemberRemoved, removed.Kind)
	assert.Equal(t, b.Me().ID, removed.Member.ID)
}

func TestMemoryHub_PublishOrderAndNoEcho(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "room-2", Identity{Name: "Alex", Host: true})
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "room-2", Identity{Name: "Brook"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Publish(KindIntentEndTurn, EndTurnPayload{NextPlayerID: string(rune('a' + i))}))
	}

	for i := 0; i < 10; i++ {
		env := <-b.Events()
		assert.Equal(t, KindIntentEndTurn, env.Kind)
		assert.Equal(t, a.Me().ID, env.Sender.ID)
		var p EndTurnPayload
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, string(rune('a'+i)), p.NextPlayerID, "delivery preserves publish order")
	}

	select {
	case env := <-a.Events():
		t.Fatalf("publisher received its own %s", env.Kind)
	default:
	}

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Publish(KindIntentScoop, struct{}{}), ErrClosed)
	assert.NoError(t, a.Close(), "close is idempotent")
}

func TestEnvelope_PayloadUnion(t *testing.T) {
	acc := 7
	data, err := json.Marshal(ProgressPayload{Accumulator: &acc})
	require.NoError(t, err)

	p, err := Envelope{Kind: KindIntentProgress, Data: data}.Payload()
	require.NoError(t, err)
	assert.Equal(t, 7, *p.(ProgressPayload).Accumulator)

	_, err = Envelope{Kind: Kind("bogus"), Data: data}.Payload()
	assert.Error(t, err)
}
