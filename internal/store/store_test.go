package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duelsync/duelsync/internal/game"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "duelsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LoadSnapshot("12345")
	assert.ErrorIs(t, err, ErrNotFound)

	st := game.NewState(game.DefaultSettings())
	st.Version = 42
	st.Players["abc"] = &game.Player{ID: "abc", Name: "Alex", Role: game.RoleHost, Connected: true}

	require.NoError(t, db.SaveSnapshot("12345", st))

	got, err := db.LoadSnapshot("12345")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Version)
	require.Contains(t, got.Players, "abc")
	assert.Equal(t, "Alex", got.Players["abc"].Name)

	require.NoError(t, db.DeleteSnapshot("12345"))
	_, err = db.LoadSnapshot("12345")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, db.DeleteSnapshot("12345"), "deleting a missing snapshot is fine")
}

func TestDescriptorRoundTrip(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LoadDescriptor()
	assert.ErrorIs(t, err, ErrNotFound)

	set := game.DefaultSettings()
	require.NoError(t, db.SaveDescriptor(Descriptor{
		RoomCode: "55555",
		Host:     true,
		Name:     "Alex",
		View:     "gameRoom",
		Settings: &set,
	}))

	desc, err := db.LoadDescriptor()
	require.NoError(t, err)
	assert.True(t, desc.Host)
	assert.Equal(t, "55555", desc.RoomCode)
	require.NotNil(t, desc.Settings)
	assert.Equal(t, set.ThresholdTarget, desc.Settings.ThresholdTarget)

	// Role flips (promotion, demotion) are persisted by overwriting.
	desc.Host = false
	require.NoError(t, db.SaveDescriptor(desc))
	desc, err = db.LoadDescriptor()
	require.NoError(t, err)
	assert.False(t, desc.Host)

	require.NoError(t, db.ClearDescriptor())
	_, err = db.LoadDescriptor()
	assert.ErrorIs(t, err, ErrNotFound)
}
