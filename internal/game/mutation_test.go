package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPlayer_ThirdSeatRejected(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	_, err := st.Apply(AddPlayer{ID: "x9", Name: "Casey", Role: RoleGuest})
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestVersion_MonotonicPerCommit(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	v := st.State().Version

	s, err := st.Apply(StartGame{FirstPlayerID: "h1", FirstGame: true})
	require.NoError(t, err)
	assert.Equal(t, v+1, s.Version)

	// A rejected mutation must not burn a version.
	_, err = st.Apply(SetTurn{PlayerID: "nobody"})
	require.Error(t, err)
	assert.Equal(t, v+1, st.State().Version)
}

func TestReconcile_MovesEveryReference(t *testing.T) {
	set := DefaultSettings()
	set.ClockMode = ClockPerPlayer
	st := newTestStore(t, set)
	startGame(t, st, "g1")

	_, err := st.Apply(MarkDisconnected{ID: "g1"})
	require.NoError(t, err)

	s, err := st.Apply(ReconcilePlayer{OldID: "g2", NewID: "g9", Role: RoleGuest})
	assert.ErrorIs(t, err, ErrInvariantViolation, "unknown seat")
	s, err = st.Apply(ReconcilePlayer{OldID: "g1", NewID: "g9", Role: RoleGuest})
	require.NoError(t, err)

	_, gone := s.Players["g1"]
	assert.False(t, gone, "old id fully removed")
	p := s.Players["g9"]
	require.NotNil(t, p)
	assert.Equal(t, "Brook", p.Name)
	assert.True(t, p.Connected)
	assert.NotContains(t, s.Wins, "g1")
	assert.Contains(t, s.Wins, "g9")
	assert.NotContains(t, s.Clock.RemainingMs, "g1")
	assert.Equal(t, s.Clock.PerPlayerMs, s.Clock.RemainingMs["g9"])

	// The interrupted turn follows the seat and comes back on resume.
	s, err = st.Apply(Resume{})
	require.NoError(t, err)
	assert.Equal(t, "g9", s.Turn)
	assert.Equal(t, StatusActive, s.Status)
	assert.True(t, s.Clock.Running)
}

func TestDisconnect_PausesLiveMatchOnly(t *testing.T) {
	st := newTestStore(t, DefaultSettings())

	s, err := st.Apply(MarkDisconnected{ID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, s.Status, "no pause before the game starts")

	_, err = st.Apply(ReconcilePlayer{OldID: "g1", NewID: "g2", Role: RoleGuest})
	require.NoError(t, err)
	startGame(t, st, "g2")

	s, err = st.Apply(MarkDisconnected{ID: "g2"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, s.Status)
	assert.False(t, s.Clock.Running)
	assert.Empty(t, s.Turn, "turn never points at an offline seat")
}

func TestPromoteHost_HandsOverAuthority(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	startGame(t, st, "h1")

	s, err := st.Apply(PromoteHost{NewHostID: "g1", OldHostID: "h1"})
	require.NoError(t, err)

	assert.Equal(t, RoleHost, s.Players["g1"].Role)
	assert.Equal(t, RoleGuest, s.Players["h1"].Role)
	assert.False(t, s.Players["h1"].Connected)
	assert.Equal(t, StatusPaused, s.Status)
	assert.False(t, s.Clock.Running)
}

func TestSetProgress_AbsoluteAndIdempotent(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	startGame(t, st, "h1")

	m := SetProgress{PlayerID: "g1", Progress: Progress{TakenItems: []int{0, 3, 5}}}
	s1, err := st.Apply(m)
	require.NoError(t, err)
	s2, err := st.Apply(m)
	require.NoError(t, err)
	assert.Equal(t, s1.Players["g1"].TakenItems, s2.Players["g1"].TakenItems)

	neg := -1
	_, err = st.Apply(SetProgress{PlayerID: "g1", Progress: Progress{Accumulator: &neg}})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestClockTick_SharedCountdownClampsIntoOvertime(t *testing.T) {
	set := DefaultSettings()
	set.SharedMinutes = 1
	st := newTestStore(t, set)
	startGame(t, st, "h1")

	s, err := st.Apply(ClockTick{DeltaMs: 59_500})
	require.NoError(t, err)
	assert.Equal(t, int64(59_500), s.Clock.ElapsedMs)
	assert.Equal(t, StatusActive, s.Status)

	s, err = st.Apply(ClockTick{DeltaMs: 800})
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), s.Clock.ElapsedMs, "clamped, not overshot")
	assert.Equal(t, StatusOvertime, s.Status)
	assert.False(t, s.Clock.Running)
	assert.Empty(t, s.MatchWinnerID, "overtime decides nothing by itself")

	_, err = st.Apply(ClockTick{DeltaMs: 1_000})
	assert.ErrorIs(t, err, ErrInvariantViolation, "no ticks on a stopped clock")
}

func TestResume_SpentSharedBudgetReturnsToOvertime(t *testing.T) {
	set := DefaultSettings()
	set.SharedMinutes = 1
	st := newTestStore(t, set)
	startGame(t, st, "g1")

	s, err := st.Apply(ClockTick{DeltaMs: 60_000})
	require.NoError(t, err)
	require.Equal(t, StatusOvertime, s.Status)

	_, err = st.Apply(MarkDisconnected{ID: "g1"})
	require.NoError(t, err)
	_, err = st.Apply(ReconcilePlayer{OldID: "g1", NewID: "g9", Role: RoleGuest})
	require.NoError(t, err)

	s, err = st.Apply(Resume{})
	require.NoError(t, err)
	assert.Equal(t, StatusOvertime, s.Status, "play continues in overtime, not active")
	assert.False(t, s.Clock.Running, "an expired countdown never restarts")
	assert.Equal(t, "g9", s.Turn, "interrupted turn still comes back")
}

func TestClockTick_IdleChessTickRejected(t *testing.T) {
	set := DefaultSettings()
	set.ClockMode = ClockPerPlayer
	st := newTestStore(t, set)
	startGame(t, st, "h1")

	cur := st.State()
	cur.Turn = ""
	st = NewStore(cur)
	v := st.State().Version

	_, err := st.Apply(ClockTick{DeltaMs: 1_000})
	assert.ErrorIs(t, err, ErrInvariantViolation, "nobody holds the turn")
	assert.Equal(t, v, st.State().Version, "idle tick must not burn a version")

	cur.Turn = "h1"
	delete(cur.Clock.RemainingMs, "h1")
	st = NewStore(cur)
	_, err = st.Apply(ClockTick{DeltaMs: 1_000})
	assert.ErrorIs(t, err, ErrInvariantViolation, "turn holder has no budget entry")
}

func TestClockTick_ChessTimeoutAwardsOpponent(t *testing.T) {
	set := DefaultSettings()
	set.ClockMode = ClockPerPlayer
	st := newTestStore(t, set)
	startGame(t, st, "h1")

	// Shrink A's budget, leave B comfortable.
	cur := st.State()
	cur.Clock.RemainingMs["h1"] = 1_500
	cur.Clock.RemainingMs["g1"] = 20_000
	st = NewStore(cur)

	s, err := st.Apply(ClockTick{DeltaMs: 2_000})
	require.NoError(t, err)

	assert.Equal(t, int64(0), s.Clock.RemainingMs["h1"], "clamped to zero")
	assert.Equal(t, int64(20_000), s.Clock.RemainingMs["g1"], "only the turn holder burns time")
	assert.Equal(t, "g1", s.RoundWinnerID)
	assert.Equal(t, StatusFinished, s.Status)
	assert.False(t, s.Clock.Running)
}

func TestClockTick_OnlyTurnHolderDecrements(t *testing.T) {
	set := DefaultSettings()
	set.ClockMode = ClockPerPlayer
	st := newTestStore(t, set)
	startGame(t, st, "g1")

	s, err := st.Apply(ClockTick{DeltaMs: 1_000})
	require.NoError(t, err)
	assert.Equal(t, s.Clock.PerPlayerMs-1_000, s.Clock.RemainingMs["g1"])
	assert.Equal(t, s.Clock.PerPlayerMs, s.Clock.RemainingMs["h1"])
}

func TestValidate_RejectsDanglingReferences(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	startGame(t, st, "h1")

	_, err := st.Apply(SetTurn{PlayerID: "ghost"})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = st.Apply(SetProgress{PlayerID: "ghost", Progress: Progress{TakenItems: []int{1}}})
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestClone_Detaches(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	a := st.State()
	a.Players["h1"].Connected = false
	a.Wins["h1"] = 9

	b := st.State()
	assert.True(t, b.Players["h1"].Connected)
	assert.NotContains(t, b.Wins, "h1")
}
