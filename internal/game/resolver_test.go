package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, set Settings) *Store {
	t.Helper()
	st := NewStore(NewState(set))
	_, err := st.Apply(AddPlayer{ID: "h1", Name: "Alex", Role: RoleHost, Color: "#ef4444"})
	require.NoError(t, err)
	_, err = st.Apply(AddPlayer{ID: "g1", Name: "Brook", Role: RoleGuest, Color: "#3b82f6"})
	require.NoError(t, err)
	return st
}

func startGame(t *testing.T, st *Store, first string) State {
	t.Helper()
	s, err := st.Apply(StartGame{FirstPlayerID: first, FirstGame: true, NowMs: 1_000})
	require.NoError(t, err)
	return s
}

func TestStartGame_FirstGame(t *testing.T) {
	st := newTestStore(t, Settings{
		Variant:          VariantThreshold,
		ThresholdTarget:  6,
		ClockMode:        ClockPerPlayer,
		PerPlayerMinutes: 20,
		MatchMode:        ModeBestOfThree, // forced back to singleGame by Normalize
	})

	s := startGame(t, st, "h1")

	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, "h1", s.Turn)
	assert.True(t, s.Clock.Running)
	assert.Equal(t, ModeSingleGame, s.MatchMode, "chess clock forces a single game")
	assert.Equal(t, int64(20*60*1000), s.Clock.RemainingMs["h1"])
	assert.Equal(t, int64(20*60*1000), s.Clock.RemainingMs["g1"])
	assert.Equal(t, map[string]int{"h1": 0, "g1": 0}, s.Wins)
}

func TestStartGame_RejectsDisconnectedFirstPlayer(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	_, err := st.Apply(MarkDisconnected{ID: "g1"})
	require.NoError(t, err)

	before := st.State()
	_, err = st.Apply(StartGame{FirstPlayerID: "g1", FirstGame: true})
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, before.Version, st.State().Version, "rejected mutation must not commit")
}

func TestWinResolution_Scenarios(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "single game win finishes the match",
			run: func(t *testing.T) {
				st := newTestStore(t, DefaultSettings())
				startGame(t, st, "h1")

				s, err := st.Apply(AwardWin{WinnerID: "g1"})
				require.NoError(t, err)

				assert.Equal(t, StatusFinished, s.Status)
				assert.Equal(t, "g1", s.RoundWinnerID)
				assert.Equal(t, "g1", s.MatchWinnerID)
				assert.False(t, s.Clock.Running)
				assert.Empty(t, s.Turn)
			},
		},
		{
			name: "best of three: first win parks the round, second closes the match",
			run: func(t *testing.T) {
				set := DefaultSettings()
				set.MatchMode = ModeBestOfThree
				st := newTestStore(t, set)
				startGame(t, st, "h1")

				s, err := st.Apply(AwardWin{WinnerID: "h1"})
				require.NoError(t, err)
				assert.Equal(t, StatusGameOver, s.Status)
				assert.Equal(t, 1, s.Wins["h1"])
				assert.Empty(t, s.MatchWinnerID)

				s, err = st.Apply(StartGame{FirstPlayerID: "g1"})
				require.NoError(t, err)
				assert.Equal(t, 2, s.CurrentGame)
				assert.Equal(t, 1, s.Wins["h1"], "win table survives the next game")

				s, err = st.Apply(AwardWin{WinnerID: "h1"})
				require.NoError(t, err)
				assert.Equal(t, StatusFinished, s.Status, "second win ends the match, no third game-over")
				assert.Equal(t, 2, s.Wins["h1"])
				assert.Equal(t, "h1", s.MatchWinnerID)
			},
		},
		{
			name: "next game resets per-round progress and keeps the countdown going",
			run: func(t *testing.T) {
				set := DefaultSettings()
				set.MatchMode = ModeBestOfThree
				st := newTestStore(t, set)
				startGame(t, st, "h1")

				acc := 5
				_, err := st.Apply(SetProgress{PlayerID: "h1", Progress: Progress{TakenItems: []int{1, 2}, Accumulator: &acc}})
				require.NoError(t, err)
				_, err = st.Apply(AwardWin{WinnerID: "h1"})
				require.NoError(t, err)

				s, err := st.Apply(StartGame{FirstPlayerID: "g1"})
				require.NoError(t, err)
				assert.Empty(t, s.Players["h1"].TakenItems)
				assert.Zero(t, s.Players["h1"].Accumulator)
				assert.True(t, s.Clock.Running)
			},
		},
		{
			name: "scoop awards the opponent",
			run: func(t *testing.T) {
				st := newTestStore(t, DefaultSettings())
				startGame(t, st, "h1")

				s, err := st.Apply(Scoop{LoserID: "h1"})
				require.NoError(t, err)
				assert.Equal(t, "g1", s.RoundWinnerID)
				assert.Equal(t, StatusFinished, s.Status)
			},
		},
		{
			name: "tie with a level win table is a genuine tie",
			run: func(t *testing.T) {
				st := newTestStore(t, DefaultSettings())
				startGame(t, st, "h1")

				s, err := st.Apply(DeclareTie{})
				require.NoError(t, err)
				assert.True(t, s.IsTie)
				assert.Empty(t, s.RoundWinnerID)
				assert.Equal(t, StatusFinished, s.Status)
				assert.False(t, s.Clock.Running)
			},
		},
		{
			name: "tie with a leader awards the leader",
			run: func(t *testing.T) {
				set := DefaultSettings()
				set.MatchMode = ModeBestOfThree
				st := newTestStore(t, set)
				startGame(t, st, "h1")
				_, err := st.Apply(AwardWin{WinnerID: "g1"})
				require.NoError(t, err)
				_, err = st.Apply(StartGame{FirstPlayerID: "h1"})
				require.NoError(t, err)

				s, err := st.Apply(DeclareTie{})
				require.NoError(t, err)
				assert.False(t, s.IsTie)
				assert.Equal(t, "g1", s.RoundWinnerID)
				assert.Equal(t, "g1", s.MatchWinnerID)
			},
		},
		{
			name: "restart wipes wins, progress, clock and outcome",
			run: func(t *testing.T) {
				set := DefaultSettings()
				set.MatchMode = ModeBestOfThree
				st := newTestStore(t, set)
				startGame(t, st, "h1")
				_, err := st.Apply(AwardWin{WinnerID: "h1"})
				require.NoError(t, err)

				s, err := st.Apply(RestartRound{})
				require.NoError(t, err)
				assert.Equal(t, StatusWaiting, s.Status)
				assert.Empty(t, s.Wins)
				assert.Equal(t, 1, s.CurrentGame)
				assert.Empty(t, s.RoundWinnerID)
				assert.False(t, s.WinnerAnnounced)
				assert.Zero(t, s.Clock.ElapsedMs)
			},
		},
		{
			name: "award while waiting is rejected",
			run: func(t *testing.T) {
				st := newTestStore(t, DefaultSettings())
				_, err := st.Apply(AwardWin{WinnerID: "h1"})
				assert.ErrorIs(t, err, ErrInvariantViolation)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestWinnerAnnouncedGate(t *testing.T) {
	st := newTestStore(t, DefaultSettings())
	startGame(t, st, "h1")

	_, err := st.Apply(MarkWinnerAnnounced{})
	assert.ErrorIs(t, err, ErrInvariantViolation, "gate only applies to terminal states")

	_, err = st.Apply(AwardWin{WinnerID: "h1"})
	require.NoError(t, err)
	s, err := st.Apply(MarkWinnerAnnounced{})
	require.NoError(t, err)
	assert.True(t, s.WinnerAnnounced)
}
