package game

// Variant selects which progress counter decides a round.
type Variant string

const (
	// VariantThreshold wins when a player has taken a fixed number of items.
	VariantThreshold Variant = "threshold"
	// VariantAccumulator wins when a player's running counter reaches a target.
	VariantAccumulator Variant = "accumulator"
)

// Status is the lifecycle phase of a match document.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusOvertime Status = "overtime"
	StatusFinished Status = "finished"
	StatusGameOver Status = "game-over"
)

// Terminal reports whether the status ends the current round.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusGameOver
}

// Role of a player within the match.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// MatchMode selects single-game or best-of-three sequencing.
type MatchMode string

const (
	ModeSingleGame  MatchMode = "singleGame"
	ModeBestOfThree MatchMode = "bestOfThree"
)

// ClockMode selects the shared countdown or the per-player chess clock.
type ClockMode string

const (
	ClockShared    ClockMode = "shared"
	ClockPerPlayer ClockMode = "perPlayer"
)

// WinsNeeded is the round-win count that closes a best-of-three match.
const WinsNeeded = 2

// MaxPlayers is the number of active competitors; later joiners spectate.
const MaxPlayers = 2

// Player is one seat in the match. The id is the transport member id and
// changes across reconnects; Name is the stable identity key used for
// reconciliation.
type Player struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	Connected   bool   `json:"connected"`
	Color       string `json:"color"`
	TakenItems  []int  `json:"takenItems"`
	Accumulator int    `json:"accumulator"`
}

// ClockState is the replicated view of the match clock. Only the host's
// ClockEngine advances it; guests render it verbatim.
type ClockState struct {
	Mode        ClockMode        `json:"mode"`
	Running     bool             `json:"running"`
	StartedAt   int64            `json:"startedAt"` // unix ms, zero until first start
	ElapsedMs   int64            `json:"elapsedMs"`
	LimitMs     int64            `json:"limitMs"`     // shared mode budget
	PerPlayerMs int64            `json:"perPlayerMs"` // chess mode initial budget
	RemainingMs map[string]int64 `json:"remainingMs"` // chess mode, keyed by player id
}

// State is the canonical match document. Exactly one peer (the host) mutates
// it; every broadcast replaces the guests' replicas wholesale. Version is a
// monotonically increasing stamp assigned on every committed mutation so
// replicas can discard stale or duplicate snapshots.
type State struct {
	Version uint64 `json:"version"`

	Variant           Variant `json:"variant"`
	ThresholdTarget   int     `json:"thresholdTarget"`
	AccumulatorTarget int     `json:"accumulatorTarget"`

	Status    Status    `json:"status"`
	MatchMode MatchMode `json:"matchMode"`

	CurrentGame int            `json:"currentGame"`
	Wins        map[string]int `json:"wins"`

	RoundWinnerID   string `json:"roundWinnerId"`
	MatchWinnerID   string `json:"matchWinnerId"`
	IsTie           bool   `json:"isTie"`
	WinnerAnnounced bool   `json:"winnerAnnounced"`

	Players map[string]*Player `json:"players"`
	Turn    string             `json:"turn"` // empty means nobody
	// ResumeTurn stashes the turn interrupted by a disconnect so that Turn
	// itself never points at an offline seat; Resume restores it.
	ResumeTurn string `json:"resumeTurn"`

	Clock ClockState `json:"clock"`
}

// Settings are the knobs fixed at room creation.
type Settings struct {
	Variant           Variant   `yaml:"variant"`
	ThresholdTarget   int       `yaml:"thresholdTarget"`
	AccumulatorTarget int       `yaml:"accumulatorTarget"`
	ClockMode         ClockMode `yaml:"clockMode"`
	SharedMinutes     int       `yaml:"sharedMinutes"`
	PerPlayerMinutes  int       `yaml:"perPlayerMinutes"`
	MatchMode         MatchMode `yaml:"matchMode"`
}

// DefaultSettings mirrors the stock room configuration.
func DefaultSettings() Settings {
	return Settings{
		Variant:           VariantThreshold,
		ThresholdTarget:   6,
		AccumulatorTarget: 20,
		ClockMode:         ClockShared,
		SharedMinutes:     30,
		PerPlayerMinutes:  20,
		MatchMode:         ModeSingleGame,
	}
}

// Normalize clamps impossible combinations. The chess clock has no notion of
// a shared round budget, so it always plays a single game.
func (s *Settings) Normalize() {
	if s.ClockMode == ClockPerPlayer {
		s.MatchMode = ModeSingleGame
	}
	if s.MatchMode == "" {
		s.MatchMode = ModeSingleGame
	}
	if s.Variant == "" {
		s.Variant = VariantThreshold
	}
}

// NewState builds a fresh waiting document from room settings.
func NewState(set Settings) State {
	set.Normalize()
	return State{
		Variant:           set.Variant,
		ThresholdTarget:   set.ThresholdTarget,
		AccumulatorTarget: set.AccumulatorTarget,
		Status:            StatusWaiting,
		MatchMode:         set.MatchMode,
		CurrentGame:       1,
		Wins:              map[string]int{},
		Players:           map[string]*Player{},
		Clock: ClockState{
			Mode:        set.ClockMode,
			LimitMs:     int64(set.SharedMinutes) * 60 * 1000,
			PerPlayerMs: int64(set.PerPlayerMinutes) * 60 * 1000,
			RemainingMs: map[string]int64{},
		},
	}
}

// Clone returns a deep copy so callers can hand snapshots around without
// aliasing the canonical document.
func (s State) Clone() State {
	out := s
	out.Wins = make(map[string]int, len(s.Wins))
	for k, v := range s.Wins {
		out.Wins[k] = v
	}
	out.Players = make(map[string]*Player, len(s.Players))
	for k, v := range s.Players {
		p := *v
		p.TakenItems = append([]int(nil), v.TakenItems...)
		out.Players[k] = &p
	}
	out.Clock.RemainingMs = make(map[string]int64, len(s.Clock.RemainingMs))
	for k, v := range s.Clock.RemainingMs {
		out.Clock.RemainingMs[k] = v
	}
	return out
}

// ConnectedCount counts seated players currently online.
func (s *State) ConnectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Opponent returns the id of the other seated player, or empty.
func (s *State) Opponent(id string) string {
	for pid := range s.Players {
		if pid != id {
			return pid
		}
	}
	return ""
}

// HostID returns the id of the player currently marked host, or empty.
func (s *State) HostID() string {
	for pid, p := range s.Players {
		if p.Role == RoleHost {
			return pid
		}
	}
	return ""
}

// ProgressReached reports whether a player crossed the configured win line
// for the room's variant.
func (s *State) ProgressReached(playerID string) bool {
	p, ok := s.Players[playerID]
	if !ok {
		return false
	}
	switch s.Variant {
	case VariantAccumulator:
		return s.AccumulatorTarget > 0 && p.Accumulator >= s.AccumulatorTarget
	default:
		return s.ThresholdTarget > 0 && len(p.TakenItems) >= s.ThresholdTarget
	}
}
