// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// GameKind selects which state machine a room runs. It is fixed at room
// creation time.
type GameKind string

const (
	KindMemory    GameKind = "memory"
	KindDefense   GameKind = "defense"
	KindTerritory GameKind = "territory"
)

// Valid reports whether k names a known game kind.
func (k GameKind) Valid() bool {
	switch k {
	case KindMemory, KindDefense, KindTerritory:
		return true
	}
	return false
}

// RoomStatus is the room lifecycle state. Transitions are monotonic:
// waiting -> countdown -> playing -> finished, with playing -> finished
// reachable early by forfeit.
type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusCountdown RoomStatus = "countdown"
	StatusPlaying   RoomStatus = "playing"
	StatusFinished  RoomStatus = "finished"
)

// Difficulty tunes per-game parameters (board size, wave count, grid size).
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// GameConfig holds the game-type-specific room parameters. Mutable only by
// the host and only while the room is waiting.
type GameConfig struct {
	Kind       GameKind   `json:"gameKind"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	MaxPlayers int        `json:"maxPlayers"`
	Public     bool       `json:"public"`
}

// Normalize fills defaults and clamps MaxPlayers to what the selected game
// kind supports.
func (c *GameConfig) Normalize() {
	if !c.Kind.Valid() {
		c.Kind = KindMemory
	}
	switch c.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		c.Difficulty = DifficultyMedium
	}
	limit := 2
	switch c.Kind {
	case KindDefense:
		limit = 4
	case KindTerritory:
		limit = 6
	}
	if c.MaxPlayers < 2 || c.MaxPlayers > limit {
		c.MaxPlayers = limit
	}
}

// Player is a room member. Identity survives reconnects; Connected toggles on
// disconnect/reconnect. A player is removed from the room only on explicit
// leave or room reclamation.
type Player struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Connected bool      `json:"connected"`

	// Running per-game stats.
	Score      int  `json:"score"`
	Combo      int  `json:"combo"`
	Eliminated bool `json:"eliminated,omitempty"`
	Team       int  `json:"team,omitempty"`

	JoinedAt time.Time `json:"-"`
}

// RoomSummary is the public listing entry for a joinable room.
type RoomSummary struct {
	Code       string     `json:"roomCode"`
	Name       string     `json:"name"`
	HostName   string     `json:"hostName"`
	Players    int        `json:"players"`
	MaxPlayers int        `json:"maxPlayers"`
	Config     GameConfig `json:"config"`
}
