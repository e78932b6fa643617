// internal/protocol/protocol.go
package protocol

import (
	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/models"
)

// Client message types. One self-describing JSON object per text frame; Type
// discriminates and the remaining fields are populated per type.
const (
	MsgCreateRoom     = "create_room"
	MsgJoinRoom       = "join_room"
	MsgGetRooms       = "get_rooms"
	MsgLeave          = "leave"
	MsgSetReady       = "set_ready"
	MsgStart          = "start"
	MsgReconnect      = "reconnect"
	MsgPong           = "pong"
	MsgFlipCard       = "flip_card"
	MsgPlaceTower     = "place_tower"
	MsgClaimTerritory = "claim_territory"
)

// ClientMessage is the envelope for every inbound frame. Unused fields stay
// zero-valued; handlers validate presence per message type.
type ClientMessage struct {
	Type string `json:"type"`

	PlayerName string             `json:"playerName,omitempty"`
	RoomName   string             `json:"roomName,omitempty"`
	RoomCode   string             `json:"roomCode,omitempty"`
	Config     *models.GameConfig `json:"config,omitempty"`
	Ready      bool               `json:"ready,omitempty"`
	Token      string             `json:"token,omitempty"`

	// Game actions.
	CardID      int    `json:"cardId"`
	TowerKind   string `json:"towerKind,omitempty"`
	Slot        int    `json:"slot"`
	TerritoryID int    `json:"territoryId"`
}

// EventType discriminates outbound server events.
type EventType string

const (
	EventRoomCreated        EventType = "room_created"
	EventJoinedRoom         EventType = "joined_room"
	EventRoomState          EventType = "room_state"
	EventRoomList           EventType = "room_list"
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerLeft         EventType = "player_left"
	EventPlayerReady        EventType = "player_ready"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerReconnected  EventType = "player_reconnected"
	EventCountdown          EventType = "countdown"
	EventGameStarted        EventType = "game_started"
	EventCardFlipped        EventType = "card_flipped"
	EventMatchFound         EventType = "match_found"
	EventMatchFailed        EventType = "match_failed"
	EventTowerPlaced        EventType = "tower_placed"
	EventDefenseState       EventType = "defense_state"
	EventTerritoryClaimed   EventType = "territory_claimed"
	EventTerritoryState     EventType = "territory_state"
	EventGameOver           EventType = "game_over"
	EventError              EventType = "error"
	EventPing               EventType = "ping"
)

// Event is the envelope for every outbound frame. Payload carries the
// type-specific body and is flattened by the concrete payload structs below
// being assigned directly; the router marshals an Event exactly once per
// broadcast so all recipients observe identical bytes.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// RoomView is the authoritative room snapshot sent in room_state,
// room_created, and joined_room events. Game is the machine's obfuscated
// view and is nil unless the room is playing or finished.
type RoomView struct {
	Code    string            `json:"roomCode"`
	Name    string            `json:"name"`
	HostID  uuid.UUID         `json:"hostId"`
	Status  models.RoomStatus `json:"status"`
	Config  models.GameConfig `json:"config"`
	Players []models.Player   `json:"players"`
	Game    interface{}       `json:"game,omitempty"`
}

// RoomCreated / JoinedRoom payloads. Token is the reconnection credential for
// this player; it supersedes any previously issued one.
type RoomJoined struct {
	RoomCode string    `json:"roomCode"`
	PlayerID uuid.UUID `json:"playerId"`
	Token    string    `json:"token"`
	Room     RoomView  `json:"room"`
}

type RoomList struct {
	Rooms []models.RoomSummary `json:"rooms"`
}

type PlayerJoined struct {
	Player models.Player `json:"player"`
}

// PlayerLeft also reports the (possibly reassigned) host.
type PlayerLeft struct {
	PlayerID uuid.UUID `json:"playerId"`
	HostID   uuid.UUID `json:"hostId"`
}

type PlayerReady struct {
	PlayerID uuid.UUID `json:"playerId"`
	Ready    bool      `json:"ready"`
}

type PlayerPresence struct {
	PlayerID uuid.UUID `json:"playerId"`
}

type Countdown struct {
	Seconds int `json:"seconds"`
}

type GameStarted struct {
	Game interface{} `json:"game"`
}

type CardFlipped struct {
	PlayerID    uuid.UUID `json:"playerId"`
	CardID      int       `json:"cardId"`
	SymbolIndex int       `json:"symbolIndex"`
}

type MatchFound struct {
	PlayerID uuid.UUID `json:"playerId"`
	CardID1  int       `json:"cardId1"`
	CardID2  int       `json:"cardId2"`
	Score    int       `json:"score"`
	Combo    int       `json:"combo"`
}

type MatchFailed struct {
	CardID1      int       `json:"cardId1"`
	CardID2      int       `json:"cardId2"`
	NextPlayerID uuid.UUID `json:"nextPlayerId"`
}

type TowerPlaced struct {
	PlayerID uuid.UUID `json:"playerId"`
	Kind     string    `json:"towerKind"`
	Slot     int       `json:"slot"`
	Gold     int       `json:"gold"`
}

type TerritoryClaimed struct {
	PlayerID    uuid.UUID `json:"playerId"`
	TerritoryID int       `json:"territoryId"`
	Team        int       `json:"team"`
}

// GameOver reports the final ranking. WinnerID is nil on a draw and when a
// tick-based game ends in a shared loss.
type GameOver struct {
	WinnerID *uuid.UUID      `json:"winnerId"`
	IsDraw   bool            `json:"isDraw"`
	Players  []models.Player `json:"players"`
}

type Error struct {
	Message string `json:"message"`
}

// NewError is a convenience for the private error event.
func NewError(msg string) Event {
	return Event{Type: EventError, Data: Error{Message: msg}}
}
