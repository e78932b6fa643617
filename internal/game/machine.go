// internal/game/machine.go
package game

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
)

// Action validation errors. The room answers them with a private error event
// to the sender; a rejected action mutates nothing and broadcasts nothing.
var (
	ErrNotYourTurn   = errors.New("game: not your turn")
	ErrInvalidAction = errors.New("game: invalid action")
	ErrGameFinished  = errors.New("game: game already finished")
)

// Timer is a cancellable deferred or repeating task scheduled through the
// Host. Stop is idempotent.
type Timer interface {
	Stop()
}

// Result is a machine's terminal report. WinnerID is nil on a draw or a
// shared loss.
type Result struct {
	WinnerID *uuid.UUID
	IsDraw   bool
}

// Host is the room-side contract handed to a machine. Every callback is
// invoked from, and re-enters on, the room's single command loop: Broadcast
// and SendTo emit in mutation order, and functions passed to After/Every run
// serialized with all other room commands. Timers created here are cancelled
// automatically when the room is deleted, so a late callback can never touch
// freed state.
type Host interface {
	Broadcast(ev protocol.Event)
	SendTo(playerID uuid.UUID, ev protocol.Event)
	After(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
	Finish(res Result)
}

// Machine is one game kind's logic, plugged into a room at creation time.
// The room guarantees single-threaded access: Start, HandleAction,
// HandleLeave, HandleDisconnect, and View are only ever called from the room's
// command loop.
type Machine interface {
	Kind() models.GameKind

	// Start deals/initializes state. Called exactly once, on the
	// countdown -> playing transition.
	Start()

	// HandleAction validates and applies a game action. A returned error
	// means nothing was mutated and nothing was broadcast.
	HandleAction(playerID uuid.UUID, msg protocol.ClientMessage) error

	// HandleLeave processes an explicit mid-game departure as a forfeit.
	HandleLeave(playerID uuid.UUID)

	// HandleDisconnect marks a transient drop. State is retained; pending
	// timers still fire.
	HandleDisconnect(playerID uuid.UUID)

	// View returns the obfuscated state snapshot for one player. Hidden
	// information stays hidden from every client, including the acting
	// player's own.
	View(forPlayer uuid.UUID) interface{}
}

// clonePlayers gives a machine its own membership slice. The room removes
// leavers from its list with an in-place append that shifts the backing
// array, so a machine holding the room's slice header would see a stale,
// partially duplicated roster. Player pointers stay shared: per-game stats
// live on the Player.
func clonePlayers(players []*models.Player) []*models.Player {
	out := make([]*models.Player, len(players))
	copy(out, players)
	return out
}

// New selects the machine for a room's configured game kind.
func New(cfg models.GameConfig, players []*models.Player, host Host) Machine {
	switch cfg.Kind {
	case models.KindDefense:
		return NewDefense(cfg, players, host)
	case models.KindTerritory:
		return NewTerritory(cfg, players, host)
	default:
		return NewMemory(cfg, players, host)
	}
}
