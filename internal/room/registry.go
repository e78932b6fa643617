// internal/room/registry.go
package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/ws"
)

// Registry owns the room table and the player-to-room index. It hands out
// room codes, enforces the one-room-per-player rule, and reclaims rooms that
// go stale.
type Registry struct {
	logger *logrus.Logger

	staleTimeout  time.Duration
	sweepInterval time.Duration

	// OnReclaim is invoked after a room is deleted, with the members that
	// were still registered, so the session broker can revoke their
	// reconnection tokens.
	OnReclaim func(code string, members []uuid.UUID)

	mu       sync.Mutex
	rooms    map[string]*Room
	byPlayer map[uuid.UUID]string
}

func NewRegistry(logger *logrus.Logger, staleTimeout, sweepInterval time.Duration) *Registry {
	return &Registry{
		logger:        logger,
		staleTimeout:  staleTimeout,
		sweepInterval: sweepInterval,
		rooms:         make(map[string]*Room),
		byPlayer:      make(map[uuid.UUID]string),
	}
}

// CreateRoom allocates a code, creates the room with the creator as host, and
// binds the creator's connection.
func (reg *Registry) CreateRoom(name string, host *models.Player, cfg models.GameConfig, conn *ws.Conn) (*Room, error) {
	cfg.Normalize()

	reg.mu.Lock()
	if _, ok := reg.byPlayer[host.ID]; ok {
		reg.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	code := newRoomCode(func(c string) bool {
		_, taken := reg.rooms[c]
		return taken
	})
	r := New(code, name, host, cfg, reg.logger)
	r.OnEmpty = reg.onEmpty
	reg.rooms[code] = r
	reg.byPlayer[host.ID] = code
	reg.mu.Unlock()

	r.AttachHost(host.ID, conn)
	reg.logger.WithFields(logrus.Fields{"room": code, "kind": cfg.Kind, "host": host.ID}).Info("room created")
	return r, nil
}

// JoinRoom adds a player to an existing room by code. The room itself decides
// capacity and status; the registry only enforces the one-room rule and keeps
// the index.
func (reg *Registry) JoinRoom(code string, p *models.Player, conn *ws.Conn) (*Room, error) {
	reg.mu.Lock()
	if _, ok := reg.byPlayer[p.ID]; ok {
		reg.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	r, ok := reg.rooms[code]
	reg.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}

	if err := r.Join(p, conn); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.byPlayer[p.ID] = code
	reg.mu.Unlock()
	return r, nil
}

// LeaveRoom removes a player from whatever room they are in. A no-op for
// unknown players.
func (reg *Registry) LeaveRoom(playerID uuid.UUID) {
	reg.mu.Lock()
	code, ok := reg.byPlayer[playerID]
	if ok {
		delete(reg.byPlayer, playerID)
	}
	r := reg.rooms[code]
	reg.mu.Unlock()
	if !ok || r == nil {
		return
	}
	r.Leave(playerID)
}

// Find returns the room with the given code.
func (reg *Registry) Find(code string) (*Room, bool) {
	reg.mu.Lock()
	r, ok := reg.rooms[code]
	reg.mu.Unlock()
	return r, ok
}

// RoomOf returns the room a player is currently a member of.
func (reg *Registry) RoomOf(playerID uuid.UUID) (*Room, bool) {
	reg.mu.Lock()
	code, ok := reg.byPlayer[playerID]
	r := reg.rooms[code]
	reg.mu.Unlock()
	if !ok || r == nil {
		return nil, false
	}
	return r, true
}

// ListPublic returns summaries for rooms that are public, waiting, and not
// full.
func (reg *Registry) ListPublic() []models.RoomSummary {
	reg.mu.Lock()
	snapshot := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		snapshot = append(snapshot, r)
	}
	reg.mu.Unlock()

	out := make([]models.RoomSummary, 0, len(snapshot))
	for _, r := range snapshot {
		if s, ok := r.Summary(); ok {
			out = append(out, s)
		}
	}
	return out
}

// onEmpty is the room's last-member-left callback. It runs on the room's own
// loop, so it must not call back into the room synchronously; an empty room
// has no members left to unindex or revoke.
func (reg *Registry) onEmpty(code string) {
	reg.remove(code, nil)
}

// remove deletes a room from the table, closes its loop, and reports the
// still-registered members for token revocation.
func (reg *Registry) remove(code string, members []uuid.UUID) {
	reg.mu.Lock()
	r, ok := reg.rooms[code]
	if ok {
		delete(reg.rooms, code)
	}
	for _, id := range members {
		if reg.byPlayer[id] == code {
			delete(reg.byPlayer, id)
		}
	}
	reg.mu.Unlock()
	if !ok {
		return
	}

	r.Close()
	if reg.OnReclaim != nil {
		reg.OnReclaim(code, members)
	}
	reg.logger.WithField("room", code).Info("room removed")
}

// Run sweeps for stale rooms until the context is cancelled. A room is stale
// when nobody has been connected past the timeout, or it finished that long
// ago; reclamation closes its loop so pending timers become no-ops and
// revokes the members' reconnection tokens.
func (reg *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(reg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reg.sweep(now)
		}
	}
}

func (reg *Registry) sweep(now time.Time) {
	reg.mu.Lock()
	snapshot := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		snapshot = append(snapshot, r)
	}
	reg.mu.Unlock()

	for _, r := range snapshot {
		if !r.Stale(now, reg.staleTimeout) {
			continue
		}
		members := r.MemberIDs()
		reg.logger.WithFields(logrus.Fields{"room": r.Code, "members": len(members)}).Info("reclaiming stale room")
		reg.remove(r.Code, members)
	}
}
