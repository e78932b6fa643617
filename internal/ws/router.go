// internal/ws/router.go
package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/protocol"
)

// Router fans server-authoritative events out to the connections bound to one
// room. Disconnected members are silently skipped; there is no queuing for
// absent players, and a reconnecting client receives a fresh snapshot instead
// of replayed history.
//
// Events are marshaled once per broadcast, and callers emit from the room's
// serialized command loop, so every recipient observes the same events in the
// same order.
type Router struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Conn
	logger *logrus.Logger
}

func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		conns:  make(map[uuid.UUID]*Conn),
		logger: logger,
	}
}

// Attach binds a player's live connection, replacing any previous one. A nil
// conn is ignored; the player simply stays unreachable.
func (r *Router) Attach(playerID uuid.UUID, conn *Conn) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	r.conns[playerID] = conn
	r.mu.Unlock()
}

// Detach unbinds a player's connection and reports whether a binding was
// removed. Passing the connection guards against a stale socket's cleanup
// unbinding a replacement that already took over; a nil conn force-detaches
// whatever is bound.
func (r *Router) Detach(playerID uuid.UUID, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn != nil && r.conns[playerID] != conn {
		return false
	}
	delete(r.conns, playerID)
	return true
}

// Unicast sends an event to a single player, used for private reveals (the
// reconnect snapshot) and error responses. A no-op if the player has no live
// connection.
func (r *Router) Unicast(playerID uuid.UUID, ev protocol.Event) {
	r.mu.RLock()
	conn := r.conns[playerID]
	r.mu.RUnlock()
	if conn != nil {
		conn.Send(ev)
	}
}

// Broadcast sends an event to every connected member, optionally excluding
// the originating player (pass uuid.Nil to exclude nobody).
func (r *Router) Broadcast(ev protocol.Event, exclude uuid.UUID) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Errorf("ws: marshal broadcast %s: %v", ev.Type, err)
		return
	}

	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.conns))
	for id, conn := range r.conns {
		if id == exclude {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		conn.SendRaw(data)
	}
}
