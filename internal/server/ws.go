// internal/server/ws.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/middleware"
	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
	"github.com/parlor-games/parlor/internal/room"
	"github.com/parlor-games/parlor/internal/ws"
)

const (
	subprotocol = "parlor"

	maxPlayerNameLen = 24
	maxRoomNameLen   = 40
)

// handleWS upgrades the connection and runs its read loop. A connection is
// anonymous until its first create_room, join_room, or reconnect succeeds;
// after that it is bound to one player in one room until an explicit leave.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: []string{"*"}, // Adjust in production
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != subprotocol {
		c.Close(websocket.StatusPolicyViolation, "client must speak the parlor subprotocol")
		return
	}

	middleware.LogWebSocketConnect(s.logger, remoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := ws.NewConn(c, s.logger)
	go conn.WritePump(ctx)
	go s.heartbeat(ctx, conn)

	readErr := s.readLoop(ctx, c, conn)

	// The player stays a member through a dropped socket; only an explicit
	// leave removes them. Mark them disconnected so the room can tell the
	// others and the stale sweeper can start its clock.
	if pid := conn.PlayerID(); pid != uuid.Nil {
		if rm, ok := s.registry.RoomOf(pid); ok {
			rm.Disconnect(pid, conn)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "bye")
	middleware.LogWebSocketDisconnect(s.logger, remoteAddr, r.URL.Path, readErr)
}

// heartbeat pings the client at a fixed interval and force-closes the
// connection when it stops answering.
func (s *Server) heartbeat(ctx context.Context, conn *ws.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(conn.LastPong()) > s.cfg.PongWindow {
				s.logger.Infof("closing unresponsive connection for player %s", conn.PlayerID())
				conn.Close(websocket.StatusPolicyViolation, "pong timeout")
				return
			}
			conn.Send(protocol.Event{Type: protocol.EventPing})
		}
	}
}

// readLoop consumes frames until the connection drops. Malformed frames get a
// private error and the loop continues; only transport errors end it.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, conn *ws.Conn) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Send(protocol.NewError("invalid JSON"))
			continue
		}
		s.dispatch(conn, msg)
	}
}

// dispatch routes one client message. Roomless messages bind the connection;
// everything else requires a bound player and runs on the room's loop.
func (s *Server) dispatch(conn *ws.Conn, msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.MsgCreateRoom:
		s.handleCreateRoom(conn, msg)
	case protocol.MsgJoinRoom:
		s.handleJoinRoom(conn, msg)
	case protocol.MsgReconnect:
		s.handleReconnect(conn, msg)
	case protocol.MsgGetRooms:
		conn.Send(protocol.Event{Type: protocol.EventRoomList, Data: protocol.RoomList{
			Rooms: s.registry.ListPublic(),
		}})
	case protocol.MsgPong:
		conn.TouchPong()
		if rm, ok := s.registry.RoomOf(conn.PlayerID()); ok {
			rm.Touch()
		}
	case protocol.MsgLeave:
		s.handleLeave(conn)
	case protocol.MsgSetReady:
		if rm, ok := s.boundRoom(conn); ok {
			rm.SetReady(conn.PlayerID(), msg.Ready)
		}
	case protocol.MsgStart:
		if rm, ok := s.boundRoom(conn); ok {
			if err := rm.Start(conn.PlayerID()); err != nil {
				conn.Send(protocol.NewError(lifecycleErrorMessage(err)))
			} else {
				var kind models.GameKind
				if v, verr := rm.View(conn.PlayerID()); verr == nil {
					kind = v.Config.Kind
				}
				s.feed.Publish("game_starting", rm.Code, string(kind), conn.PlayerID())
			}
		}
	case protocol.MsgFlipCard, protocol.MsgPlaceTower, protocol.MsgClaimTerritory:
		if rm, ok := s.boundRoom(conn); ok {
			rm.HandleAction(conn.PlayerID(), msg)
		}
	default:
		conn.Send(protocol.NewError("unknown message type: " + msg.Type))
	}
}

func (s *Server) handleCreateRoom(conn *ws.Conn, msg protocol.ClientMessage) {
	if conn.PlayerID() != uuid.Nil {
		conn.Send(protocol.NewError("already in a room"))
		return
	}
	name, err := playerName(msg.PlayerName)
	if err != nil {
		conn.Send(protocol.NewError(err.Error()))
		return
	}

	var cfg models.GameConfig
	if msg.Config != nil {
		cfg = *msg.Config
	}
	roomName := strings.TrimSpace(msg.RoomName)
	if len(roomName) > maxRoomNameLen {
		roomName = roomName[:maxRoomNameLen]
	}
	if roomName == "" {
		roomName = name + "'s game"
	}

	player := &models.Player{ID: uuid.New(), Name: name}
	rm, err := s.registry.CreateRoom(roomName, player, cfg, conn)
	if err != nil {
		conn.Send(protocol.NewError(lifecycleErrorMessage(err)))
		return
	}

	token, err := s.broker.Issue(rm.Code, player.ID)
	if err != nil {
		s.logger.Errorf("issue token for %s: %v", player.ID, err)
	}
	conn.BindPlayer(player.ID)

	view, _ := rm.View(player.ID)
	conn.Send(protocol.Event{Type: protocol.EventRoomCreated, Data: protocol.RoomJoined{
		RoomCode: rm.Code,
		PlayerID: player.ID,
		Token:    token,
		Room:     view,
	}})
	s.feed.Publish("room_created", rm.Code, string(view.Config.Kind), player.ID)
}

func (s *Server) handleJoinRoom(conn *ws.Conn, msg protocol.ClientMessage) {
	if conn.PlayerID() != uuid.Nil {
		conn.Send(protocol.NewError("already in a room"))
		return
	}
	name, err := playerName(msg.PlayerName)
	if err != nil {
		conn.Send(protocol.NewError(err.Error()))
		return
	}
	code := strings.ToUpper(strings.TrimSpace(msg.RoomCode))
	if code == "" {
		conn.Send(protocol.NewError("room code is required"))
		return
	}

	player := &models.Player{ID: uuid.New(), Name: name}
	rm, err := s.registry.JoinRoom(code, player, conn)
	if err != nil {
		conn.Send(protocol.NewError(lifecycleErrorMessage(err)))
		return
	}

	token, err := s.broker.Issue(rm.Code, player.ID)
	if err != nil {
		s.logger.Errorf("issue token for %s: %v", player.ID, err)
	}
	conn.BindPlayer(player.ID)

	view, _ := rm.View(player.ID)
	conn.Send(protocol.Event{Type: protocol.EventJoinedRoom, Data: protocol.RoomJoined{
		RoomCode: rm.Code,
		PlayerID: player.ID,
		Token:    token,
		Room:     view,
	}})
	s.feed.Publish("player_joined", rm.Code, string(view.Config.Kind), player.ID)
}

// handleReconnect resumes a dropped session. The token is single-use: it is
// consumed here and replaced by the fresh one delivered with the snapshot.
func (s *Server) handleReconnect(conn *ws.Conn, msg protocol.ClientMessage) {
	if conn.PlayerID() != uuid.Nil {
		conn.Send(protocol.NewError("already in a room"))
		return
	}

	roomCode, playerID, err := s.broker.Resolve(msg.Token)
	if err != nil {
		conn.Send(protocol.NewError("invalid or expired reconnect token"))
		return
	}
	rm, ok := s.registry.Find(roomCode)
	if !ok {
		conn.Send(protocol.NewError("room no longer exists"))
		return
	}

	token, err := s.broker.Issue(roomCode, playerID)
	if err != nil {
		s.logger.Errorf("issue token for %s: %v", playerID, err)
	}
	if err := rm.Reconnect(playerID, conn, token); err != nil {
		s.broker.Revoke(playerID)
		conn.Send(protocol.NewError("room no longer exists"))
		return
	}
	conn.BindPlayer(playerID)
	s.feed.Publish("player_reconnected", roomCode, "", playerID)
}

// handleLeave removes the player for good and revokes their token; the
// connection goes back to anonymous and may create or join another room.
func (s *Server) handleLeave(conn *ws.Conn) {
	pid := conn.PlayerID()
	if pid == uuid.Nil {
		conn.Send(protocol.NewError("not in a room"))
		return
	}
	if rm, ok := s.registry.RoomOf(pid); ok {
		s.feed.Publish("player_left", rm.Code, "", pid)
	}
	s.registry.LeaveRoom(pid)
	s.broker.Revoke(pid)
	conn.BindPlayer(uuid.Nil)
}

func (s *Server) boundRoom(conn *ws.Conn) (*room.Room, bool) {
	if conn.PlayerID() == uuid.Nil {
		conn.Send(protocol.NewError("not in a room"))
		return nil, false
	}
	rm, ok := s.registry.RoomOf(conn.PlayerID())
	if !ok {
		conn.Send(protocol.NewError("not in a room"))
		return nil, false
	}
	return rm, true
}

func playerName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New("player name is required")
	}
	if len(name) > maxPlayerNameLen {
		name = name[:maxPlayerNameLen]
	}
	return name, nil
}

// lifecycleErrorMessage translates registry/room errors into client-facing
// text.
func lifecycleErrorMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrGameInProgress):
		return "game already in progress"
	case errors.Is(err, room.ErrAlreadyInRoom):
		return "already in a room"
	case errors.Is(err, room.ErrRoomClosed):
		return "room no longer exists"
	case errors.Is(err, room.ErrNotHost):
		return "only the host can start the game"
	case errors.Is(err, room.ErrNotReady):
		return "need at least two players, all ready"
	default:
		return err.Error()
	}
}
