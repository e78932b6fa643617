// internal/room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/game"
	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
	"github.com/parlor-games/parlor/internal/ws"
)

// Join/lifecycle errors surfaced to clients as private failure results.
var (
	ErrRoomNotFound   = errors.New("room: not found")
	ErrRoomFull       = errors.New("room: full")
	ErrGameInProgress = errors.New("room: game already started")
	ErrAlreadyInRoom  = errors.New("room: already a member")
	ErrRoomClosed     = errors.New("room: closed")
	ErrNotHost        = errors.New("room: host only")
	ErrNotReady       = errors.New("room: not all players ready")
)

// countdownSeconds is the pre-game countdown broadcast before the state
// machine starts.
const countdownSeconds = 3

// Room is the aggregate for one match: membership, status, config, and the
// embedded game state owned by the active machine.
//
// All mutation runs on a single goroutine consuming the command channel, so
// "is it my turn" checks and their mutations are atomic with respect to every
// other message for this room without explicit locking. Connections post
// commands via Do/call; timers post back into the same channel.
type Room struct {
	Code      string
	Name      string
	CreatedAt time.Time

	// OnEmpty is invoked (from the room's own loop) when the last member
	// leaves, so the owning registry can drop the room immediately.
	OnEmpty func(code string)

	logger *logrus.Logger
	router *ws.Router

	// Everything below is owned by the command loop.
	hostID       uuid.UUID
	players      []*models.Player
	status       models.RoomStatus
	config       models.GameConfig
	machine      game.Machine
	lastActivity time.Time
	finishedAt   time.Time
	countdown    game.Timer

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a room in waiting state with the creator as sole member and
// host, and starts its command loop.
func New(code, name string, host *models.Player, cfg models.GameConfig, logger *logrus.Logger) *Room {
	host.Connected = true
	host.JoinedAt = time.Now()
	r := &Room{
		Code:         code,
		Name:         name,
		CreatedAt:    time.Now(),
		logger:       logger,
		router:       ws.NewRouter(logger),
		hostID:       host.ID,
		players:      []*models.Player{host},
		status:       models.StatusWaiting,
		config:       cfg,
		lastActivity: time.Now(),
		inbox:        make(chan func(), 64),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// run is the room's single writer. It exits when Close is called.
func (r *Room) run() {
	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-r.done:
			return
		}
	}
}

// Do posts a command onto the room's loop. Returns false if the room has been
// closed, in which case fn will never run: a late timer callback against a
// deleted room becomes a no-op instead of a mutation of freed state.
func (r *Room) Do(fn func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

// call posts fn and waits for it to run, for operations whose caller needs a
// synchronous result (join, snapshots). The room loop never blocks on client
// I/O, so this cannot deadlock.
func (r *Room) call(fn func()) error {
	ran := make(chan struct{})
	if !r.Do(func() {
		fn()
		close(ran)
	}) {
		return ErrRoomClosed
	}
	select {
	case <-ran:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Close stops the command loop. Queued and future commands are discarded.
// Called by the registry when the room is deleted.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// touch updates lastActivity; called on every accepted client message.
func (r *Room) touch() {
	r.lastActivity = time.Now()
}

// --- game.Host implementation -------------------------------------------

// Broadcast fans an event out to every connected member, in mutation order.
func (r *Room) Broadcast(ev protocol.Event) {
	r.router.Broadcast(ev, uuid.Nil)
}

// SendTo unicasts an event to one member.
func (r *Room) SendTo(playerID uuid.UUID, ev protocol.Event) {
	r.router.Unicast(playerID, ev)
}

type afterTimer struct{ t *time.Timer }

func (a afterTimer) Stop() { a.t.Stop() }

// After schedules fn on the room loop after d. The callback is dropped if the
// room closes first.
func (r *Room) After(d time.Duration, fn func()) game.Timer {
	t := time.AfterFunc(d, func() {
		r.Do(fn)
	})
	return afterTimer{t: t}
}

type everyTimer struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (e *everyTimer) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Every schedules fn on the room loop at a fixed rate until stopped or the
// room closes.
func (r *Room) Every(d time.Duration, fn func()) game.Timer {
	et := &everyTimer{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !r.Do(fn) {
					return
				}
			case <-et.stop:
				return
			case <-r.done:
				return
			}
		}
	}()
	return et
}

// Finish is the machine's terminal report: transition to finished and
// broadcast the result. Runs on the room loop.
func (r *Room) Finish(res game.Result) {
	if r.status == models.StatusFinished {
		return
	}
	r.status = models.StatusFinished
	r.finishedAt = time.Now()
	r.Broadcast(protocol.Event{Type: protocol.EventGameOver, Data: protocol.GameOver{
		WinnerID: res.WinnerID,
		IsDraw:   res.IsDraw,
		Players:  r.playersSnapshot(),
	}})
	r.logger.WithFields(logrus.Fields{"room": r.Code, "draw": res.IsDraw}).Info("game over")
}

// --- membership & lifecycle ---------------------------------------------

// Join adds a player and binds their connection. The capacity and status
// checks run on the room loop, so no interleaving of joins can exceed
// MaxPlayers.
func (r *Room) Join(p *models.Player, conn *ws.Conn) error {
	var joinErr error
	err := r.call(func() {
		if r.status != models.StatusWaiting {
			joinErr = ErrGameInProgress
			return
		}
		if len(r.players) >= r.config.MaxPlayers {
			joinErr = ErrRoomFull
			return
		}
		for _, member := range r.players {
			if member.ID == p.ID {
				joinErr = ErrAlreadyInRoom
				return
			}
		}
		p.Connected = true
		p.JoinedAt = time.Now()
		r.players = append(r.players, p)
		r.router.Attach(p.ID, conn)
		r.touch()
		r.router.Broadcast(protocol.Event{Type: protocol.EventPlayerJoined, Data: protocol.PlayerJoined{Player: *p}}, p.ID)
		r.logger.WithFields(logrus.Fields{"room": r.Code, "player": p.ID, "name": p.Name}).Info("player joined")
	})
	if err != nil {
		return err
	}
	return joinErr
}

// AttachHost binds the creator's connection right after New.
func (r *Room) AttachHost(hostID uuid.UUID, conn *ws.Conn) {
	r.Do(func() {
		r.router.Attach(hostID, conn)
	})
}

// Leave removes a player for good. Mid-game this is a forfeit: the machine
// declares the remaining players winners and the result is broadcast before
// the membership change goes out. The last member leaving deletes the room.
func (r *Room) Leave(playerID uuid.UUID) {
	r.Do(func() {
		r.removePlayer(playerID)
	})
}

// removePlayer runs on the room loop.
func (r *Room) removePlayer(playerID uuid.UUID) {
	idx := -1
	for i, p := range r.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	r.touch()

	// Forfeit before removal so the result reaches everyone, including the
	// leaver.
	if r.status == models.StatusPlaying && r.machine != nil {
		r.machine.HandleLeave(playerID)
	}
	if r.status == models.StatusCountdown && len(r.players) <= 2 {
		// Not enough players left to start; the lone remaining member
		// wins by forfeit rather than rolling the status back.
		if r.countdown != nil {
			r.countdown.Stop()
			r.countdown = nil
		}
		var winner *uuid.UUID
		for _, p := range r.players {
			if p.ID != playerID {
				id := p.ID
				winner = &id
			}
		}
		r.Finish(game.Result{WinnerID: winner})
	}

	r.router.Detach(playerID, nil)
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	if len(r.players) == 0 {
		r.logger.WithField("room", r.Code).Info("room empty, deleting")
		if r.OnEmpty != nil {
			r.OnEmpty(r.Code)
		}
		return
	}

	// Host privilege transfers to the next member in join order.
	if r.hostID == playerID {
		r.hostID = r.players[0].ID
	}
	r.Broadcast(protocol.Event{Type: protocol.EventPlayerLeft, Data: protocol.PlayerLeft{
		PlayerID: playerID,
		HostID:   r.hostID,
	}})
}

// SetReady toggles the ready flag; meaningful only while waiting.
func (r *Room) SetReady(playerID uuid.UUID, ready bool) {
	r.Do(func() {
		if r.status != models.StatusWaiting {
			return
		}
		p := r.playerByID(playerID)
		if p == nil || p.Ready == ready {
			return
		}
		p.Ready = ready
		r.touch()
		r.Broadcast(protocol.Event{Type: protocol.EventPlayerReady, Data: protocol.PlayerReady{
			PlayerID: playerID,
			Ready:    ready,
		}})
	})
}

// Start begins the countdown. Host-only; requires a full ready-check and at
// least two members.
func (r *Room) Start(playerID uuid.UUID) error {
	var startErr error
	err := r.call(func() {
		if playerID != r.hostID {
			startErr = ErrNotHost
			return
		}
		if r.status != models.StatusWaiting {
			startErr = ErrGameInProgress
			return
		}
		if len(r.players) < 2 {
			startErr = ErrNotReady
			return
		}
		for _, p := range r.players {
			if !p.Ready {
				startErr = ErrNotReady
				return
			}
		}

		r.status = models.StatusCountdown
		r.touch()
		r.Broadcast(protocol.Event{Type: protocol.EventCountdown, Data: protocol.Countdown{Seconds: countdownSeconds}})
		r.countdown = r.After(countdownSeconds*time.Second, r.startGame)
		r.logger.WithFields(logrus.Fields{"room": r.Code, "kind": r.config.Kind}).Info("countdown started")
	})
	if err != nil {
		return err
	}
	return startErr
}

// startGame fires from the countdown timer, on the room loop.
func (r *Room) startGame() {
	if r.status != models.StatusCountdown {
		return
	}
	r.countdown = nil
	r.status = models.StatusPlaying
	r.machine = game.New(r.config, r.players, r)
	r.machine.Start()
	r.Broadcast(protocol.Event{Type: protocol.EventGameStarted, Data: protocol.GameStarted{
		Game: r.machine.View(uuid.Nil),
	}})
	r.logger.WithFields(logrus.Fields{"room": r.Code, "kind": r.config.Kind}).Info("game started")
}

// HandleAction routes a game action to the active machine. Rejections mutate
// nothing and are answered privately to the sender.
func (r *Room) HandleAction(playerID uuid.UUID, msg protocol.ClientMessage) {
	r.Do(func() {
		if r.status != models.StatusPlaying || r.machine == nil {
			r.SendTo(playerID, protocol.NewError("no game in progress"))
			return
		}
		if err := r.machine.HandleAction(playerID, msg); err != nil {
			r.SendTo(playerID, protocol.NewError(err.Error()))
			return
		}
		r.touch()
	})
}

// Disconnect marks a player unreachable without removing them, leaving the
// door open for a token reconnect until the stale timeout.
func (r *Room) Disconnect(playerID uuid.UUID, conn *ws.Conn) {
	r.Do(func() {
		p := r.playerByID(playerID)
		if p == nil {
			return
		}
		// A stale socket's teardown must not demote a player who already
		// reconnected on a fresh one.
		if !r.router.Detach(playerID, conn) {
			return
		}
		if !p.Connected {
			return
		}
		p.Connected = false
		if r.machine != nil {
			r.machine.HandleDisconnect(playerID)
		}
		r.Broadcast(protocol.Event{Type: protocol.EventPlayerDisconnected, Data: protocol.PlayerPresence{PlayerID: playerID}})
		r.logger.WithFields(logrus.Fields{"room": r.Code, "player": playerID}).Info("player disconnected")
	})
}

// Reconnect re-binds a returning player's new connection, sends them a full
// snapshot (with their fresh reconnection token) privately, and gives the
// rest of the room a lightweight notice. Both emissions happen on the room
// loop, so the snapshot precedes any event the player observes after it.
func (r *Room) Reconnect(playerID uuid.UUID, conn *ws.Conn, token string) error {
	var p *models.Player
	err := r.call(func() {
		p = r.playerByID(playerID)
		if p == nil {
			return
		}
		p.Connected = true
		r.router.Attach(playerID, conn)
		r.touch()
		r.SendTo(playerID, protocol.Event{Type: protocol.EventRoomState, Data: protocol.RoomJoined{
			RoomCode: r.Code,
			PlayerID: playerID,
			Token:    token,
			Room:     r.view(playerID),
		}})
		r.router.Broadcast(protocol.Event{Type: protocol.EventPlayerReconnected, Data: protocol.PlayerPresence{PlayerID: playerID}}, playerID)
		r.logger.WithFields(logrus.Fields{"room": r.Code, "player": playerID}).Info("player reconnected")
	})
	if err != nil {
		return err
	}
	if p == nil {
		return ErrRoomNotFound
	}
	return nil
}

// Touch records activity from messages handled outside the room loop (pongs).
func (r *Room) Touch() {
	r.Do(r.touch)
}

// --- snapshots ----------------------------------------------------------

// view builds the authoritative room snapshot. Runs on the room loop.
func (r *Room) view(forPlayer uuid.UUID) protocol.RoomView {
	v := protocol.RoomView{
		Code:    r.Code,
		Name:    r.Name,
		HostID:  r.hostID,
		Status:  r.status,
		Config:  r.config,
		Players: r.playersSnapshot(),
	}
	if r.machine != nil {
		v.Game = r.machine.View(forPlayer)
	}
	return v
}

// View returns the snapshot for a player, synchronized through the loop.
func (r *Room) View(forPlayer uuid.UUID) (protocol.RoomView, error) {
	var v protocol.RoomView
	err := r.call(func() {
		v = r.view(forPlayer)
	})
	return v, err
}

func (r *Room) playersSnapshot() []models.Player {
	out := make([]models.Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

// Summary reports the public listing entry, or ok=false if the room should
// not be listed (not waiting, full, or private).
func (r *Room) Summary() (models.RoomSummary, bool) {
	var s models.RoomSummary
	ok := false
	err := r.call(func() {
		if !r.config.Public || r.status != models.StatusWaiting || len(r.players) >= r.config.MaxPlayers {
			return
		}
		hostName := ""
		if h := r.playerByID(r.hostID); h != nil {
			hostName = h.Name
		}
		s = models.RoomSummary{
			Code:       r.Code,
			Name:       r.Name,
			HostName:   hostName,
			Players:    len(r.players),
			MaxPlayers: r.config.MaxPlayers,
			Config:     r.config,
		}
		ok = true
	})
	if err != nil {
		return models.RoomSummary{}, false
	}
	return s, ok
}

// MemberIDs returns the current member identities, for token revocation on
// reclamation.
func (r *Room) MemberIDs() []uuid.UUID {
	var ids []uuid.UUID
	_ = r.call(func() {
		for _, p := range r.players {
			ids = append(ids, p.ID)
		}
	})
	return ids
}

// Stale reports (on the room loop) whether the room is reclaimable at now:
// either no member has been connected since lastActivity plus the timeout, or
// the room finished longer than the timeout ago.
func (r *Room) Stale(now time.Time, timeout time.Duration) bool {
	stale := false
	err := r.call(func() {
		if r.status == models.StatusFinished && now.Sub(r.finishedAt) > timeout {
			stale = true
			return
		}
		for _, p := range r.players {
			if p.Connected {
				return
			}
		}
		if now.Sub(r.lastActivity) > timeout {
			stale = true
		}
	})
	if err != nil {
		return false
	}
	return stale
}

func (r *Room) playerByID(id uuid.UUID) *models.Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}
