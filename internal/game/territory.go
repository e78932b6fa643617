// internal/game/territory.go
package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
)

// Team territory battle on a square grid. Two teams, assigned by join order,
// spend regenerating action points to claim territories adjacent to ones they
// already hold. The round clock or total domination ends the game.
const (
	territoryTickRate = time.Second // 1 Hz
	territoryRound    = 3 * time.Minute

	territoryClaimCost   = 3
	territoryPointsCap   = 10
	territoryRegenPerSec = 1

	neutralOwner = -1

	neutralCaptureScore = 10
	enemyCaptureScore   = 15
)

func gridFor(d models.Difficulty) int {
	switch d {
	case models.DifficultyEasy:
		return 4
	case models.DifficultyHard:
		return 6
	default:
		return 5
	}
}

// TerritoryView is the full-state snapshot broadcast each tick.
type TerritoryView struct {
	Kind      models.GameKind `json:"gameKind"`
	GridSize  int             `json:"gridSize"`
	Owners    []int           `json:"owners"` // row-major; -1 neutral, else team
	Points    map[string]int  `json:"actionPoints"`
	TimeLeft  int             `json:"timeLeftSec"`
	TeamTiles [2]int          `json:"teamTiles"`
}

// Territory is the tick-based territory battle machine.
type Territory struct {
	host    Host
	players []*models.Player

	size   int
	owners []int // territory id -> team, neutralOwner while unclaimed
	points map[uuid.UUID]int

	timeLeft int // seconds

	ticker   Timer
	TickRate time.Duration

	finished bool
}

func NewTerritory(cfg models.GameConfig, players []*models.Player, host Host) *Territory {
	size := gridFor(cfg.Difficulty)
	return &Territory{
		host:     host,
		players:  clonePlayers(players),
		size:     size,
		owners:   make([]int, size*size),
		points:   make(map[uuid.UUID]int),
		timeLeft: int(territoryRound / time.Second),
		TickRate: territoryTickRate,
	}
}

func (t *Territory) Kind() models.GameKind { return models.KindTerritory }

// Start assigns teams alternating by join order, seeds each team with one
// corner territory, and begins the clock.
func (t *Territory) Start() {
	for i := range t.owners {
		t.owners[i] = neutralOwner
	}
	for i, p := range t.players {
		p.Team = i % 2
		t.points[p.ID] = territoryClaimCost
	}
	t.owners[0] = 0               // top-left
	t.owners[len(t.owners)-1] = 1 // bottom-right
	t.ticker = t.host.Every(t.TickRate, t.tick)
}

// HandleAction routes claim_territory.
func (t *Territory) HandleAction(playerID uuid.UUID, msg protocol.ClientMessage) error {
	if msg.Type != protocol.MsgClaimTerritory {
		return ErrInvalidAction
	}
	return t.claim(playerID, msg.TerritoryID)
}

func (t *Territory) claim(playerID uuid.UUID, id int) error {
	if t.finished {
		return ErrGameFinished
	}
	player := t.playerByID(playerID)
	if player == nil {
		return ErrInvalidAction
	}
	if id < 0 || id >= len(t.owners) {
		return ErrInvalidAction
	}
	if t.owners[id] == player.Team {
		return ErrInvalidAction
	}
	if !t.adjacentToTeam(id, player.Team) {
		return ErrInvalidAction
	}
	if t.points[playerID] < territoryClaimCost {
		return ErrInvalidAction
	}

	t.points[playerID] -= territoryClaimCost
	wasNeutral := t.owners[id] == neutralOwner
	t.owners[id] = player.Team
	if wasNeutral {
		player.Score += neutralCaptureScore
	} else {
		player.Score += enemyCaptureScore
	}

	t.host.Broadcast(protocol.Event{Type: protocol.EventTerritoryClaimed, Data: protocol.TerritoryClaimed{
		PlayerID:    playerID,
		TerritoryID: id,
		Team:        player.Team,
	}})

	if t.dominated(player.Team) {
		t.finishWith(player.Team)
	}
	return nil
}

// adjacentToTeam reports whether any 4-neighbor of id belongs to team.
func (t *Territory) adjacentToTeam(id, team int) bool {
	row, col := id/t.size, id%t.size
	neighbors := [4][2]int{{row - 1, col}, {row + 1, col}, {row, col - 1}, {row, col + 1}}
	for _, n := range neighbors {
		r, c := n[0], n[1]
		if r < 0 || r >= t.size || c < 0 || c >= t.size {
			continue
		}
		if t.owners[r*t.size+c] == team {
			return true
		}
	}
	return false
}

func (t *Territory) dominated(team int) bool {
	for _, o := range t.owners {
		if o != team {
			return false
		}
	}
	return true
}

// tick regenerates action points and advances the round clock, then
// broadcasts the snapshot.
func (t *Territory) tick() {
	if t.finished {
		return
	}
	for _, p := range t.players {
		ap, active := t.points[p.ID]
		if !active {
			continue // departed players stop regenerating
		}
		if ap < territoryPointsCap {
			t.points[p.ID] = ap + territoryRegenPerSec
		}
	}
	t.timeLeft--
	if t.timeLeft <= 0 {
		tiles := t.countTiles()
		switch {
		case tiles[0] > tiles[1]:
			t.finishWith(0)
		case tiles[1] > tiles[0]:
			t.finishWith(1)
		default:
			t.finishDraw()
		}
		return
	}
	t.host.Broadcast(protocol.Event{Type: protocol.EventTerritoryState, Data: t.View(uuid.Nil)})
}

func (t *Territory) countTiles() [2]int {
	var tiles [2]int
	for _, o := range t.owners {
		if o == 0 || o == 1 {
			tiles[o]++
		}
	}
	return tiles
}

// HandleLeave forfeits the leaver's team stake: the opposing team wins
// immediately, per the shared room-lifecycle contract, unless the leaver's
// team still has members to carry on.
func (t *Territory) HandleLeave(playerID uuid.UUID) {
	if t.finished {
		return
	}
	leaver := t.playerByID(playerID)
	if leaver == nil {
		return
	}
	delete(t.points, playerID)
	for _, p := range t.players {
		if p.ID == playerID || p.Team != leaver.Team {
			continue
		}
		// A missing points entry marks an earlier leaver.
		if _, active := t.points[p.ID]; active {
			return // Team still staffed; play on.
		}
	}
	t.finishWith(1 - leaver.Team)
}

func (t *Territory) HandleDisconnect(playerID uuid.UUID) {}

// finishWith ends the game in favor of a team; the winning team's top scorer
// is reported as the winner.
func (t *Territory) finishWith(team int) {
	if t.finished {
		return
	}
	t.stop()

	var winner *uuid.UUID
	best := -1
	for _, p := range t.players {
		if p.Team == team && p.Score > best {
			best = p.Score
			id := p.ID
			winner = &id
		}
	}
	t.host.Finish(Result{WinnerID: winner})
}

func (t *Territory) finishDraw() {
	if t.finished {
		return
	}
	t.stop()
	t.host.Finish(Result{IsDraw: true})
}

func (t *Territory) stop() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.finished = true
}

func (t *Territory) View(forPlayer uuid.UUID) interface{} {
	owners := make([]int, len(t.owners))
	copy(owners, t.owners)
	points := make(map[string]int, len(t.points))
	for id, ap := range t.points {
		points[id.String()] = ap
	}
	return TerritoryView{
		Kind:      models.KindTerritory,
		GridSize:  t.size,
		Owners:    owners,
		Points:    points,
		TimeLeft:  t.timeLeft,
		TeamTiles: t.countTiles(),
	}
}

func (t *Territory) playerByID(id uuid.UUID) *models.Player {
	for _, p := range t.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}
