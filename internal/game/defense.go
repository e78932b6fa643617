// internal/game/defense.go
package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
)

// Cooperative tower defense. Unlike the turn-based machine, there is no turn
// order: any player may act at any time, validation is purely capability
// based (gold balance, free slot), and the authoritative state goes out as a
// periodic full snapshot on every simulation tick rather than per-action
// deltas.
const (
	defenseTickRate  = 250 * time.Millisecond // 4 Hz
	defensePathLen   = 20
	defenseLives     = 20
	defenseStartGold = 100

	// Enemies spawn this many ticks apart within a wave; the next wave
	// starts after a short breather once the field is clear.
	defenseSpawnEveryTicks = 4
	defenseWaveBreakTicks  = 12
)

type towerSpec struct {
	Cost   int     `json:"cost"`
	Damage int     `json:"damage"`
	Range  float64 `json:"range"`
}

// towerSpecs is the tower catalog keyed by kind.
var towerSpecs = map[string]towerSpec{
	"arrow":  {Cost: 50, Damage: 4, Range: 3},
	"cannon": {Cost: 120, Damage: 12, Range: 2},
}

func wavesFor(d models.Difficulty) int {
	switch d {
	case models.DifficultyEasy:
		return 5
	case models.DifficultyHard:
		return 12
	default:
		return 8
	}
}

type tower struct {
	Kind  string    `json:"kind"`
	Slot  int       `json:"slot"`
	Owner uuid.UUID `json:"owner"`
}

type enemy struct {
	ID  int     `json:"id"`
	HP  int     `json:"hp"`
	Pos float64 `json:"pos"` // progress along the path, [0, defensePathLen)
}

// DefenseView is the full-state snapshot broadcast each tick.
type DefenseView struct {
	Kind       models.GameKind `json:"gameKind"`
	Wave       int             `json:"wave"`
	TotalWaves int             `json:"totalWaves"`
	Lives      int             `json:"lives"`
	PathLen    int             `json:"pathLen"`
	Slots      int             `json:"slots"`
	Towers     []tower         `json:"towers"`
	Enemies    []enemy         `json:"enemies"`
	Gold       map[string]int  `json:"gold"`
}

// Defense is the wave-based cooperative machine.
type Defense struct {
	host    Host
	players []*models.Player

	towers  []*tower // indexed by slot, nil while empty
	enemies []*enemy
	gold    map[uuid.UUID]int
	gone    map[uuid.UUID]bool

	wave       int
	totalWaves int
	lives      int

	toSpawn   int // enemies left to spawn in the current wave
	spawnIn   int // ticks until the next spawn
	nextEnemy int

	ticker   Timer
	TickRate time.Duration

	finished bool
}

func NewDefense(cfg models.GameConfig, players []*models.Player, host Host) *Defense {
	slots := 6
	if cfg.Difficulty == models.DifficultyHard {
		slots = 8
	}
	return &Defense{
		host:       host,
		players:    clonePlayers(players),
		towers:     make([]*tower, slots),
		gold:       make(map[uuid.UUID]int),
		gone:       make(map[uuid.UUID]bool),
		totalWaves: wavesFor(cfg.Difficulty),
		lives:      defenseLives,
		TickRate:   defenseTickRate,
	}
}

func (d *Defense) Kind() models.GameKind { return models.KindDefense }

func (d *Defense) Start() {
	for _, p := range d.players {
		d.gold[p.ID] = defenseStartGold
	}
	d.startWave(1)
	d.ticker = d.host.Every(d.TickRate, d.tick)
}

// startWave arms the next wave. Waves after the first open with a short
// breather before their first spawn.
func (d *Defense) startWave(n int) {
	d.wave = n
	d.toSpawn = 4 + 2*n
	d.spawnIn = 0
	if n > 1 {
		d.spawnIn = defenseWaveBreakTicks
	}
}

// HandleAction routes place_tower.
func (d *Defense) HandleAction(playerID uuid.UUID, msg protocol.ClientMessage) error {
	if msg.Type != protocol.MsgPlaceTower {
		return ErrInvalidAction
	}
	return d.placeTower(playerID, msg.TowerKind, msg.Slot)
}

func (d *Defense) placeTower(playerID uuid.UUID, kind string, slot int) error {
	if d.finished {
		return ErrGameFinished
	}
	spec, ok := towerSpecs[kind]
	if !ok {
		return ErrInvalidAction
	}
	if slot < 0 || slot >= len(d.towers) || d.towers[slot] != nil {
		return ErrInvalidAction
	}
	if d.gold[playerID] < spec.Cost {
		return ErrInvalidAction
	}

	d.gold[playerID] -= spec.Cost
	d.towers[slot] = &tower{Kind: kind, Slot: slot, Owner: playerID}
	d.host.Broadcast(protocol.Event{Type: protocol.EventTowerPlaced, Data: protocol.TowerPlaced{
		PlayerID: playerID,
		Kind:     kind,
		Slot:     slot,
		Gold:     d.gold[playerID],
	}})
	return nil
}

// tick advances one simulation step: spawn, move, shoot, then broadcast the
// full snapshot. It runs on the room's command loop, serialized with player
// actions.
func (d *Defense) tick() {
	if d.finished {
		return
	}

	// Spawning.
	if d.toSpawn > 0 {
		if d.spawnIn == 0 {
			hp := 10 + 5*d.wave
			d.enemies = append(d.enemies, &enemy{ID: d.nextEnemy, HP: hp})
			d.nextEnemy++
			d.toSpawn--
			d.spawnIn = defenseSpawnEveryTicks
		} else {
			d.spawnIn--
		}
	}

	// Movement; enemies that reach the end of the path leak and cost lives.
	speed := 0.25 + 0.05*float64(d.wave)
	alive := d.enemies[:0]
	for _, e := range d.enemies {
		e.Pos += speed
		if e.Pos >= defensePathLen {
			d.lives--
			continue
		}
		alive = append(alive, e)
	}
	d.enemies = alive

	// Towers shoot the furthest-along enemy in range. Slot i sits beside
	// path position scaled across the path length.
	for i, t := range d.towers {
		if t == nil {
			continue
		}
		spec := towerSpecs[t.Kind]
		pos := float64(i) * float64(defensePathLen) / float64(len(d.towers))
		var target *enemy
		for _, e := range d.enemies {
			if e.Pos >= pos-spec.Range && e.Pos <= pos+spec.Range {
				if target == nil || e.Pos > target.Pos {
					target = e
				}
			}
		}
		if target == nil {
			continue
		}
		target.HP -= spec.Damage
		if owner := d.playerByID(t.Owner); owner != nil {
			owner.Score += spec.Damage
		}
		if target.HP <= 0 {
			d.removeEnemy(target.ID)
			// Kill bounty goes to the tower's owner.
			d.gold[t.Owner] += 10 + 2*d.wave
		}
	}

	// Terminal checks and wave advancement.
	if d.lives <= 0 {
		d.finish(false)
		return
	}
	if d.toSpawn == 0 && len(d.enemies) == 0 {
		if d.wave >= d.totalWaves {
			d.finish(true)
			return
		}
		d.startWave(d.wave + 1)
	}

	d.host.Broadcast(protocol.Event{Type: protocol.EventDefenseState, Data: d.View(uuid.Nil)})
}

// HandleLeave forfeits the leaver's stake; the run continues for the others
// unless nobody is left, in which case the room has already decided to end
// the game and the remaining (zero) members make it a loss.
func (d *Defense) HandleLeave(playerID uuid.UUID) {
	if d.finished || d.gone[playerID] {
		return
	}
	d.gone[playerID] = true
	delete(d.gold, playerID)
	remaining := 0
	for _, p := range d.players {
		if !d.gone[p.ID] {
			remaining++
		}
	}
	if remaining == 0 {
		d.finish(false)
		return
	}
	// Orphaned towers keep firing; the departed player just stops earning.
}

func (d *Defense) HandleDisconnect(playerID uuid.UUID) {}

// finish ends the run for everyone at once: the result is shared, with the
// top scorer reported as the standout on a win and no winner on a loss.
func (d *Defense) finish(won bool) {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
	d.finished = true

	var winner *uuid.UUID
	if won {
		best := -1
		for _, p := range d.players {
			if p.Score > best {
				best = p.Score
				id := p.ID
				winner = &id
			}
		}
	}
	d.host.Finish(Result{WinnerID: winner})
}

func (d *Defense) View(forPlayer uuid.UUID) interface{} {
	towers := make([]tower, 0, len(d.towers))
	for _, t := range d.towers {
		if t != nil {
			towers = append(towers, *t)
		}
	}
	enemies := make([]enemy, len(d.enemies))
	for i, e := range d.enemies {
		enemies[i] = *e
	}
	gold := make(map[string]int, len(d.gold))
	for id, g := range d.gold {
		gold[id.String()] = g
	}
	return DefenseView{
		Kind:       models.KindDefense,
		Wave:       d.wave,
		TotalWaves: d.totalWaves,
		Lives:      d.lives,
		PathLen:    defensePathLen,
		Slots:      len(d.towers),
		Towers:     towers,
		Enemies:    enemies,
		Gold:       gold,
	}
}

func (d *Defense) playerByID(id uuid.UUID) *models.Player {
	for _, p := range d.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (d *Defense) removeEnemy(id int) {
	for i, e := range d.enemies {
		if e.ID == id {
			d.enemies = append(d.enemies[:i], d.enemies[i+1:]...)
			return
		}
	}
}
