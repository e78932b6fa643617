// internal/game/defense_test.go
package game

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
)

func setupDefense(t *testing.T, numPlayers int, difficulty models.Difficulty) (*Defense, []*models.Player, *mockHost) {
	t.Helper()
	players := make([]*models.Player, numPlayers)
	for i := range players {
		players[i] = &models.Player{
			ID:        uuid.New(),
			Name:      fmt.Sprintf("player%d", i+1),
			Connected: true,
		}
	}
	host := newMockHost()
	cfg := models.GameConfig{Kind: models.KindDefense, Difficulty: difficulty, MaxPlayers: 4}
	d := NewDefense(cfg, players, host)
	d.Start()
	return d, players, host
}

func place(d *Defense, playerID uuid.UUID, kind string, slot int) error {
	return d.HandleAction(playerID, protocol.ClientMessage{Type: protocol.MsgPlaceTower, TowerKind: kind, Slot: slot})
}

func TestDefenseStart(t *testing.T) {
	d, players, host := setupDefense(t, 2, models.DifficultyEasy)

	assert.Equal(t, 1, d.wave)
	assert.Equal(t, 5, d.totalWaves)
	assert.Equal(t, defenseLives, d.lives)
	for _, p := range players {
		assert.Equal(t, defenseStartGold, d.gold[p.ID])
	}
	require.Len(t, host.tickers, 1)
	assert.Equal(t, defenseTickRate, host.tickers[0].d)
}

func TestDefensePlaceTowerValidation(t *testing.T) {
	d, players, host := setupDefense(t, 2, models.DifficultyEasy)
	p1 := players[0]

	assert.ErrorIs(t, place(d, p1.ID, "laser", 0), ErrInvalidAction)
	assert.ErrorIs(t, place(d, p1.ID, "arrow", -1), ErrInvalidAction)
	assert.ErrorIs(t, place(d, p1.ID, "arrow", 6), ErrInvalidAction)
	assert.ErrorIs(t, place(d, p1.ID, "cannon", 0), ErrInvalidAction, "cannon costs more than starting gold")

	require.NoError(t, place(d, p1.ID, "arrow", 0))
	assert.Equal(t, 50, d.gold[p1.ID])
	assert.ErrorIs(t, place(d, p1.ID, "arrow", 0), ErrInvalidAction, "slot is occupied")

	placed := host.eventsOfType(protocol.EventTowerPlaced)
	require.Len(t, placed, 1)
	payload := placed[0].Data.(protocol.TowerPlaced)
	assert.Equal(t, p1.ID, payload.PlayerID)
	assert.Equal(t, "arrow", payload.Kind)
	assert.Equal(t, 50, payload.Gold)
}

func TestDefenseTowerKillsEarnScoreAndBounty(t *testing.T) {
	d, players, _ := setupDefense(t, 2, models.DifficultyEasy)
	p1 := players[0]
	require.NoError(t, place(d, p1.ID, "arrow", 0))

	// An arrow at slot 0 covers the spawn point; wave-1 enemies (15 HP,
	// ~0.3/tick) die well inside its range.
	for i := 0; i < 30; i++ {
		d.tick()
	}
	assert.Greater(t, p1.Score, 0, "tower damage should credit the owner")
	assert.Greater(t, d.gold[p1.ID], 50, "kill bounty should pay out")
}

func TestDefenseLeakedEnemiesEndTheRun(t *testing.T) {
	d, _, host := setupDefense(t, 2, models.DifficultyEasy)

	// No towers: every enemy leaks. The run must end in a shared loss well
	// before this tick budget.
	for i := 0; i < 2000 && host.result == nil; i++ {
		d.tick()
	}
	require.NotNil(t, host.result)
	assert.Nil(t, host.result.WinnerID)
	assert.False(t, host.result.IsDraw)
	assert.LessOrEqual(t, d.lives, 0)

	assert.ErrorIs(t, place(d, d.players[0].ID, "arrow", 1), ErrGameFinished)
}

func TestDefenseSnapshotBroadcastEachTick(t *testing.T) {
	d, _, host := setupDefense(t, 2, models.DifficultyMedium)

	d.tick()
	d.tick()
	states := host.eventsOfType(protocol.EventDefenseState)
	require.Len(t, states, 2)
	view := states[1].Data.(DefenseView)
	assert.Equal(t, models.KindDefense, view.Kind)
	assert.Equal(t, 8, view.TotalWaves)
	assert.Equal(t, 6, view.Slots)
}

func TestDefenseLastLeaveEndsRun(t *testing.T) {
	d, players, host := setupDefense(t, 2, models.DifficultyEasy)

	d.HandleLeave(players[0].ID)
	assert.Nil(t, host.result, "run continues while someone remains")
	assert.NotContains(t, d.gold, players[0].ID)

	d.HandleLeave(players[1].ID)
	require.NotNil(t, host.result)
	assert.Nil(t, host.result.WinnerID)
}
