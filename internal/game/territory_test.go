// internal/game/territory_test.go
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

func setupTerritory(t *testing.T, numPlayers int, difficulty models.Difficulty) (*Territory, []*models.Player, *mockHost) {
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
	cfg := models.GameConfig{Kind: models.KindTerritory, Difficulty: difficulty, MaxPlayers: 6}
	tr := NewTerritory(cfg, players, host)
	tr.Start()
	return tr, players, host
}

func claim(tr *Territory, playerID uuid.UUID, id int) error {
	return tr.HandleAction(playerID, protocol.ClientMessage{Type: protocol.MsgClaimTerritory, TerritoryID: id})
}

func TestTerritoryStart(t *testing.T) {
	tr, players, _ := setupTerritory(t, 2, models.DifficultyMedium)

	assert.Equal(t, 0, players[0].Team)
	assert.Equal(t, 1, players[1].Team)
	assert.Equal(t, 0, tr.owners[0], "team 0 seeds the top-left corner")
	assert.Equal(t, 1, tr.owners[24], "team 1 seeds the bottom-right corner")
	for i := 1; i < 24; i++ {
		assert.Equal(t, neutralOwner, tr.owners[i])
	}
	assert.Equal(t, territoryClaimCost, tr.points[players[0].ID])
}

func TestTerritoryClaimValidation(t *testing.T) {
	tr, players, _ := setupTerritory(t, 2, models.DifficultyMedium)
	p1 := players[0]

	assert.ErrorIs(t, claim(tr, p1.ID, -1), ErrInvalidAction)
	assert.ErrorIs(t, claim(tr, p1.ID, 25), ErrInvalidAction)
	assert.ErrorIs(t, claim(tr, p1.ID, 0), ErrInvalidAction, "own territory")
	assert.ErrorIs(t, claim(tr, p1.ID, 12), ErrInvalidAction, "not adjacent to team territory")

	// Tile 1 neighbors the seeded corner 0.
	require.NoError(t, claim(tr, p1.ID, 1))
	assert.Equal(t, 0, tr.owners[1])
	assert.Equal(t, neutralCaptureScore, p1.Score)
	assert.Zero(t, tr.points[p1.ID])

	assert.ErrorIs(t, claim(tr, p1.ID, 5), ErrInvalidAction, "no action points left")
}

func TestTerritoryRegenAndEnemyCapture(t *testing.T) {
	tr, players, host := setupTerritory(t, 2, models.DifficultyMedium)
	p1 := players[0]

	require.NoError(t, claim(tr, p1.ID, 1))
	require.Zero(t, tr.points[p1.ID])

	for i := 0; i < territoryClaimCost; i++ {
		tr.tick()
	}
	require.Equal(t, territoryClaimCost, tr.points[p1.ID])

	// Hand tile 5 to the enemy team; recapturing it pays the higher score.
	tr.owners[5] = 1
	require.NoError(t, claim(tr, p1.ID, 5))
	assert.Equal(t, neutralCaptureScore+enemyCaptureScore, p1.Score)

	claimed := host.eventsOfType(protocol.EventTerritoryClaimed)
	require.Len(t, claimed, 2)
	payload := claimed[1].Data.(protocol.TerritoryClaimed)
	assert.Equal(t, 5, payload.TerritoryID)
	assert.Equal(t, 0, payload.Team)
}

func TestTerritoryDominationWins(t *testing.T) {
	tr, players, host := setupTerritory(t, 2, models.DifficultyEasy)
	p1 := players[0]

	for i := range tr.owners {
		tr.owners[i] = 0
	}
	tr.owners[1] = 1
	tr.points[p1.ID] = territoryClaimCost

	require.NoError(t, claim(tr, p1.ID, 1))

	require.NotNil(t, host.result)
	require.NotNil(t, host.result.WinnerID)
	assert.Equal(t, p1.ID, *host.result.WinnerID)
	assert.ErrorIs(t, claim(tr, p1.ID, 2), ErrGameFinished)
}

func TestTerritoryClockEndCountsTiles(t *testing.T) {
	tr, players, host := setupTerritory(t, 2, models.DifficultyMedium)

	tr.owners[1] = 0 // team 0 leads 2 tiles to 1
	tr.timeLeft = 1
	tr.tick()

	require.NotNil(t, host.result)
	require.NotNil(t, host.result.WinnerID)
	assert.Equal(t, players[0].ID, *host.result.WinnerID)
	assert.False(t, host.result.IsDraw)
}

func TestTerritoryClockEndTieIsDraw(t *testing.T) {
	tr, _, host := setupTerritory(t, 2, models.DifficultyMedium)

	tr.timeLeft = 1
	tr.tick()

	require.NotNil(t, host.result)
	assert.Nil(t, host.result.WinnerID)
	assert.True(t, host.result.IsDraw)
}

func TestTerritoryKeepsOwnMemberList(t *testing.T) {
	tr, players, host := setupTerritory(t, 4, models.DifficultyMedium)

	// The room drops a leaver from its own slice with an in-place append,
	// shifting the backing array. The machine's roster must not alias it,
	// or the duplicated tail player would regenerate at double rate.
	tr.HandleLeave(players[0].ID)
	roomSlice := players
	roomSlice = append(roomSlice[:0], roomSlice[1:]...)
	require.Len(t, roomSlice, 3)

	tr.tick()

	assert.Equal(t, territoryClaimCost+1, tr.points[players[1].ID])
	assert.Equal(t, territoryClaimCost+1, tr.points[players[3].ID],
		"tail player must regenerate once per tick, not twice")
	assert.Nil(t, host.result)
}

func TestTerritoryLeaveForfeitsTeam(t *testing.T) {
	tr, players, host := setupTerritory(t, 4, models.DifficultyMedium)

	// players 0 and 2 are team 0. One leaving keeps the game alive.
	tr.HandleLeave(players[0].ID)
	assert.Nil(t, host.result)

	tr.HandleLeave(players[2].ID)
	require.NotNil(t, host.result)
	require.NotNil(t, host.result.WinnerID)
	winner := tr.playerByID(*host.result.WinnerID)
	require.NotNil(t, winner)
	assert.Equal(t, 1, winner.Team)
}
