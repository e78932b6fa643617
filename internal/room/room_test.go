// internal/room/room_test.go
package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlor-games/parlor/internal/game"
	"github.com/parlor-games/parlor/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testPlayer(i int) *models.Player {
	return &models.Player{ID: uuid.New(), Name: fmt.Sprintf("player%d", i)}
}

// newTestRoom builds a room with n members and no live connections.
func newTestRoom(t *testing.T, cfg models.GameConfig, n int) (*Room, []*models.Player) {
	t.Helper()
	cfg.Normalize()
	players := make([]*models.Player, n)
	players[0] = testPlayer(1)
	r := New("TEST", "test room", players[0], cfg, testLogger())
	t.Cleanup(r.Close)
	for i := 1; i < n; i++ {
		players[i] = testPlayer(i + 1)
		require.NoError(t, r.Join(players[i], nil))
	}
	return r, players
}

func roomStatus(t *testing.T, r *Room) models.RoomStatus {
	t.Helper()
	v, err := r.View(uuid.Nil)
	require.NoError(t, err)
	return v.Status
}

func TestRoomJoinEnforcesCapacity(t *testing.T) {
	r, _ := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)

	err := r.Join(testPlayer(3), nil)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestRoomJoinRejectsDuplicateMember(t *testing.T) {
	cfg := models.GameConfig{Kind: models.KindTerritory}
	r, players := newTestRoom(t, cfg, 2)

	err := r.Join(players[1], nil)
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestRoomStartValidation(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)
	host, other := players[0], players[1]

	assert.ErrorIs(t, r.Start(other.ID), ErrNotHost)
	assert.ErrorIs(t, r.Start(host.ID), ErrNotReady, "ready-check incomplete")

	r.SetReady(host.ID, true)
	r.SetReady(other.ID, true)
	require.NoError(t, r.Start(host.ID))
	assert.Equal(t, models.StatusCountdown, roomStatus(t, r))

	// No join and no second start once the countdown is running.
	assert.ErrorIs(t, r.Join(testPlayer(3), nil), ErrGameInProgress)
	assert.ErrorIs(t, r.Start(host.ID), ErrGameInProgress)
}

func TestRoomCountdownReachesPlaying(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)
	for _, p := range players {
		r.SetReady(p.ID, true)
	}
	require.NoError(t, r.Start(players[0].ID))

	require.Eventually(t, func() bool {
		return roomStatus(t, r) == models.StatusPlaying
	}, 5*time.Second, 100*time.Millisecond)

	v, err := r.View(players[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, v.Game, "playing room exposes the machine snapshot")
}

func TestRoomSetReadyOnlyWhileWaiting(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)
	for _, p := range players {
		r.SetReady(p.ID, true)
	}
	require.NoError(t, r.Start(players[0].ID))

	r.SetReady(players[1].ID, false)
	v, err := r.View(uuid.Nil)
	require.NoError(t, err)
	for _, p := range v.Players {
		assert.True(t, p.Ready, "ready flags are frozen after the countdown starts")
	}
}

func TestRoomLeaveDuringCountdownForfeits(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)
	for _, p := range players {
		r.SetReady(p.ID, true)
	}
	require.NoError(t, r.Start(players[0].ID))

	r.Leave(players[1].ID)

	require.Eventually(t, func() bool {
		return roomStatus(t, r) == models.StatusFinished
	}, time.Second, 10*time.Millisecond)

	// The countdown timer must not promote a finished room back to playing.
	time.Sleep(countdownSeconds*time.Second + 200*time.Millisecond)
	assert.Equal(t, models.StatusFinished, roomStatus(t, r))
}

func TestRoomHostTransferFollowsJoinOrder(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindTerritory}, 3)

	r.Leave(players[0].ID)

	require.Eventually(t, func() bool {
		v, err := r.View(uuid.Nil)
		return err == nil && v.HostID == players[1].ID && len(v.Players) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRoomMidGameLeaveForfeits(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)
	for _, p := range players {
		r.SetReady(p.ID, true)
	}
	require.NoError(t, r.Start(players[0].ID))
	require.Eventually(t, func() bool {
		return roomStatus(t, r) == models.StatusPlaying
	}, 5*time.Second, 100*time.Millisecond)

	r.Leave(players[1].ID)

	require.Eventually(t, func() bool {
		return roomStatus(t, r) == models.StatusFinished
	}, time.Second, 10*time.Millisecond)
}

func TestRoomTickGameSurvivesMidGameLeave(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindTerritory}, 4)
	for _, p := range players {
		r.SetReady(p.ID, true)
	}
	require.NoError(t, r.Start(players[0].ID))
	require.Eventually(t, func() bool {
		return roomStatus(t, r) == models.StatusPlaying
	}, 5*time.Second, 100*time.Millisecond)

	// players[2] shares a team with the leaver, so the game plays on; the
	// machine's roster must not be disturbed by the room's removal.
	r.Leave(players[0].ID)

	require.Eventually(t, func() bool {
		v, err := r.View(uuid.Nil)
		return err == nil && len(v.Players) == 3
	}, time.Second, 10*time.Millisecond)

	v, err := r.View(uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, v.Status)
	tv, ok := v.Game.(game.TerritoryView)
	require.True(t, ok)
	assert.Len(t, tv.Points, 3, "leaver stops accruing action points")
	assert.NotContains(t, tv.Points, players[0].ID.String())

	// Let a simulation tick land on the post-leave roster.
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, models.StatusPlaying, roomStatus(t, r))
}

func TestRoomDoAfterCloseIsNoop(t *testing.T) {
	r, _ := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 1)
	require.True(t, r.Do(func() {}))

	r.Close()
	assert.False(t, r.Do(func() {}))
	assert.ErrorIs(t, r.Join(testPlayer(2), nil), ErrRoomClosed)
}

func TestRoomStaleness(t *testing.T) {
	r, players := newTestRoom(t, models.GameConfig{Kind: models.KindMemory}, 2)
	timeout := 5 * time.Minute
	later := time.Now().Add(10 * time.Minute)

	assert.False(t, r.Stale(later, timeout), "connected members keep a room alive")

	for _, p := range players {
		r.Disconnect(p.ID, nil)
	}
	assert.True(t, r.Stale(later, timeout))
	assert.False(t, r.Stale(time.Now(), timeout), "grace period not yet elapsed")
}
