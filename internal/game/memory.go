// internal/game/memory.go
package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/models"
	"github.com/parlor-games/parlor/internal/protocol"
)

// Memory-match scoring. A successful match pays the base score plus a combo
// bonus scaling with the player's consecutive-match streak; the sole score
// leader at game end receives the winner bonus.
const (
	memoryBaseScore   = 100
	memoryComboBonus  = 50
	memoryWinnerBonus = 250

	// defaultFlipBackDelay is how long two mismatched cards stay exposed
	// before flipping back, so human players can see both symbols.
	defaultFlipBackDelay = 1200 * time.Millisecond
)

// pairsFor maps difficulty to board size in pairs.
func pairsFor(d models.Difficulty) int {
	switch d {
	case models.DifficultyEasy:
		return 6
	case models.DifficultyHard:
		return 12
	default:
		return 8
	}
}

// memoryCard is one board position. Symbol is never serialized directly; the
// view substitutes -1 for any card that is neither face-up nor matched.
type memoryCard struct {
	id        int
	symbol    int
	faceUp    bool
	matchedBy *uuid.UUID
}

// MemoryCardView is the wire form of a card.
type MemoryCardView struct {
	ID          int        `json:"id"`
	SymbolIndex int        `json:"symbolIndex"`
	FaceUp      bool       `json:"faceUp"`
	MatchedBy   *uuid.UUID `json:"matchedBy"`
}

// MemoryView is the obfuscated snapshot broadcast at game start and sent to
// reconnecting players.
type MemoryView struct {
	Kind          models.GameKind  `json:"gameKind"`
	Cards         []MemoryCardView `json:"cards"`
	CurrentTurn   uuid.UUID        `json:"currentTurnPlayerId"`
	FlippedCards  []int            `json:"flippedCardIds"`
	MatchedPairs  int              `json:"matchedPairs"`
	TotalPairs    int              `json:"totalPairs"`
	FlipBackDelay int              `json:"flipBackDelayMs"`
}

// Memory is the turn-based memory-match machine. One player holds the turn;
// a successful match keeps it, a mismatch passes it after the deferred
// flip-back resolves.
type Memory struct {
	host    Host
	players []*models.Player

	cards        []memoryCard
	currentTurn  uuid.UUID
	flipped      []int
	matchedPairs int
	totalPairs   int

	flipBack      Timer
	FlipBackDelay time.Duration

	finished bool
}

// NewMemory builds a machine for the given room members. The board is dealt
// in Start, not here.
func NewMemory(cfg models.GameConfig, players []*models.Player, host Host) *Memory {
	return &Memory{
		host:          host,
		players:       clonePlayers(players),
		totalPairs:    pairsFor(cfg.Difficulty),
		FlipBackDelay: defaultFlipBackDelay,
	}
}

func (m *Memory) Kind() models.GameKind { return models.KindMemory }

// Start shuffles a fresh board and gives the first turn to the first member
// in join order.
func (m *Memory) Start() {
	symbols := make([]int, 0, m.totalPairs*2)
	for s := 0; s < m.totalPairs; s++ {
		symbols = append(symbols, s, s)
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(symbols), func(i, j int) {
		symbols[i], symbols[j] = symbols[j], symbols[i]
	})

	m.cards = make([]memoryCard, len(symbols))
	for i, s := range symbols {
		m.cards[i] = memoryCard{id: i, symbol: s}
	}
	m.flipped = m.flipped[:0]
	m.currentTurn = m.players[0].ID
}

// HandleAction routes flip_card; everything else is a protocol error.
func (m *Memory) HandleAction(playerID uuid.UUID, msg protocol.ClientMessage) error {
	if msg.Type != protocol.MsgFlipCard {
		return ErrInvalidAction
	}
	return m.flipCard(playerID, msg.CardID)
}

// flipCard applies one flip. The guard ladder rejects out-of-turn, third,
// repeated, and dead flips before any mutation; acceptance then reveals the
// symbol to the room, the only point where hidden information becomes
// visible to clients.
func (m *Memory) flipCard(playerID uuid.UUID, cardID int) error {
	if m.finished {
		return ErrGameFinished
	}
	if playerID != m.currentTurn {
		return ErrNotYourTurn
	}
	if len(m.flipped) >= 2 {
		// A mismatched pair is still exposed; the pending flip-back must
		// resolve before another flip is accepted.
		return ErrInvalidAction
	}
	if cardID < 0 || cardID >= len(m.cards) {
		return ErrInvalidAction
	}
	card := &m.cards[cardID]
	if card.matchedBy != nil || card.faceUp {
		return ErrInvalidAction
	}

	card.faceUp = true
	m.flipped = append(m.flipped, cardID)
	m.host.Broadcast(protocol.Event{Type: protocol.EventCardFlipped, Data: protocol.CardFlipped{
		PlayerID:    playerID,
		CardID:      cardID,
		SymbolIndex: card.symbol,
	}})

	if len(m.flipped) < 2 {
		return nil
	}
	m.resolvePair(playerID)
	return nil
}

// resolvePair compares the two exposed cards. A match settles synchronously
// and the player keeps the turn; a mismatch schedules the deferred flip-back.
func (m *Memory) resolvePair(playerID uuid.UUID) {
	first, second := m.flipped[0], m.flipped[1]
	c1, c2 := &m.cards[first], &m.cards[second]

	if c1.symbol != c2.symbol {
		m.flipBack = m.host.After(m.FlipBackDelay, func() {
			m.resolveMismatch(playerID, first, second)
		})
		return
	}

	owner := playerID
	c1.matchedBy = &owner
	c2.matchedBy = &owner
	m.flipped = m.flipped[:0]
	m.matchedPairs++

	player := m.playerByID(playerID)
	player.Combo++
	points := memoryBaseScore + memoryComboBonus*(player.Combo-1)
	player.Score += points

	m.host.Broadcast(protocol.Event{Type: protocol.EventMatchFound, Data: protocol.MatchFound{
		PlayerID: playerID,
		CardID1:  first,
		CardID2:  second,
		Score:    points,
		Combo:    player.Combo,
	}})

	if m.matchedPairs == m.totalPairs {
		m.finish()
	}
	// On a match the same player retains the turn.
}

// resolveMismatch fires from the flip-back timer: hide both cards, reset the
// streak, and pass the turn. It runs against room state even if the flipper
// has since disconnected; room deletion cancels the timer before it can run.
func (m *Memory) resolveMismatch(playerID uuid.UUID, first, second int) {
	if m.finished {
		return
	}
	m.cards[first].faceUp = false
	m.cards[second].faceUp = false
	m.flipped = m.flipped[:0]
	m.flipBack = nil

	m.playerByID(playerID).Combo = 0
	m.currentTurn = m.nextPlayer(playerID)

	m.host.Broadcast(protocol.Event{Type: protocol.EventMatchFailed, Data: protocol.MatchFailed{
		CardID1:      first,
		CardID2:      second,
		NextPlayerID: m.currentTurn,
	}})
}

// HandleLeave treats an explicit mid-game departure as a forfeit: the
// remaining players win immediately.
func (m *Memory) HandleLeave(playerID uuid.UUID) {
	if m.finished {
		return
	}
	if m.flipBack != nil {
		m.flipBack.Stop()
		m.flipBack = nil
	}
	m.finished = true

	var winner *uuid.UUID
	best := -1
	draw := false
	for _, p := range m.players {
		if p.ID == playerID {
			continue
		}
		switch {
		case p.Score > best:
			best = p.Score
			id := p.ID
			winner = &id
			draw = false
		case p.Score == best:
			draw = true
			winner = nil
		}
	}
	if winner != nil {
		m.playerByID(*winner).Score += memoryWinnerBonus
	}
	m.host.Finish(Result{WinnerID: winner, IsDraw: draw})
}

// HandleDisconnect intentionally changes nothing: the turn does not skip a
// disconnected player, so their opponent gains no extra flips, and a pending
// flip-back still fires.
func (m *Memory) HandleDisconnect(playerID uuid.UUID) {}

// finish ranks players by score. An exact tie for the lead is a draw;
// otherwise the sole leader takes the winner bonus.
func (m *Memory) finish() {
	if m.flipBack != nil {
		m.flipBack.Stop()
		m.flipBack = nil
	}
	m.finished = true

	var winner *uuid.UUID
	best := -1
	draw := false
	for _, p := range m.players {
		switch {
		case p.Score > best:
			best = p.Score
			id := p.ID
			winner = &id
			draw = false
		case p.Score == best:
			draw = true
			winner = nil
		}
	}
	if winner != nil {
		m.playerByID(*winner).Score += memoryWinnerBonus
	}
	m.host.Finish(Result{WinnerID: winner, IsDraw: draw})
}

// View hides every unrevealed symbol as -1, including from the acting player.
func (m *Memory) View(forPlayer uuid.UUID) interface{} {
	cards := make([]MemoryCardView, len(m.cards))
	for i, c := range m.cards {
		symbol := -1
		if c.faceUp || c.matchedBy != nil {
			symbol = c.symbol
		}
		cards[i] = MemoryCardView{
			ID:          c.id,
			SymbolIndex: symbol,
			FaceUp:      c.faceUp,
			MatchedBy:   c.matchedBy,
		}
	}
	flipped := make([]int, len(m.flipped))
	copy(flipped, m.flipped)
	return MemoryView{
		Kind:          models.KindMemory,
		Cards:         cards,
		CurrentTurn:   m.currentTurn,
		FlippedCards:  flipped,
		MatchedPairs:  m.matchedPairs,
		TotalPairs:    m.totalPairs,
		FlipBackDelay: int(m.FlipBackDelay / time.Millisecond),
	}
}

func (m *Memory) playerByID(id uuid.UUID) *models.Player {
	for _, p := range m.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// nextPlayer returns the member after id in join order, wrapping around.
// Disconnected players are not skipped: their turn simply waits for the
// stale timeout or their reconnect.
func (m *Memory) nextPlayer(id uuid.UUID) uuid.UUID {
	for i, p := range m.players {
		if p.ID == id {
			return m.players[(i+1)%len(m.players)].ID
		}
	}
	return m.players[0].ID
}
