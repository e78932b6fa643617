// internal/game/host_test.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parlor-games/parlor/internal/protocol"
)

// mockTimer is a manually-fired timer handed out by mockHost.
type mockTimer struct {
	fn      func()
	d       time.Duration
	stopped bool
	fired   bool
}

func (t *mockTimer) Stop() { t.stopped = true }

// mockHost collects events and holds scheduled callbacks for the test to fire
// deterministically instead of waiting on real clocks.
type mockHost struct {
	mu           sync.Mutex
	allEvents    []protocol.Event
	playerEvents map[uuid.UUID][]protocol.Event
	afters       []*mockTimer
	tickers      []*mockTimer
	result       *Result
}

func newMockHost() *mockHost {
	return &mockHost{
		playerEvents: make(map[uuid.UUID][]protocol.Event),
	}
}

func (h *mockHost) Broadcast(ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allEvents = append(h.allEvents, ev)
}

func (h *mockHost) SendTo(playerID uuid.UUID, ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playerEvents[playerID] = append(h.playerEvents[playerID], ev)
}

func (h *mockHost) After(d time.Duration, fn func()) Timer {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &mockTimer{fn: fn, d: d}
	h.afters = append(h.afters, t)
	return t
}

func (h *mockHost) Every(d time.Duration, fn func()) Timer {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &mockTimer{fn: fn, d: d}
	h.tickers = append(h.tickers, t)
	return t
}

func (h *mockHost) Finish(res Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := res
	h.result = &r
}

// firePending runs every un-stopped, un-fired deferred callback.
func (h *mockHost) firePending() {
	h.mu.Lock()
	pending := make([]*mockTimer, 0, len(h.afters))
	for _, t := range h.afters {
		if !t.stopped && !t.fired {
			t.fired = true
			pending = append(pending, t)
		}
	}
	h.mu.Unlock()
	for _, t := range pending {
		t.fn()
	}
}

func (h *mockHost) pendingAfters() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, t := range h.afters {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (h *mockHost) lastEvent() *protocol.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.allEvents) == 0 {
		return nil
	}
	return &h.allEvents[len(h.allEvents)-1]
}

func (h *mockHost) eventsOfType(typ protocol.EventType) []protocol.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []protocol.Event
	for _, ev := range h.allEvents {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
