// internal/feed/feed.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Feed pushes lifecycle records onto a Redis list for external consumers
// (lobby dashboards, analytics). It is optional: a nil *Feed is a valid,
// disabled feed, and every publish on it is a no-op.
type Feed struct {
	rdb    *redis.Client
	queue  string
	logger *logrus.Logger
}

// Record is one lifecycle entry on the queue.
type Record struct {
	Event     string    `json:"event"`
	RoomCode  string    `json:"room_code"`
	GameKind  string    `json:"game_kind,omitempty"`
	PlayerID  uuid.UUID `json:"player_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Connect opens a Redis client and verifies connectivity. addr empty returns
// a disabled (nil) feed without error.
func Connect(addr string, db int, queue string, logger *logrus.Logger) (*Feed, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("feed: connect to Redis at %s: %w", addr, err)
	}
	return &Feed{rdb: rdb, queue: queue, logger: logger}, nil
}

// Publish serializes the record and pushes it onto the queue. Failures are
// logged and swallowed; the feed is advisory and must never affect play.
func (f *Feed) Publish(event, roomCode, gameKind string, playerID uuid.UUID) {
	if f == nil {
		return
	}
	rec := Record{
		Event:     event,
		RoomCode:  roomCode,
		GameKind:  gameKind,
		PlayerID:  playerID,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		f.logger.Errorf("feed: marshal record: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.rdb.RPush(ctx, f.queue, data).Err(); err != nil {
		f.logger.Warnf("feed: push to %s: %v", f.queue, err)
	}
}

// Close releases the Redis client.
func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	return f.rdb.Close()
}
