package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"log/slog"
	"score-rooms/internal/app"
)

type BusMessage struct {
	RoomID  string `json:"roomId"`
	Origin  string `json:"origin"` // publishing instance, so we can skip our own messages
	Payload []byte `json:"payload"`
}

// Bus fans room events out across server instances over redis pub/sub.
type Bus struct {
	rdb    *redis.Client
	log    *slog.Logger
	origin string
}

// NewBus connects to redis and verifies connectivity
func NewBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Bus{rdb: rdb, log: log, origin: uuid.NewString()}, nil
}

// Publish sends a payload to the redis channel for a room
func (b *Bus) Publish(ctx context.Context, roomID string, payload []byte) error {
	raw, _ := json.Marshal(BusMessage{RoomID: roomID, Origin: b.origin, Payload: payload})
	return b.rdb.Publish(ctx, channel(roomID), raw).Err()
}

// Subscribe listens to all room channels and invokes fn for each message
// published by another instance. Our own messages were already delivered
// locally and are skipped.
func (b *Bus) Subscribe(ctx context.Context, fn func(roomID string, payload []byte)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg := <-ch:
			var bm BusMessage
			_ = json.Unmarshal([]byte(msg.Payload), &bm)
			if bm.RoomID != "" && bm.Origin != b.origin {
				fn(bm.RoomID, bm.Payload)
			}
		}
	}
}

// Close shuts down the redis connection
func (b *Bus) Close() { _ = b.rdb.Close() }

// channel namespacing for room pub/sub (distinct from the room:* keyspace)
func channel(roomID string) string { return "roomevents:" + roomID }
