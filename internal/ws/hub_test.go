package ws

import (
	"encoding/json"
	"testing"
	"time"

	"log/slog"
	"os"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeout(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(time.Second)
}

func testHub() *Hub {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHub(logger, nil)
}

func TestHubBroadcastEnvelope(t *testing.T) {
	h := testHub()
	c := testConn(4)
	h.room("r1").Join(c)

	h.Broadcast("r1", "update_score", map[string]int{"team": 1, "score": 5})

	var frame []byte
	select {
	case frame = <-c.out:
	case <-timeout(t):
		t.Fatal("no frame delivered")
	}

	var env struct {
		Event string         `json:"event"`
		Data  map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "update_score", env.Event)
	assert.Equal(t, 1, env.Data["team"])
	assert.Equal(t, 5, env.Data["score"])
}

func TestHubBroadcastUnknownRoom(t *testing.T) {
	h := testHub()
	// no subscribers anywhere; must not panic or create the room
	h.Broadcast("ghost", "init_scores", map[string]int{})

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Empty(t, h.rooms)
}

func TestHubRoomReuse(t *testing.T) {
	h := testHub()
	assert.Same(t, h.room("r1"), h.room("r1"))
	assert.NotSame(t, h.room("r1"), h.room("r2"))
}
