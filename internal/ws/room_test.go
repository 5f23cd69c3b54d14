package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(buf int) *Conn {
	return &Conn{out: make(chan []byte, buf), id: "test"}
}

func TestRoomJoinLeaveBroadcast(t *testing.T) {
	rm := NewRoom()
	a := testConn(4)
	b := testConn(4)

	rm.Join(a)
	rm.Join(b)
	rm.Broadcast([]byte("one"))

	assert.Equal(t, []byte("one"), <-a.out)
	assert.Equal(t, []byte("one"), <-b.out)

	rm.Leave(b)
	rm.Broadcast([]byte("two"))

	assert.Equal(t, []byte("two"), <-a.out)
	assert.Empty(t, b.out)
}

// A subscriber with a full buffer must not block the rest of the room.
func TestRoomBroadcastNonBlocking(t *testing.T) {
	rm := NewRoom()
	full := testConn(1)
	ok := testConn(4)
	full.out <- []byte("stuck")

	rm.Join(full)
	rm.Join(ok)

	done := make(chan struct{})
	go func() {
		rm.Broadcast([]byte("msg"))
		close(done)
	}()

	select {
	case <-done:
	case <-timeout(t):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	require.Equal(t, []byte("msg"), <-ok.out)
	// the full subscriber kept only its old frame
	assert.Equal(t, []byte("stuck"), <-full.out)
	assert.Empty(t, full.out)
}
