package room_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"
	"os"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"score-rooms/internal/room"
	"score-rooms/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type event struct {
	Room    string
	Event   string
	Payload any
}

// capture records broadcasts so tests can assert on fan-out.
type capture struct {
	mu     sync.Mutex
	events []event
}

func (c *capture) Broadcast(roomID, name string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event{Room: roomID, Event: name, Payload: payload})
}

func (c *capture) forRoom(roomID string) []event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event
	for _, e := range c.events {
		if e.Room == roomID {
			out = append(out, e)
		}
	}
	return out
}

// flakyStore wraps a working store and fails selected operations, the way
// redis does when scripting or a scan breaks mid-flight.
type flakyStore struct {
	store.Store
	failAtomic bool
	failScan   bool
}

func (f *flakyStore) IncrRefresh(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if f.failAtomic {
		return 0, fmt.Errorf("%w: scripting disabled", store.ErrUnavailable)
	}
	return f.Store.IncrRefresh(ctx, key, ttl)
}

func (f *flakyStore) DecrSaturateRefresh(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if f.failAtomic {
		return 0, fmt.Errorf("%w: scripting disabled", store.ErrUnavailable)
	}
	return f.Store.DecrSaturateRefresh(ctx, key, ttl)
}

func (f *flakyStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if f.failScan {
		return nil, fmt.Errorf("%w: scan interrupted", store.ErrUnavailable)
	}
	return f.Store.Scan(ctx, pattern)
}

func newTestService(t *testing.T) (*room.Service, *capture) {
	t.Helper()
	bc := &capture{}
	svc := room.NewService(store.NewMemory(), bc, testLogger(), time.Minute)
	return svc, bc
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "finals-1", "", ""))

	err := svc.Create(ctx, "finals-1", "other", "")
	assert.ErrorIs(t, err, room.ErrAlreadyExists)
}

func TestCreateInvalidID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"", "has space", "semi;colon", "sl/ash", strings.Repeat("a", 51)} {
		err := svc.Create(ctx, id, "", "")
		assert.ErrorIs(t, err, room.ErrInvalidRoomID, "id %q", id)
	}
}

func TestJoinAuthorization(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "finals-1", "secret", ""))

	// open role: any password accepted
	role, err := svc.Join(ctx, "finals-1", "spectator", "")
	require.NoError(t, err)
	assert.Equal(t, room.RoleSpectator, role)

	_, err = svc.Join(ctx, "finals-1", "admin", "wrong")
	assert.ErrorIs(t, err, room.ErrForbidden)

	_, err = svc.Join(ctx, "finals-1", "admin", "")
	assert.ErrorIs(t, err, room.ErrForbidden)

	role, err = svc.Join(ctx, "finals-1", "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, room.RoleAdmin, role)

	_, err = svc.Join(ctx, "finals-1", "referee", "")
	assert.ErrorIs(t, err, room.ErrInvalidRole)

	_, err = svc.Join(ctx, "nope", "admin", "")
	assert.ErrorIs(t, err, room.ErrNotFound)
}

func TestJoinDoesNotCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	_, err := svc.Join(ctx, "r1", "spectator", "")
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Participants)
}

func TestUpdateScore(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	require.NoError(t, svc.UpdateScore(ctx, "r1", 1, 5))

	events := bc.forRoom("r1")
	require.Len(t, events, 1)
	assert.Equal(t, room.EventUpdateScore, events[0].Event)
	assert.Equal(t, room.ScoreUpdate{Team: 1, Score: 5}, events[0].Payload)

	snap, err := svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Score1)
	assert.Equal(t, 0, snap.Score2)
}

func TestUpdateScoreValidation(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	assert.ErrorIs(t, svc.UpdateScore(ctx, "r1", 3, 1), room.ErrInvalidTeam)
	assert.ErrorIs(t, svc.UpdateScore(ctx, "r1", 1, -1), room.ErrInvalidScore)
	assert.ErrorIs(t, svc.UpdateScore(ctx, "absent", 1, 1), room.ErrNotFound)
	assert.Empty(t, bc.forRoom("absent"))
}

func TestReset(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))
	require.NoError(t, svc.UpdateScore(ctx, "r1", 1, 3))
	require.NoError(t, svc.UpdateScore(ctx, "r1", 2, 7))

	require.NoError(t, svc.Reset(ctx, "r1"))

	snap, err := svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, room.Snapshot{}, snap)

	events := bc.forRoom("r1")
	require.Len(t, events, 3)
	assert.Equal(t, room.EventResetScores, events[2].Event)

	assert.ErrorIs(t, svc.Reset(ctx, "absent"), room.ErrNotFound)
}

func TestList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "open-room", "", ""))
	require.NoError(t, svc.Create(ctx, "locked-room", "pw", ""))

	infos, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byID := map[string]room.Info{}
	for _, in := range infos {
		byID[in.ID] = in
	}
	assert.False(t, byID["open-room"].HasPassword)
	assert.True(t, byID["locked-room"].HasPassword)
	assert.Equal(t, 0, byID["open-room"].Participants)
}

func TestConnectJoinAndDisconnect(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "r1"))

	snap, err := svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Participants)

	events := bc.forRoom("r1")
	require.Len(t, events, 1)
	assert.Equal(t, room.EventInitScores, events[0].Event)
	assert.Equal(t, room.Snapshot{Participants: 1}, events[0].Payload)

	svc.Disconnect(ctx, "conn-1")

	snap, err = svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Participants)
}

func TestDisconnectUnknownConn(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	svc.Disconnect(ctx, "never-joined")

	snap, err := svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Participants)
	assert.Empty(t, bc.forRoom("r1"))
}

func TestRoomSwitch(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "room-a", "", ""))
	require.NoError(t, svc.Create(ctx, "room-b", "", ""))

	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "room-a"))
	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "room-b"))

	snapA, err := svc.Snapshot(ctx, "room-a")
	require.NoError(t, err)
	snapB, err := svc.Snapshot(ctx, "room-b")
	require.NoError(t, err)
	assert.Equal(t, 0, snapA.Participants)
	assert.Equal(t, 1, snapB.Participants)

	// exactly one init_scores per join, none sent to A on the switch
	assert.Len(t, bc.forRoom("room-a"), 1)
	assert.Len(t, bc.forRoom("room-b"), 1)
}

// N concurrent joins followed by N concurrent disconnects must land the
// counter on exactly zero for any interleaving.
func TestConcurrentJoinDisconnect(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "busy", "", ""))

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.ConnectJoin(ctx, fmt.Sprintf("conn-%d", i), "busy"))
		}(i)
	}
	wg.Wait()

	snap, err := svc.Snapshot(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, n, snap.Participants)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.Disconnect(ctx, fmt.Sprintf("conn-%d", i))
		}(i)
	}
	wg.Wait()

	snap, err = svc.Snapshot(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Participants)
}

// When the atomic counter primitive fails, the connection event must
// still land via the plain read-clamp-write fallback and still broadcast.
func TestConnectJoinDegradedFallback(t *testing.T) {
	mem := store.NewMemory()
	bc := &capture{}
	svc := room.NewService(&flakyStore{Store: mem, failAtomic: true}, bc, testLogger(), time.Minute)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "r1"))

	snap, err := svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Participants)

	events := bc.forRoom("r1")
	require.Len(t, events, 1)
	assert.Equal(t, room.EventInitScores, events[0].Event)
	assert.Equal(t, room.Snapshot{Participants: 1}, events[0].Payload)

	svc.Disconnect(ctx, "conn-1")

	snap, err = svc.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Participants)
	require.Len(t, bc.forRoom("r1"), 2)
}

// Saturation at zero must hold in the fallback path too.
func TestDegradedFallbackSaturates(t *testing.T) {
	mem := store.NewMemory()
	svc := room.NewService(&flakyStore{Store: mem, failAtomic: true}, &capture{}, testLogger(), time.Minute)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "r1", "", ""))

	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "r1"))
	// zero the counter behind the tracker's back; the degraded decrement
	// must clamp instead of going negative
	require.NoError(t, mem.SetEx(ctx, "room:r1:participants", "0", time.Minute))
	svc.Disconnect(ctx, "conn-1")

	v, ok, err := mem.Get(ctx, "room:r1:participants")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0", v)
}

func TestRoomSwitchDegradedFallback(t *testing.T) {
	mem := store.NewMemory()
	svc := room.NewService(&flakyStore{Store: mem, failAtomic: true}, &capture{}, testLogger(), time.Minute)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "room-a", "", ""))
	require.NoError(t, svc.Create(ctx, "room-b", "", ""))

	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "room-a"))
	require.NoError(t, svc.ConnectJoin(ctx, "conn-1", "room-b"))

	snapA, err := svc.Snapshot(ctx, "room-a")
	require.NoError(t, err)
	snapB, err := svc.Snapshot(ctx, "room-b")
	require.NoError(t, err)
	assert.Equal(t, 0, snapA.Participants)
	assert.Equal(t, 1, snapB.Participants)
}

// An interrupted scan is a hard failure, never a partial listing.
func TestListScanFailure(t *testing.T) {
	fs := &flakyStore{Store: store.NewMemory(), failScan: true}
	svc := room.NewService(fs, &capture{}, testLogger(), time.Minute)

	infos, err := svc.List(context.Background())
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Nil(t, infos)
}

// Full lifecycle from the original system's acceptance flow.
func TestScenarioFinals(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "finals-1", "secret", ""))

	_, err := svc.Join(ctx, "finals-1", "spectator", "")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "finals-1", "admin", "wrong")
	require.ErrorIs(t, err, room.ErrForbidden)
	_, err = svc.Join(ctx, "finals-1", "admin", "secret")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateScore(ctx, "finals-1", 1, 3))
	snap, err := svc.Snapshot(ctx, "finals-1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Score1)
	assert.Equal(t, 0, snap.Score2)

	require.NoError(t, svc.Reset(ctx, "finals-1"))
	snap, err = svc.Snapshot(ctx, "finals-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Score1)
	assert.Equal(t, 0, snap.Score2)
}
