package room

import "sync"

// presence owns the connection→room map. The lock guards only the map
// itself; counter I/O against the store always runs after release so the
// critical section never waits on the network.
type presence struct {
	mu    sync.Mutex
	rooms map[string]string // connID → roomID it is counted in
}

func newPresence() *presence {
	return &presence{rooms: map[string]string{}}
}

// track records connID as counted in roomID and returns the room it was
// counted in before. switched is true only for a real room change.
func (p *presence) track(connID, roomID string) (prev string, switched bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = p.rooms[connID]
	p.rooms[connID] = roomID
	return prev, prev != "" && prev != roomID
}

// remove drops connID and returns the room it was counted in, if any.
func (p *presence) remove(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	roomID, ok := p.rooms[connID]
	delete(p.rooms, connID)
	return roomID, ok
}
