// Package room holds the room lifecycle and participant-count logic: rooms
// live in an expiring keyed store as independently-TTL'd fields, every
// mutating operation renews the whole room's lease, and the live
// participant counter only moves through atomic saturating store ops.
package room

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"log/slog"
	"score-rooms/internal/store"
)

const (
	RoleAdmin     = "admin"
	RoleSpectator = "spectator"
)

// Event names pushed to subscribed connections.
const (
	EventInitScores  = "init_scores"
	EventUpdateScore = "update_score"
	EventResetScores = "reset_scores"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// ValidID reports whether id is alphanumeric plus -/_ and at most 50 chars.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// roomFields in store-key order; score1 doubles as the existence marker.
var roomFields = []string{"score1", "score2", "admin_pass", "spectator_pass", "participants"}

func key(roomID, field string) string { return "room:" + roomID + ":" + field }

func hashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// Snapshot is the state pushed to a room on join/disconnect.
type Snapshot struct {
	Score1       int `json:"score1"`
	Score2       int `json:"score2"`
	Participants int `json:"participants"`
}

// Info is one row of the room listing.
type Info struct {
	ID           string `json:"id"`
	Participants int    `json:"participants"`
	HasPassword  bool   `json:"hasPassword"`
}

// ScoreUpdate is the payload of an update_score event.
type ScoreUpdate struct {
	Team  int `json:"team"`
	Score int `json:"score"`
}

// Broadcaster fans an event out to every connection subscribed to a room.
// Delivery is fire-and-forget.
type Broadcaster interface {
	Broadcast(roomID, event string, payload any)
}

type Service struct {
	store    store.Store
	bcast    Broadcaster
	log      *slog.Logger
	ttl      time.Duration
	presence *presence
}

func NewService(st store.Store, b Broadcaster, log *slog.Logger, ttl time.Duration) *Service {
	return &Service{store: st, bcast: b, log: log, ttl: ttl, presence: newPresence()}
}

// Create initializes a room's fields. The score1 key is claimed with an
// atomic set-if-absent, so two concurrent creates cannot both win.
func (s *Service) Create(ctx context.Context, roomID, adminPass, spectatorPass string) error {
	if !ValidID(roomID) {
		return ErrInvalidRoomID
	}
	claimed, err := s.store.SetNXEx(ctx, key(roomID, "score1"), "0", s.ttl)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrAlreadyExists
	}
	if err := s.store.SetEx(ctx, key(roomID, "score2"), "0", s.ttl); err != nil {
		return err
	}
	if err := s.store.SetEx(ctx, key(roomID, "participants"), "0", s.ttl); err != nil {
		return err
	}
	if adminPass != "" {
		if err := s.store.SetEx(ctx, key(roomID, "admin_pass"), hashPassword(adminPass), s.ttl); err != nil {
			return err
		}
	}
	if spectatorPass != "" {
		if err := s.store.SetEx(ctx, key(roomID, "spectator_pass"), hashPassword(spectatorPass), s.ttl); err != nil {
			return err
		}
	}
	s.log.Info("room.created", "room", roomID)
	return nil
}

// Join authorizes a role against the room's stored password hash. A role
// with no stored hash is open. Joining does not touch the participant
// count; only a live connection does (ConnectJoin). On success the room's
// lease is renewed.
func (s *Service) Join(ctx context.Context, roomID, role, password string) (string, error) {
	if !ValidID(roomID) {
		return "", ErrInvalidRoomID
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleAdmin && role != RoleSpectator {
		return "", ErrInvalidRole
	}
	exists, err := s.store.Exists(ctx, key(roomID, "score1"))
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}
	hash, ok, err := s.store.Get(ctx, key(roomID, role+"_pass"))
	if err != nil {
		return "", err
	}
	if ok && hashPassword(password) != hash {
		return "", ErrForbidden
	}
	s.refreshTTL(ctx, roomID)
	return role, nil
}

// UpdateScore sets one team's score and pushes the change to the room.
func (s *Service) UpdateScore(ctx context.Context, roomID string, team, score int) error {
	if !ValidID(roomID) {
		return ErrInvalidRoomID
	}
	if team != 1 && team != 2 {
		return ErrInvalidTeam
	}
	if score < 0 {
		return ErrInvalidScore
	}
	exists, err := s.store.Exists(ctx, key(roomID, "score1"))
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	field := fmt.Sprintf("score%d", team)
	if err := s.store.SetEx(ctx, key(roomID, field), strconv.Itoa(score), s.ttl); err != nil {
		return err
	}
	s.bcast.Broadcast(roomID, EventUpdateScore, ScoreUpdate{Team: team, Score: score})
	s.refreshTTL(ctx, roomID)
	return nil
}

// Reset zeroes both scores and pushes the reset to the room.
func (s *Service) Reset(ctx context.Context, roomID string) error {
	if !ValidID(roomID) {
		return ErrInvalidRoomID
	}
	exists, err := s.store.Exists(ctx, key(roomID, "score1"))
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if err := s.store.SetEx(ctx, key(roomID, "score1"), "0", s.ttl); err != nil {
		return err
	}
	if err := s.store.SetEx(ctx, key(roomID, "score2"), "0", s.ttl); err != nil {
		return err
	}
	s.bcast.Broadcast(roomID, EventResetScores, map[string]int{"score1": 0, "score2": 0})
	s.refreshTTL(ctx, roomID)
	return nil
}

// List enumerates rooms whose score1 key currently exists, reading all
// fields in one batched fetch. A failed scan or read surfaces the error
// rather than a truncated list.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	keys, err := s.store.Scan(ctx, "room:*:score1")
	if err != nil {
		return nil, err
	}
	var roomIDs []string
	var fields []string
	for _, k := range keys {
		parts := strings.Split(k, ":")
		if len(parts) != 3 {
			continue
		}
		roomID := parts[1]
		roomIDs = append(roomIDs, roomID)
		fields = append(fields,
			key(roomID, "score1"),
			key(roomID, "participants"),
			key(roomID, "admin_pass"),
			key(roomID, "spectator_pass"),
		)
	}
	vals, err := s.store.GetMulti(ctx, fields)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		if _, ok := vals[key(roomID, "score1")]; !ok {
			// expired between scan and read
			continue
		}
		_, hasAdmin := vals[key(roomID, "admin_pass")]
		_, hasSpectator := vals[key(roomID, "spectator_pass")]
		infos = append(infos, Info{
			ID:           roomID,
			Participants: parseCount(vals[key(roomID, "participants")]),
			HasPassword:  hasAdmin || hasSpectator,
		})
	}
	return infos, nil
}

// Snapshot reads the room's scores and participant count. Absent fields
// read as zero: a field can expire independently inside the atomic update
// window, which is a benign transient.
func (s *Service) Snapshot(ctx context.Context, roomID string) (Snapshot, error) {
	score1, err := s.count(ctx, roomID, "score1")
	if err != nil {
		return Snapshot{}, err
	}
	score2, err := s.count(ctx, roomID, "score2")
	if err != nil {
		return Snapshot{}, err
	}
	participants, err := s.count(ctx, roomID, "participants")
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Score1: score1, Score2: score2, Participants: participants}, nil
}

// ConnectJoin counts a live connection into roomID. A connection already
// counted elsewhere is a switch: the previous room is atomically
// decremented before the new one is incremented (two atomic ops, not one;
// the store has no cross-key transaction). The presence lock is released
// before any store I/O.
func (s *Service) ConnectJoin(ctx context.Context, connID, roomID string) error {
	if !ValidID(roomID) {
		return ErrInvalidRoomID
	}
	prev, switched := s.presence.track(connID, roomID)
	if switched {
		if _, err := s.store.DecrSaturateRefresh(ctx, key(prev, "participants"), s.ttl); err != nil {
			s.log.Warn("participants.decr.degraded", "room", prev, "err", err)
			s.bumpNonAtomic(ctx, prev, -1)
		}
	}
	if _, err := s.store.IncrRefresh(ctx, key(roomID, "participants"), s.ttl); err != nil {
		s.log.Warn("participants.incr.degraded", "room", roomID, "err", err)
		s.bumpNonAtomic(ctx, roomID, 1)
	}
	snap, err := s.Snapshot(ctx, roomID)
	if err != nil {
		return err
	}
	s.bcast.Broadcast(roomID, EventInitScores, snap)
	s.refreshTTL(ctx, roomID)
	return nil
}

// Disconnect removes a connection's counted presence and pushes the new
// snapshot to the room it left. Unknown connections are a no-op.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	roomID, ok := s.presence.remove(connID)
	if !ok {
		return
	}
	if _, err := s.store.DecrSaturateRefresh(ctx, key(roomID, "participants"), s.ttl); err != nil {
		s.log.Warn("participants.decr.degraded", "room", roomID, "err", err)
		s.bumpNonAtomic(ctx, roomID, -1)
	}
	snap, err := s.Snapshot(ctx, roomID)
	if err != nil {
		s.log.Warn("room.snapshot", "room", roomID, "err", err)
		return
	}
	s.bcast.Broadcast(roomID, EventInitScores, snap)
}

// bumpNonAtomic is the degraded-mode counter move used when the atomic
// primitive fails: plain read, clamp, write. Accepts the under/overcount
// risk so a transient store scripting failure does not drop the event.
func (s *Service) bumpNonAtomic(ctx context.Context, roomID string, delta int) {
	n, err := s.count(ctx, roomID, "participants")
	if err != nil {
		return
	}
	n += delta
	if n < 0 {
		n = 0
	}
	if err := s.store.SetEx(ctx, key(roomID, "participants"), strconv.Itoa(n), s.ttl); err != nil {
		s.log.Warn("participants.write.degraded", "room", roomID, "err", err)
	}
}

// refreshTTL renews the lease of every field the room has, so they expire
// together instead of drifting apart.
func (s *Service) refreshTTL(ctx context.Context, roomID string) {
	for _, field := range roomFields {
		exists, err := s.store.Exists(ctx, key(roomID, field))
		if err != nil {
			s.log.Warn("room.ttl.refresh", "room", roomID, "err", err)
			return
		}
		if exists {
			_ = s.store.Expire(ctx, key(roomID, field), s.ttl)
		}
	}
}

// count reads a numeric field, treating absence or garbage as 0.
func (s *Service) count(ctx context.Context, roomID, field string) (int, error) {
	v, ok, err := s.store.Get(ctx, key(roomID, field))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return parseCount(v), nil
}

// parseCount parses a stored counter value; absence or garbage reads as 0.
func parseCount(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
