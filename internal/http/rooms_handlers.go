package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"log/slog"
	"score-rooms/internal/room"
	"score-rooms/internal/store"
)

type RoomsAPI struct {
	Svc *room.Service
	Log *slog.Logger
}

type createRoomReq struct {
	RoomID        string `json:"room_id"`
	AdminPass     string `json:"admin_pass"`
	SpectatorPass string `json:"spectator_pass"`
}

type joinRoomReq struct {
	RoomID   string `json:"room_id"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// List returns all live rooms. A failed scan is a hard failure with an
// empty list, never a partial one.
func (a *RoomsAPI) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.Svc.List(r.Context())
	if err != nil {
		a.Log.Error("rooms.list", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to load rooms",
			"rooms": []room.Info{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// Create handles new room creation.
func (a *RoomsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := a.Svc.Create(r.Context(), req.RoomID, req.AdminPass, req.SpectatorPass); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("room %s created", req.RoomID),
		"room_id": req.RoomID,
		"role":    room.RoleAdmin,
	})
}

// Join authorizes a role for a room. It never touches the participant
// count; only a live ws connection does.
func (a *RoomsAPI) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRoomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	role, err := a.Svc.Join(r.Context(), req.RoomID, req.Role, req.Password)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("joined %s as %s", req.RoomID, role),
		"role":    role,
	})
}

// UpdateScore sets one team's score from the path: /api/score/{room}/{team}/{score}
func (a *RoomsAPI) UpdateScore(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	team, err := strconv.Atoi(r.PathValue("team"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid team number")
		return
	}
	score, err := strconv.Atoi(r.PathValue("score"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid score")
		return
	}
	if err := a.Svc.UpdateScore(r.Context(), roomID, team, score); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("score %d updated in room %s", team, roomID),
	})
}

// Reset zeroes both scores: /api/reset/{room}
func (a *RoomsAPI) Reset(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	if err := a.Svc.Reset(r.Context(), roomID); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("scores reset in room %s", roomID),
	})
}

// fail writes a taxonomy error to the client. Anything outside the
// taxonomy (store failures included) becomes a generic 500; the real
// error stays in the log.
func (a *RoomsAPI) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.Log.Error("rooms.api", "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// statusFor maps the room error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, room.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, room.ErrInvalidRoomID),
		errors.Is(err, room.ErrInvalidRole),
		errors.Is(err, room.ErrInvalidTeam),
		errors.Is(err, room.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
