package room

import "errors"

// Sentinel errors for the operations in this package. The HTTP layer maps
// them to status codes with errors.Is.
var (
	ErrNotFound      = errors.New("room not found")
	ErrAlreadyExists = errors.New("room already exists")
	ErrInvalidRoomID = errors.New("invalid room id")
	ErrInvalidRole   = errors.New("invalid role")
	ErrInvalidTeam   = errors.New("invalid team")
	ErrInvalidScore  = errors.New("invalid score")
	ErrForbidden     = errors.New("wrong password")
)
