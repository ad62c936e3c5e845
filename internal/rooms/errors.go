package rooms

import "errors"

// Business rule violations. These abort a transaction immediately and are
// never retried, since retrying cannot change the outcome.
var (
	// ErrNotFound: the referenced room does not exist.
	ErrNotFound = errors.New("room not found")

	// ErrNotMember: the caller has no member entry in the room.
	ErrNotMember = errors.New("not a member of this room")

	// ErrNotOwner: only the room owner may trigger the draw.
	ErrNotOwner = errors.New("only the room owner can draw")

	// ErrAlreadyDrawn: the room has already been drawn; the open->drawn
	// transition happens at most once.
	ErrAlreadyDrawn = errors.New("room already drawn")

	// ErrInsufficientParticipants: a draw needs at least two members.
	ErrInsufficientParticipants = errors.New("at least two participants required to draw")

	// ErrInvalidName: a required display field was empty.
	ErrInvalidName = errors.New("name must not be empty")
)
