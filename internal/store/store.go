// Package store persists room and profile documents and provides the
// optimistic read-modify-write transaction every room mutation goes through.
//
// Two implementations exist: Redis for production and an in-memory store for
// tests. Both give the same contract: per-room updates are serializable, a
// conflicting concurrent write triggers a bounded re-read-and-retry, and a
// business abort returned by the update function ends the attempt
// immediately without retrying.
package store

import (
	"context"
	"errors"

	"github.com/winterden/secret-santa/internal/models"
)

var (
	// ErrNotFound is returned when the referenced document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrContention is returned after the conflict-retry budget is
	// exhausted under sustained concurrent writes to the same room.
	ErrContention = errors.New("too many write conflicts")

	// ErrUnavailable wraps store backend failures that are not business
	// rule violations.
	ErrUnavailable = errors.New("store unavailable")

	// ErrNoChange may be returned by an update function to commit
	// nothing: the transaction succeeds, no write happens and no change
	// event is published. Used for idempotent no-ops such as re-joining
	// a room.
	ErrNoChange = errors.New("no change")
)

// UpdateFunc inspects and mutates a private copy of the current room.
// Returning nil commits the mutated copy; returning ErrNoChange commits
// nothing; any other error aborts the transaction and is surfaced verbatim.
type UpdateFunc func(*models.Room) error

// Store is the document store collaborator. Keys are room and participant
// ids; values are whole documents.
type Store interface {
	// GetRoom returns the current room snapshot or ErrNotFound.
	GetRoom(ctx context.Context, id string) (*models.Room, error)

	// PutRoom writes a room unconditionally. Only used at creation,
	// when no concurrent writer can exist for the fresh id.
	PutRoom(ctx context.Context, room *models.Room) error

	// UpdateRoom runs apply inside an isolated read-modify-write on the
	// room. On a write conflict the whole cycle is retried up to a fixed
	// budget, then ErrContention. A missing room is ErrNotFound.
	UpdateRoom(ctx context.Context, id string, apply UpdateFunc) (*models.Room, error)

	// RoomsFor returns every room that has userID as a member.
	RoomsFor(ctx context.Context, userID string) ([]*models.Room, error)

	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	PutProfile(ctx context.Context, userID string, p *models.Profile) error

	// Changes is the feed of committed room snapshots, in commit order
	// per room. Delivery starts from subscription time; consumers that
	// need history read the current state first.
	Changes() <-chan *models.Room

	Close() error
}
