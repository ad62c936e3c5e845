package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winterden/secret-santa/internal/models"
)

func testRoom(id, ownerID string) *models.Room {
	return &models.Room{
		ID:      id,
		Name:    "office party",
		OwnerID: ownerID,
		Status:  models.StatusOpen,
		Members: map[string]models.Member{
			ownerID: {Name: "Owner"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemory_PutGetRoom(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.GetRoom(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "alice")))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, models.StatusOpen, got.Status)

	// Snapshot is a copy: mutating it must not leak into the store.
	got.Members["bob"] = models.Member{Name: "Bob"}
	again, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, again.Members, 1)
}

func TestMemory_UpdateRoom_NotFound(t *testing.T) {
	s := NewMemory()

	_, err := s.UpdateRoom(context.Background(), "missing", func(r *models.Room) error {
		t.Fatal("apply must not run for a missing room")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UpdateRoom_AbortNotRetried(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "alice")))

	boom := errors.New("business rule violated")
	calls := 0
	_, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "business aborts must not be retried")
}

func TestMemory_UpdateRoom_NoChangeSkipsFeed(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "alice")))
	drainChanges(s)

	got, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	select {
	case room := <-s.Changes():
		t.Fatalf("unexpected change event for room %s", room.ID)
	default:
	}
}

func TestMemory_UpdateRoom_RetriesOnConflict(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "alice")))

	// Inject one conflicting commit between apply and the version check;
	// the update must re-read and still land the change.
	conflicted := false
	s.beforeCommit = func(roomID string) {
		if conflicted {
			return
		}
		conflicted = true
		s.beforeCommit = nil
		_, err := s.UpdateRoom(ctx, roomID, func(r *models.Room) error {
			r.Members["sneaky"] = models.Member{Name: "Sneaky"}
			return nil
		})
		require.NoError(t, err)
	}

	got, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
		r.Members["bob"] = models.Member{Name: "Bob"}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, conflicted)

	// Both writes survived: no lost update.
	assert.Contains(t, got.Members, "bob")
	assert.Contains(t, got.Members, "sneaky")
}

func TestMemory_UpdateRoom_ContentionAfterBudget(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "alice")))

	// Land a conflicting commit on every attempt so the budget runs out.
	conflicts := 0
	inHook := false
	s.beforeCommit = func(roomID string) {
		if inHook {
			return
		}
		inHook = true
		conflicts++
		_, err := s.UpdateRoom(ctx, roomID, func(r *models.Room) error {
			r.Name = fmt.Sprintf("conflict-%d", conflicts)
			return nil
		})
		require.NoError(t, err)
		inHook = false
	}

	applies := 0
	_, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
		applies++
		r.Members["bob"] = models.Member{Name: "Bob"}
		return nil
	})
	assert.ErrorIs(t, err, ErrContention)
	assert.Equal(t, maxTxRetries, applies,
		"apply must run once per attempt before giving up")

	// The contended write never landed.
	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.NotContains(t, got.Members, "bob")
}

func TestMemory_UpdateRoom_NoLostUpdates(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "owner")))

	const joiners = 16
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%02d", i)
			// The retry budget can run out under this much
			// contention; callers retry at a higher level.
			for {
				_, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
					r.Members[userID] = models.Member{Name: userID}
					return nil
				})
				if !errors.Is(err, ErrContention) {
					require.NoError(t, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got.Members, joiners+1)
}

func TestMemory_RoomsFor(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	r1 := testRoom("r1", "alice")
	r1.Members["p"] = models.Member{Name: "P"}
	r2 := testRoom("r2", "bob")
	require.NoError(t, s.PutRoom(ctx, r1))
	require.NoError(t, s.PutRoom(ctx, r2))

	rooms, err := s.RoomsFor(ctx, "p")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "r1", rooms[0].ID)

	none, err := s.RoomsFor(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_Profiles(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutProfile(ctx, "alice", &models.Profile{Name: "Alice"}))

	p, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
}

func TestMemory_ChangesCarryCommits(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "alice")))

	created := <-s.Changes()
	assert.Equal(t, "r1", created.ID)
	assert.Len(t, created.Members, 1)

	_, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
		r.Members["bob"] = models.Member{Name: "Bob"}
		return nil
	})
	require.NoError(t, err)

	updated := <-s.Changes()
	assert.Equal(t, "r1", updated.ID)
	assert.Len(t, updated.Members, 2)
}

func TestMemory_ChangesPreserveCommitOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.PutRoom(ctx, testRoom("r1", "owner")))

	const joiners = 8
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%02d", i)
			for {
				_, err := s.UpdateRoom(ctx, "r1", func(r *models.Room) error {
					r.Members[userID] = models.Member{Name: userID}
					return nil
				})
				if !errors.Is(err, ErrContention) {
					require.NoError(t, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	// Membership only grows, so commit order means monotonically
	// increasing member counts. Coalescing may drop events but never
	// reorders them.
	prev := 0
	for {
		select {
		case room := <-s.Changes():
			assert.GreaterOrEqual(t, len(room.Members), prev,
				"change feed delivered an older commit after a newer one")
			prev = len(room.Members)
		default:
			return
		}
	}
}

func drainChanges(s *Memory) {
	for {
		select {
		case <-s.Changes():
		default:
			return
		}
	}
}
