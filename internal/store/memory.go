package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/winterden/secret-santa/internal/models"
)

// Memory is an in-process store for tests and ephemeral runs. Updates use a
// version-counter compare-and-swap so the retry behavior matches the Redis
// implementation: the update function always runs against a fresh snapshot
// and a concurrent commit forces a re-read.
type Memory struct {
	mu       sync.RWMutex
	rooms    map[string]*versionedRoom
	profiles map[string]models.Profile
	changes  chan *models.Room

	// beforeCommit, when set, runs after apply and before the version
	// check. Tests use it to inject conflicting writers.
	beforeCommit func(roomID string)
}

type versionedRoom struct {
	room    *models.Room
	version uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[string]*versionedRoom),
		profiles: make(map[string]models.Profile),
		changes:  make(chan *models.Room, changeBuffer),
	}
}

func (s *Memory) GetRoom(_ context.Context, id string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.room.Clone(), nil
}

func (s *Memory) PutRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	s.rooms[room.ID] = &versionedRoom{room: room.Clone(), version: 1}
	// Published under the lock so the feed preserves commit order;
	// publish never blocks, it drops the oldest event instead.
	s.publish(room.Clone())
	s.mu.Unlock()
	return nil
}

func (s *Memory) UpdateRoom(ctx context.Context, id string, apply UpdateFunc) (*models.Room, error) {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.RLock()
		entry, ok := s.rooms[id]
		if !ok {
			s.mu.RUnlock()
			return nil, ErrNotFound
		}
		snapshot := entry.room.Clone()
		readVersion := entry.version
		s.mu.RUnlock()

		err := apply(snapshot)
		if errors.Is(err, ErrNoChange) {
			return snapshot, nil
		}
		if err != nil {
			return nil, err
		}

		if s.beforeCommit != nil {
			s.beforeCommit(id)
		}

		s.mu.Lock()
		entry, ok = s.rooms[id]
		if !ok {
			s.mu.Unlock()
			return nil, ErrNotFound
		}
		if entry.version != readVersion {
			// Lost the race; re-read and re-apply.
			s.mu.Unlock()
			continue
		}
		entry.room = snapshot.Clone()
		entry.version++
		s.publish(snapshot.Clone())
		s.mu.Unlock()

		return snapshot, nil
	}

	return nil, fmt.Errorf("%w: room %s", ErrContention, id)
}

func (s *Memory) RoomsFor(_ context.Context, userID string) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []*models.Room
	for _, entry := range s.rooms {
		if entry.room.IsMember(userID) {
			rooms = append(rooms, entry.room.Clone())
		}
	}
	return rooms, nil
}

func (s *Memory) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *Memory) PutProfile(_ context.Context, userID string, p *models.Profile) error {
	s.mu.Lock()
	s.profiles[userID] = *p
	s.mu.Unlock()
	return nil
}

func (s *Memory) Changes() <-chan *models.Room {
	return s.changes
}

func (s *Memory) Close() error {
	return nil
}

func (s *Memory) publish(room *models.Room) {
	select {
	case s.changes <- room:
	default:
		select {
		case <-s.changes:
		default:
		}
		select {
		case s.changes <- room:
		default:
		}
	}
}
