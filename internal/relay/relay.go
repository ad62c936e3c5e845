// Package relay fans committed room snapshots out to subscribers. Each
// subscriber follows one participant and receives the full current set of
// rooms that participant belongs to, re-sent after every committed change to
// any of those rooms.
package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/winterden/secret-santa/internal/logger"
	"github.com/winterden/secret-santa/internal/models"
	"github.com/winterden/secret-santa/internal/store"
)

// subscriptionBuffer bounds undelivered snapshots per subscriber. A slow
// consumer loses intermediate snapshots, never the latest: delivery is
// at-least-once per change with coalescing.
const subscriptionBuffer = 8

// Relay consumes the store change feed and maintains the per-user fan-out.
type Relay struct {
	store store.Store

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{} // userID -> subscriptions
}

// Subscription is one listener's handle. Snapshots arrive on Updates until
// Close is called.
type Subscription struct {
	userID string
	ch     chan []*models.Room
	relay  *Relay

	mu     sync.Mutex
	closed bool
}

// New builds a Relay over the given store. Call Run to start delivery.
func New(st store.Store) *Relay {
	return &Relay{
		store: st,
		subs:  make(map[string]map[*Subscription]struct{}),
	}
}

// Run consumes the change feed until ctx is cancelled. Each committed room
// triggers a fresh membership query per affected subscriber, so a stale
// event can only ever produce a newer snapshot.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case room, ok := <-r.store.Changes():
			if !ok {
				return
			}
			r.dispatch(ctx, room)
		}
	}
}

// Subscribe registers a listener for userID and queues the current snapshot.
// Registration happens before the snapshot query: a commit landing during
// the query then reaches the subscriber through dispatch instead of falling
// into an unwatched gap. The duplicate snapshot that can produce is absorbed
// by deliver's coalescing.
func (r *Relay) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := &Subscription{
		userID: userID,
		ch:     make(chan []*models.Room, subscriptionBuffer),
		relay:  r,
	}

	r.mu.Lock()
	set, ok := r.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[userID] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	snapshot, err := r.store.RoomsFor(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	sub.deliver(snapshot)
	logger.Debug("relay subscriber added", zap.String("user", userID))
	return sub, nil
}

// Updates streams membership snapshots. The channel closes after Close.
func (s *Subscription) Updates() <-chan []*models.Room {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	r := s.relay
	r.mu.Lock()
	if set, ok := r.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.subs, s.userID)
		}
	}
	r.mu.Unlock()
	close(s.ch)
}

func (r *Relay) dispatch(ctx context.Context, room *models.Room) {
	r.mu.RLock()
	var affected []*Subscription
	for userID := range room.Members {
		for sub := range r.subs[userID] {
			affected = append(affected, sub)
		}
	}
	r.mu.RUnlock()

	if len(affected) == 0 {
		return
	}

	// One membership query per affected user, shared across that user's
	// subscriptions.
	snapshots := make(map[string][]*models.Room)
	for _, sub := range affected {
		if _, ok := snapshots[sub.userID]; ok {
			continue
		}
		rooms, err := r.store.RoomsFor(ctx, sub.userID)
		if err != nil {
			logger.Error("relay snapshot query failed",
				zap.String("user", sub.userID), zap.Error(err))
			continue
		}
		snapshots[sub.userID] = rooms
	}

	for _, sub := range affected {
		if rooms, ok := snapshots[sub.userID]; ok {
			sub.deliver(rooms)
		}
	}
}

// deliver queues a snapshot, dropping the oldest queued one when the
// subscriber is behind. Sends race-free against Close via the closed flag.
func (s *Subscription) deliver(rooms []*models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- rooms:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- rooms:
		default:
		}
	}
}
