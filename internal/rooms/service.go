// Package rooms implements the room operations: create, join, wishlist
// updates and the one-time draw. Every mutation of an existing room goes
// through the store's transactional update, so concurrent callers serialize
// per room and the draw commits exactly once.
package rooms

import (
	"context"
	"errors"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/winterden/secret-santa/internal/derange"
	"github.com/winterden/secret-santa/internal/logger"
	"github.com/winterden/secret-santa/internal/models"
	"github.com/winterden/secret-santa/internal/store"
)

const (
	roomIDLength   = 20
	roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Service coordinates room state. It holds no mutable state of its own;
// everything lives in the store.
type Service struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

// NewService wires a Service to a document store.
func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
		newID: func() string {
			return gonanoid.MustGenerate(roomIDAlphabet, roomIDLength)
		},
	}
}

// CreateRoom builds a fresh open room owned by ownerID with the owner as the
// only member and persists it. The id is newly generated, so there is no
// existing document to conflict with.
func (s *Service) CreateRoom(ctx context.Context, ownerID, name, ownerName string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	ownerName = strings.TrimSpace(ownerName)
	if name == "" || ownerName == "" {
		return nil, ErrInvalidName
	}

	room := &models.Room{
		ID:      s.newID(),
		Name:    name,
		OwnerID: ownerID,
		Status:  models.StatusOpen,
		Members: map[string]models.Member{
			ownerID: {Name: ownerName},
		},
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.PutRoom(ctx, room); err != nil {
		return nil, err
	}

	logger.Info("room created",
		zap.String("room", room.ID), zap.String("owner", ownerID))
	return room, nil
}

// JoinRoom adds a member entry for userID. Joining a room you already belong
// to is a no-op and returns the current snapshot unchanged, whatever the
// supplied name; only a first-time join needs a non-empty display name.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID, displayName string) (*models.Room, error) {
	displayName = strings.TrimSpace(displayName)

	room, err := s.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if r.IsMember(userID) {
			return store.ErrNoChange
		}
		if displayName == "" {
			return ErrInvalidName
		}
		r.Members[userID] = models.Member{Name: displayName}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	logger.Info("member joined",
		zap.String("room", roomID), zap.String("user", userID))
	return room, nil
}

// UpdateWishlist replaces the caller's wishlist text. Allowed in any room
// status; nobody else's fields are touched.
func (s *Service) UpdateWishlist(ctx context.Context, roomID, userID, text string) (*models.Room, error) {
	room, err := s.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		m, ok := r.Members[userID]
		if !ok {
			return ErrNotMember
		}
		m.Wishlist = text
		r.Members[userID] = m
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return room, nil
}

// Draw assigns every member a giftee and moves the room to drawn. Under
// concurrent draws the transactional update lets exactly one commit; the
// loser re-reads the drawn room and aborts here with ErrAlreadyDrawn.
func (s *Service) Draw(ctx context.Context, roomID, requesterID string) (*models.Room, error) {
	room, err := s.store.UpdateRoom(ctx, roomID, func(r *models.Room) error {
		if r.Status == models.StatusDrawn {
			return ErrAlreadyDrawn
		}
		if r.OwnerID != requesterID {
			return ErrNotOwner
		}
		if len(r.Members) < 2 {
			return ErrInsufficientParticipants
		}

		assignments, err := derange.Assign(r.MemberIDs())
		if err != nil {
			// Only possible cause is the size check we already did.
			return ErrInsufficientParticipants
		}

		for giver, receiver := range assignments {
			m := r.Members[giver]
			m.SantaTo = receiver
			r.Members[giver] = m
		}
		r.Status = models.StatusDrawn
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	logger.Info("room drawn",
		zap.String("room", roomID), zap.Int("members", len(room.Members)))
	return room, nil
}

// Room returns the current snapshot of one room.
func (s *Service) Room(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return room, nil
}

// RoomsFor returns every room the user is a member of.
func (s *Service) RoomsFor(ctx context.Context, userID string) ([]*models.Room, error) {
	return s.store.RoomsFor(ctx, userID)
}

// SaveProfile stores the user's display name.
func (s *Service) SaveProfile(ctx context.Context, userID, name string) (*models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	p := &models.Profile{Name: name}
	if err := s.store.PutProfile(ctx, userID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Profile returns the stored display name for userID.
func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// mapStoreErr translates the store's missing-document error into the room
// vocabulary; everything else passes through untouched.
func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
