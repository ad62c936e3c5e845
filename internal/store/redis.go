package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/winterden/secret-santa/internal/logger"
	"github.com/winterden/secret-santa/internal/models"
)

const (
	roomKeyPrefix    = "room:"
	profileKeyPrefix = "profile:"
	memberKeyPrefix  = "member:" // member:{userID}:rooms -> set of room ids

	changesChannel = "rooms:changes"

	// maxTxRetries bounds the optimistic retry loop. Each retry re-reads
	// the room and re-applies the update function from scratch.
	maxTxRetries = 5

	changeBuffer = 256
)

// Redis stores documents as JSON blobs and implements the transactional
// update with WATCH/MULTI/EXEC. Committed rooms are published on a pub/sub
// channel that backs Changes.
type Redis struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	changes chan *models.Room
	cancel  context.CancelFunc
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects, verifies the connection and starts the change feed.
func NewRedis(ctx context.Context, opts Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	s := &Redis{
		client:  client,
		pubsub:  client.Subscribe(feedCtx, changesChannel),
		changes: make(chan *models.Room, changeBuffer),
		cancel:  cancel,
	}
	go s.consumeFeed(feedCtx)
	return s, nil
}

func (s *Redis) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	data, err := s.client.Get(ctx, roomKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get room: %v", ErrUnavailable, err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("%w: decode room %s: %v", ErrUnavailable, id, err)
	}
	return &room, nil
}

func (s *Redis) PutRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.commitRoom(ctx, pipe, room, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put room: %v", ErrUnavailable, err)
	}
	return nil
}

// UpdateRoom runs apply under WATCH on the room key. If another client
// commits between our read and EXEC the transaction fails with
// redis.TxFailedErr and the full cycle is retried.
func (s *Redis) UpdateRoom(ctx context.Context, id string, apply UpdateFunc) (*models.Room, error) {
	key := roomKeyPrefix + id

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var committed *models.Room

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("%w: read room: %v", ErrUnavailable, err)
			}

			var room models.Room
			if err := json.Unmarshal(data, &room); err != nil {
				return fmt.Errorf("%w: decode room %s: %v", ErrUnavailable, id, err)
			}

			if err := apply(&room); err != nil {
				if errors.Is(err, ErrNoChange) {
					committed = &room
					return nil
				}
				return err
			}

			out, err := json.Marshal(&room)
			if err != nil {
				return fmt.Errorf("encode room: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.commitRoom(ctx, pipe, &room, out)
				return nil
			})
			if err != nil {
				return err
			}
			committed = &room
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			logger.Debug("room write conflict, retrying",
				zap.String("room", id), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		return committed, nil
	}

	return nil, fmt.Errorf("%w: room %s", ErrContention, id)
}

// commitRoom queues the room write, its membership index entries and the
// change event on one MULTI/EXEC pipeline so they land atomically.
func (s *Redis) commitRoom(ctx context.Context, pipe redis.Pipeliner, room *models.Room, data []byte) {
	pipe.Set(ctx, roomKeyPrefix+room.ID, data, 0)
	for userID := range room.Members {
		pipe.SAdd(ctx, memberRoomsKey(userID), room.ID)
	}
	pipe.Publish(ctx, changesChannel, data)
}

func (s *Redis) RoomsFor(ctx context.Context, userID string) ([]*models.Room, error) {
	ids, err := s.client.SMembers(ctx, memberRoomsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: member index: %v", ErrUnavailable, err)
	}

	rooms := make([]*models.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.GetRoom(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index can reference a room deleted by retention jobs
			// outside this service; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Redis) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	data, err := s.client.Get(ctx, profileKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile: %v", ErrUnavailable, err)
	}

	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode profile %s: %v", ErrUnavailable, userID, err)
	}
	return &p, nil
}

func (s *Redis) PutProfile(ctx context.Context, userID string, p *models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.client.Set(ctx, profileKeyPrefix+userID, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: put profile: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Changes() <-chan *models.Room {
	return s.changes
}

func (s *Redis) Close() error {
	s.cancel()
	_ = s.pubsub.Close()
	return s.client.Close()
}

// consumeFeed turns pub/sub payloads back into room snapshots. A slow
// consumer fills the buffer; dropping the oldest keeps the feed converging
// on the latest state, which the at-least-once contract allows.
func (s *Redis) consumeFeed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.pubsub.Channel():
			if !ok {
				return
			}
			var room models.Room
			if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
				logger.Warn("dropping malformed change event", zap.Error(err))
				continue
			}
			select {
			case s.changes <- &room:
			default:
				select {
				case <-s.changes:
				default:
				}
				select {
				case s.changes <- &room:
				default:
				}
			}
		}
	}
}

func memberRoomsKey(userID string) string {
	return memberKeyPrefix + userID + ":rooms"
}
