package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
)

const (
	revokedPrefix   = "auth:revoked:"
	sessionsChannel = "auth:sessions"
)

var errSessionsUnavailable = errors.New("session store: redis not configured")

// SessionRepo keeps revoked token ids and fans session events out over
// Redis pub/sub. With a nil client revocation is a no-op and nothing is
// ever reported revoked.
type SessionRepo struct {
	rdb *redis.Client
}

func NewSessionRepo(rdb *redis.Client) *SessionRepo {
	return &SessionRepo{rdb: rdb}
}

func (r *SessionRepo) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err()
}

func (r *SessionRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if r.rdb == nil {
		return false, nil
	}
	n, err := r.rdb.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SessionRepo) Publish(ctx context.Context, event model.SessionEvent) error {
	if r.rdb == nil {
		return nil
	}
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, sessionsChannel, b).Err()
}

// Subscribe returns events for userID. The channel is closed when ctx ends.
func (r *SessionRepo) Subscribe(ctx context.Context, userID string) (<-chan model.SessionEvent, error) {
	if r.rdb == nil {
		return nil, errSessionsUnavailable
	}

	sub := r.rdb.Subscribe(ctx, sessionsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan model.SessionEvent, 8)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event model.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Warn().Err(err).Msg("sessions: malformed event")
					continue
				}
				if event.UserID != userID {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
