package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vigil/internal/registration/models"
)

const (
	tokenKeyPrefix = "vigil:token:"
	eventKeyPrefix = "vigil:event:"
)

// insertTokenScript writes the whole token hash in one server-side step,
// guarded by key existence. A failed insert therefore never leaves a partial
// row behind, and no reader can observe a token without its event_id.
var insertTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'event_id', ARGV[2], 'created_at', ARGV[3])
return 1
`)

// casStatusScript performs the conditioned status flip server-side so two
// concurrent consumers cannot both observe PENDING. Returns 1 on success,
// 0 on status mismatch, -1 when the key is missing.
var casStatusScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if current == false then
  return -1
end
if current ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
return 1
`)

// RedisTokenStore is a Redis-backed token store for distributed deployments
// where multiple instances need to share token state.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore constructs a Redis-backed token store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Insert is insert-if-absent: only the first writer of a given id creates
// the hash, and the script writes every field atomically.
func (s *RedisTokenStore) Insert(ctx context.Context, token *models.RegistrationToken) error {
	created, err := insertTokenScript.Run(ctx, s.client, []string{tokenKeyPrefix + token.ID},
		string(token.Status),
		token.EventID,
		token.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("token %q: %w", token.ID, ErrConflict)
	}
	return nil
}

func (s *RedisTokenStore) FindByID(ctx context.Context, id string) (*models.RegistrationToken, error) {
	fields, err := s.client.HGetAll(ctx, tokenKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("token not found: %w", ErrNotFound)
	}
	token := &models.RegistrationToken{
		ID:      id,
		EventID: fields["event_id"],
		Status:  models.TokenStatus(fields["status"]),
	}
	if raw := fields["created_at"]; raw != "" {
		if ts, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			token.CreatedAt = ts
		}
	}
	return token, nil
}

func (s *RedisTokenStore) CompareAndSetStatus(ctx context.Context, id string, expected, next models.TokenStatus) error {
	res, err := casStatusScript.Run(ctx, s.client, []string{tokenKeyPrefix + id},
		string(expected), string(next)).Int()
	if err != nil {
		return fmt.Errorf("update token status: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("token status mismatch, expected %s: %w", expected, ErrInvalidState)
	default:
		return fmt.Errorf("token not found: %w", ErrNotFound)
	}
}

// RedisEventStore keeps events as JSON blobs. Events are immutable, so a
// plain SetNX covers the write path.
type RedisEventStore struct {
	client *redis.Client
}

func NewRedisEventStore(client *redis.Client) *RedisEventStore {
	return &RedisEventStore{client: client}
}

func (s *RedisEventStore) Insert(ctx context.Context, event *models.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	created, err := s.client.SetNX(ctx, eventKeyPrefix+event.ID, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if !created {
		return fmt.Errorf("event %q: %w", event.ID, ErrConflict)
	}
	return nil
}

func (s *RedisEventStore) FindByID(ctx context.Context, id string) (*models.Event, error) {
	raw, err := s.client.Get(ctx, eventKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("event not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}
