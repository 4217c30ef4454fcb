package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/action-gate/models"
	"github.com/upb/action-gate/repositories"
	"go.uber.org/zap"
)

// incrementScript bumps the counter hash and indexes it under the user.
// KEYS[1] counter hash, KEYS[2] user index set.
// ARGV: user_id, action_name, context_key, last_attempt_at (RFC3339Nano).
var incrementScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], "retry_count", 1)
if n == 1 then
  redis.call("HSET", KEYS[1], "user_id", ARGV[1], "action_name", ARGV[2], "context_key", ARGV[3])
  redis.call("SADD", KEYS[2], KEYS[1])
end
redis.call("HSET", KEYS[1], "last_attempt_at", ARGV[4])
return n
`)

// RetryStore keeps retry counters in Redis.
// Each increment is a single Lua script, so it is atomic per key across processes.
type RetryStore struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewRetryStore creates a Redis-backed retry store. Keys are namespaced under prefix.
func NewRetryStore(client redis.UniversalClient, prefix string, logger *zap.Logger) *RetryStore {
	if prefix == "" {
		prefix = "gate:retries"
	}
	return &RetryStore{
		client: client,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

var _ repositories.RetryRepository = (*RetryStore)(nil)

func (s *RetryStore) counterKey(key models.RetryKey) string {
	return s.prefix + ":" + key.String()
}

func (s *RetryStore) userIndexKey(userID int64) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID)
}

// IncrementAndGet atomically increments the counter for the key and returns the new value
func (s *RetryStore) IncrementAndGet(ctx context.Context, userID int64, actionName, contextKey string) (int, error) {
	key := models.RetryKey{UserID: userID, ActionName: actionName, ContextKey: contextKey}

	n, err := incrementScript.Run(ctx, s.client,
		[]string{s.counterKey(key), s.userIndexKey(userID)},
		userID, actionName, contextKey, s.now().UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry counter: %w", err)
	}

	s.logger.Debug("retry counter incremented",
		zap.String("key", key.String()),
		zap.Int("retry_count", n))
	return n, nil
}

// Get retrieves a counter record
func (s *RetryStore) Get(ctx context.Context, key models.RetryKey) (*models.RetryRecord, error) {
	return s.load(ctx, s.counterKey(key))
}

// ListByUser retrieves all counters for a user
func (s *RetryStore) ListByUser(ctx context.Context, userID int64) ([]*models.RetryRecord, error) {
	keys, err := s.client.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list retry counters: %w", err)
	}

	records := make([]*models.RetryRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := s.load(ctx, k)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RetryStore) load(ctx context.Context, redisKey string) (*models.RetryRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get retry counter: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("retry counter %s: %w", redisKey, repositories.ErrNotFound)
	}

	rec := &models.RetryRecord{
		ActionName: fields["action_name"],
		ContextKey: fields["context_key"],
	}
	if rec.UserID, err = strconv.ParseInt(fields["user_id"], 10, 64); err != nil {
		return nil, fmt.Errorf("corrupt retry counter %s: %w", redisKey, err)
	}
	if rec.RetryCount, err = strconv.Atoi(fields["retry_count"]); err != nil {
		return nil, fmt.Errorf("corrupt retry counter %s: %w", redisKey, err)
	}
	if ts, ok := fields["last_attempt_at"]; ok {
		if rec.LastAttemptAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("corrupt retry counter %s: %w", redisKey, err)
		}
	}
	return rec, nil
}
