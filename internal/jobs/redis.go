package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseIfOwner deletes KEYS[1] only while it still holds ARGV[1].
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps jobs in Redis so status survives restarts and is
// visible to every process sharing the instance.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Job records and target locks
// expire after ttl; idempotency claims do not expire.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedisStore connects to url (redis://...) and checks the connection.
func OpenRedisStore(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(client, prefix, ttl), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) jobKey(id string) string     { return s.prefix + "job:" + id }
func (s *RedisStore) lockKey(target string) string { return s.prefix + "lock:" + target }
func (s *RedisStore) idemKey(key string) string    { return s.prefix + "idem:" + key }

func (s *RedisStore) Save(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, s.jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return job, nil
}

func (s *RedisStore) AcquireTarget(ctx context.Context, lockKey, jobID string) (string, bool, error) {
	return s.claim(ctx, s.lockKey(lockKey), jobID, s.ttl)
}

func (s *RedisStore) ReleaseTarget(ctx context.Context, lockKey, jobID string) error {
	return s.release(ctx, s.lockKey(lockKey), jobID)
}

func (s *RedisStore) ClaimIdempotencyKey(ctx context.Context, key, jobID string) (string, bool, error) {
	return s.claim(ctx, s.idemKey(key), jobID, 0)
}

func (s *RedisStore) ReleaseIdempotencyKey(ctx context.Context, key, jobID string) error {
	return s.release(ctx, s.idemKey(key), jobID)
}

func (s *RedisStore) claim(ctx context.Context, key, jobID string, ttl time.Duration) (string, bool, error) {
	// the holder can expire between SETNX and GET, so try twice
	for range 2 {
		ok, err := s.client.SetNX(ctx, key, jobID, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to claim %s: %w", key, err)
		}
		if ok {
			return "", true, nil
		}

		holder, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to read claim %s: %w", key, err)
		}
		return holder, false, nil
	}
	return "", false, fmt.Errorf("failed to claim %s: contended", key)
}

func (s *RedisStore) release(ctx context.Context, key, jobID string) error {
	if err := releaseIfOwner.Run(ctx, s.client, []string{key}, jobID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}
