package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "webhooks:event:"
	redisIndexPrefix = "webhooks:index:"
)

// RedisStore keeps each record as a JSON string with a TTL ending at
// ExpiresAt, plus a sorted-set index per status scored by arrival time.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time

	// Retention bounds how long index entries are kept; records expire by TTL.
	Retention time.Duration
}

// NewRedisStore parses a redis:// URL and checks connectivity.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now, Retention: DefaultRetention}
}

// RecordKey is the Redis key for a record.
func RecordKey(pk, sk string) string {
	return redisKeyPrefix + pk + ":" + sk
}

// IndexKey is the sorted set holding records with the given status.
func IndexKey(status string) string {
	return redisIndexPrefix + status
}

func indexMember(pk, sk string) string {
	return pk + "#" + sk
}

func (s *RedisStore) Put(ctx context.Context, rec EventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrWrite, err)
	}

	ttl := time.Unix(rec.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, RecordKey(rec.PK, rec.SK), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if !ok {
		return ErrAlreadyExists
	}

	score := float64(s.now().Unix())
	if arrived, err := time.Parse(time.RFC3339, rec.StatusIndexSort); err == nil {
		score = float64(arrived.Unix())
	}
	if err := s.client.ZAdd(ctx, IndexKey(rec.StatusIndex), redis.Z{
		Score:  score,
		Member: indexMember(rec.PK, rec.SK),
	}).Err(); err != nil {
		// Leave no record without its index entry.
		_ = s.client.Del(context.WithoutCancel(ctx), RecordKey(rec.PK, rec.SK)).Err()
		return fmt.Errorf("%w: index: %v", ErrWrite, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, pk, sk string, attrs ...string) (*EventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, RecordKey(pk, sk)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	var rec EventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRead, err)
	}
	return project(&rec, attrs), nil
}

// Pending lists index members with arrival in [from, to], oldest first.
func (s *RedisStore) Pending(ctx context.Context, from, to time.Time, limit int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	members, err := s.client.ZRangeByScore(ctx, IndexKey(StatusPending), &redis.ZRangeBy{
		Min:   fmt.Sprintf("%d", from.Unix()),
		Max:   fmt.Sprintf("%d", to.Unix()),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return members, nil
}

// DeleteExpired trims index entries that arrived more than Retention before now.
// Record keys expire on their own through their TTL.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cutoff := now.Add(-s.Retention).Unix()
	n, err := s.client.ZRemRangeByScore(ctx, IndexKey(StatusPending), "-inf", fmt.Sprintf("(%d", cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return n, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
