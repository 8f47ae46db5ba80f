package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewaylab/agentrun/store"
)

func init() {
	store.Register("redis", func(ctx context.Context, rawURL string) (store.StepStore, error) {
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, err
		}
		return NewRedisStepStoreWithClient(redis.NewClient(opts), "", 0), nil
	})
}

// RedisStepStore implements store.StepStore using Redis
type RedisStepStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.StepStore = (*RedisStepStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "agentrun:"
	TTL      time.Duration // Expiration for records, default 0 (no expiration)
}

// NewRedisStepStore creates a new Redis step store
func NewRedisStepStore(opts RedisOptions) *RedisStepStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStepStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisStepStoreWithClient uses an existing client.
func NewRedisStepStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStepStore {
	if prefix == "" {
		prefix = "agentrun:"
	}
	return &RedisStepStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStepStore) recordKey(id string) string {
	return fmt.Sprintf("%sstep:%s", s.prefix, id)
}

// runKey is a sorted set of record IDs scored by seq.
func (s *RedisStepStore) runKey(runID string) string {
	return fmt.Sprintf("%srun:%s:steps", s.prefix, runID)
}

// Save stores a step record
func (s *RedisStepStore) Save(ctx context.Context, record *store.StepRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal step record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.ID), data, s.ttl)

	runKey := s.runKey(record.RunID)
	pipe.ZAdd(ctx, runKey, redis.Z{Score: float64(record.Seq), Member: record.ID})
	if s.ttl > 0 {
		pipe.Expire(ctx, runKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save step record to redis: %w", err)
	}
	return nil
}

// Load retrieves a step record by ID
func (s *RedisStepStore) Load(ctx context.Context, id string) (*store.StepRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.NotFound(id)
		}
		return nil, fmt.Errorf("failed to load step record from redis: %w", err)
	}

	var record store.StepRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step record: %w", err)
	}
	return &record, nil
}

// List returns the records of a run in seq order
func (s *RedisStepStore) List(ctx context.Context, runID string) ([]*store.StepRecord, error) {
	ids, err := s.client.ZRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list step records of run %s: %w", runID, err)
	}

	records := []*store.StepRecord{}
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}

	// MGet returns nil for expired records; those are skipped.
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step records: %w", err)
	}

	for _, result := range results {
		data, ok := result.(string)
		if !ok {
			continue
		}
		var record store.StepRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step record: %w", err)
		}
		records = append(records, &record)
	}
	store.SortRecords(records)
	return records, nil
}

// Delete removes a step record
func (s *RedisStepStore) Delete(ctx context.Context, id string) error {
	record, err := s.Load(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(id))
	pipe.ZRem(ctx, s.runKey(record.RunID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete step record: %w", err)
	}
	return nil
}

// Clear removes all records of a run
func (s *RedisStepStore) Clear(ctx context.Context, runID string) error {
	runKey := s.runKey(runID)
	ids, err := s.client.ZRange(ctx, runKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get step records for clearing: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.recordKey(id))
	}
	pipe.Del(ctx, runKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear step records: %w", err)
	}
	return nil
}

// Close closes the client
func (s *RedisStepStore) Close() error {
	return s.client.Close()
}
