package store

import (
	"context"
	"fmt"
	"time"

	"formula-ocr-server/internal/domain/history/model"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client   *redis.Client
	ttl      time.Duration
	prefix   string
	capacity int
}

// NewRedis constructs a redis-backed history store. Records live under
// <prefix>record:<id> with a TTL; <prefix>recent indexes ids newest first.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "formula:history:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &redisStore{
		client:   client,
		ttl:      ttl,
		prefix:   prefix,
		capacity: capacityOf(cfg),
	}, nil
}

func (s *redisStore) recordKey(id string) string {
	return s.prefix + "record:" + id
}

func (s *redisStore) indexKey() string {
	return s.prefix + "recent"
}

func (s *redisStore) Save(ctx context.Context, record model.Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	data, err := sonic.Marshal(record)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.ID), data, s.ttl)
	pipe.LRem(ctx, s.indexKey(), 0, record.ID)
	pipe.LPush(ctx, s.indexKey(), record.ID)
	pipe.LTrim(ctx, s.indexKey(), 0, int64(s.capacity-1))
	pipe.Incr(ctx, s.prefix+"total")
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Recent(ctx context.Context, limit int) ([]model.Record, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	ids, err := s.client.LRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired record, index entry is trimmed lazily
			continue
		}
		var record model.Record
		if err := sonic.UnmarshalString(raw, &record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *redisStore) Get(ctx context.Context, id string) (model.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return model.Record{}, ErrNotFound
		}
		return model.Record{}, err
	}
	var record model.Record
	if err := sonic.Unmarshal(raw, &record); err != nil {
		return model.Record{}, err
	}
	return record, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	indexed, err := s.client.LLen(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	total, err := s.client.Get(ctx, s.prefix+"total").Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return map[string]any{
		"type":     DriverRedis,
		"indexed":  indexed,
		"total":    total,
		"capacity": s.capacity,
		"ttl":      int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
