package store

import (
	"context"
	"encoding/json"
	"fmt"

	"curbly/internal/config"
	"curbly/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared DocumentStore backed by a redis instance. Each
// collection lives in one hash (document ID -> JSON field bag); change
// fan-out rides redis pub/sub, so subscribers in other processes see every
// write at least once.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "curbly"}
}

func (r *Redis) hashKey(collection string) string {
	return fmt.Sprintf("%s:coll:%s", r.prefix, collection)
}

func (r *Redis) channel(collection string) string {
	return fmt.Sprintf("%s:changes:%s", r.prefix, collection)
}

func (r *Redis) Query(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error) {
	if r.client == nil {
		return nil, domain.Unavailablef("redis client is nil")
	}
	raw, err := r.client.HGetAll(ctx, r.hashKey(collection)).Result()
	if err != nil {
		return nil, domain.Unavailablef("redis query %s: %v", collection, err)
	}

	docs := make([]domain.Document, 0, len(raw))
	for id, payload := range raw {
		fields := make(map[string]any)
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
		}
		if !matches(fields, filter) {
			continue
		}
		docs = append(docs, domain.Document{ID: id, Fields: fields})
	}
	return docs, nil
}

func (r *Redis) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	if r.client == nil {
		return domain.Unavailablef("redis client is nil")
	}
	if id == "" {
		return domain.Validationf("document id is required")
	}

	key := r.hashKey(collection)
	current := make(map[string]any)
	if payload, err := r.client.HGet(ctx, key, id).Result(); err == nil {
		if err := json.Unmarshal([]byte(payload), &current); err != nil {
			return fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
		}
	} else if err != redis.Nil {
		return domain.Unavailablef("redis read %s/%s: %v", collection, id, err)
	}

	for k, v := range fields {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}
	if err := r.client.HSet(ctx, key, id, merged).Err(); err != nil {
		return domain.Unavailablef("redis write %s/%s: %v", collection, id, err)
	}

	r.client.Publish(ctx, r.channel(collection), id)
	return nil
}

func (r *Redis) Delete(ctx context.Context, collection, id string) error {
	if r.client == nil {
		return domain.Unavailablef("redis client is nil")
	}
	if err := r.client.HDel(ctx, r.hashKey(collection), id).Err(); err != nil {
		return domain.Unavailablef("redis delete %s/%s: %v", collection, id, err)
	}
	r.client.Publish(ctx, r.channel(collection), id)
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, collection string, filter domain.Filter) (<-chan []domain.Document, error) {
	if r.client == nil {
		return nil, domain.Unavailablef("redis client is nil")
	}

	pubsub := r.client.Subscribe(ctx, r.channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, domain.Unavailablef("redis subscribe %s: %v", collection, err)
	}

	out := make(chan []domain.Document, 8)

	deliver := func() {
		snapshot, err := r.Query(ctx, collection, filter)
		if err != nil {
			return
		}
		select {
		case out <- snapshot:
		default:
			// Consumer is behind; replace the stale snapshot.
			select {
			case <-out:
			default:
			}
			select {
			case out <- snapshot:
			default:
			}
		}
	}

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		deliver()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	return out, nil
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return domain.Unavailablef("redis ping: %v", err)
	}
	return nil
}
