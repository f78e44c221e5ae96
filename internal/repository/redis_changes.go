package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/basketfi/vaultcore/internal/config"
	"github.com/basketfi/vaultcore/internal/model"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// RedisChangeRepo keeps a capped list of recent position changes for
// cheap observability queries; Postgres remains the durable store.
type RedisChangeRepo struct {
	client  *redis.Client
	listKey string
	listMax int
}

func NewRedisChangeRepo(client *redis.Client, listKey string, listMax int) *RedisChangeRepo {
	if listKey == "" {
		listKey = "position_changes"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisChangeRepo{client: client, listKey: listKey, listMax: listMax}
}

func (r *RedisChangeRepo) Insert(ctx context.Context, change *model.PositionChange) error {
	if change == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.listKey, payload).Err(); err != nil {
		return err
	}
	return r.client.LTrim(ctx, r.listKey, 0, int64(r.listMax-1)).Err()
}

func (r *RedisChangeRepo) List(ctx context.Context, vaultID string, limit int) ([]*model.PositionChange, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}
	items, err := r.client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.PositionChange, 0, limit)
	for _, raw := range items {
		var change model.PositionChange
		if err := json.Unmarshal([]byte(raw), &change); err != nil {
			continue
		}
		if vaultID != "" && change.VaultID != vaultID {
			continue
		}
		results = append(results, &change)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
