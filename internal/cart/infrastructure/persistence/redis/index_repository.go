package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
)

// TTL 命令对不存在的键返回 -2，对无过期时间的键返回 -1
const (
	ttlMissing    time.Duration = -2
	ttlPersistent time.Duration = -1
)

// IndexRepository 用户购物车索引，Redis SET 保存条目键
type IndexRepository struct {
	client redis.UniversalClient
}

// NewIndexRepository 创建索引仓储
func NewIndexRepository(client redis.UniversalClient) *IndexRepository {
	return &IndexRepository{client: client}
}

// Add 加入条目键，并把集合 TTL 提升到至少 ttl：只延长不缩短，已持久化的集合保持不过期，NoExpiry 则持久化
// 条目每次写入都应调用，保证索引不会先于其中的条目过期
func (r *IndexRepository) Add(ctx context.Context, userID, itemKey string, ttl time.Duration) error {
	key := domain.IndexKey(userID)

	var ttlCmd *redis.DurationCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		ttlCmd = p.TTL(ctx, key)
		p.SAdd(ctx, key, itemKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add to cart index: %w", err)
	}

	current := ttlCmd.Val()
	switch {
	case current == ttlPersistent:
		return nil
	case ttl == domain.NoExpiry:
		err = r.client.Persist(ctx, key).Err()
	case current == ttlMissing, current < ttl:
		err = r.client.Expire(ctx, key, ttl).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to refresh cart index ttl: %w", err)
	}
	return nil
}

func (r *IndexRepository) Remove(ctx context.Context, userID, itemKey string) error {
	if err := r.client.SRem(ctx, domain.IndexKey(userID), itemKey).Err(); err != nil {
		return fmt.Errorf("failed to remove from cart index: %w", err)
	}
	return nil
}

func (r *IndexRepository) List(ctx context.Context, userID string) ([]string, error) {
	keys, err := r.client.SMembers(ctx, domain.IndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cart index: %w", err)
	}
	return keys, nil
}

func (r *IndexRepository) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, domain.IndexKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart index: %w", err)
	}
	return nil
}

// SetExpiry NoExpiry 使用 PERSIST 清除过期时间
func (r *IndexRepository) SetExpiry(ctx context.Context, userID string, ttl time.Duration) error {
	key := domain.IndexKey(userID)
	var err error
	if ttl == domain.NoExpiry {
		err = r.client.Persist(ctx, key).Err()
	} else {
		err = r.client.Expire(ctx, key, ttl).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to set cart index ttl: %w", err)
	}
	return nil
}
