package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
)

// ItemRepository 购物车条目的 Redis 实现，每个条目一个字符串键，值为 JSON
type ItemRepository struct {
	client redis.UniversalClient
}

// NewItemRepository 创建条目仓储
func NewItemRepository(client redis.UniversalClient) *ItemRepository {
	return &ItemRepository{client: client}
}

func (r *ItemRepository) Get(ctx context.Context, userID, itemID string) (*domain.CartItem, error) {
	if userID == "" || itemID == "" {
		return nil, nil
	}
	return r.GetByKey(ctx, domain.ItemKey(userID, itemID))
}

func (r *ItemRepository) GetByKey(ctx context.Context, key string) (*domain.CartItem, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cart item %s: %w", key, err)
	}
	return decodeItem(data)
}

// Put 写入条目；PaymentCompleted 阶段不带过期时间，SET 会同时清除旧的 TTL
func (r *ItemRepository) Put(ctx context.Context, item *domain.CartItem) error {
	if item == nil {
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cart item: %w", err)
	}
	var expiration = item.TTL()
	if expiration == domain.NoExpiry {
		expiration = 0
	}
	if err := r.client.Set(ctx, item.Key(), data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to save cart item %s: %w", item.Key(), err)
	}
	return nil
}

func (r *ItemRepository) Delete(ctx context.Context, userID, itemID string) (bool, error) {
	n, err := r.client.Del(ctx, domain.ItemKey(userID, itemID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete cart item: %w", err)
	}
	return n > 0, nil
}

func (r *ItemRepository) DeleteKeys(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete cart items: %w", err)
	}
	return n, nil
}

func decodeItem(data []byte) (*domain.CartItem, error) {
	var item domain.CartItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart item: %w", err)
	}
	return &item, nil
}
