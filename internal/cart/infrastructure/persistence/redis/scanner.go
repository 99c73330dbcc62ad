package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
)

const defaultScanCount = 500

// Scanner 基于 SCAN 游标遍历购物车键空间，只用于离线任务
type Scanner struct {
	client redis.UniversalClient
	count  int64
}

// NewScanner 创建扫描器，count 为每批 SCAN 的建议数量
func NewScanner(client redis.UniversalClient, count int) *Scanner {
	if count <= 0 {
		count = defaultScanCount
	}
	return &Scanner{client: client, count: int64(count)}
}

// ScanItems 遍历全部条目；扫描期间被删除的键会被跳过，无法解析的值记录日志后跳过
func (s *Scanner) ScanItems(ctx context.Context, fn func(item *domain.CartItem) error) error {
	return s.scan(ctx, domain.ItemKeyPattern(), func(keys []string) error {
		return s.visitItems(ctx, keys, fn)
	})
}

// Statistics 索引键计为购物车，条目键计为条目并按阶段分组
func (s *Scanner) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats := domain.NewStatistics()
	err := s.scan(ctx, domain.KeyPattern(), func(keys []string) error {
		itemKeys := keys[:0:0]
		for _, key := range keys {
			if domain.IsItemKey(key) {
				itemKeys = append(itemKeys, key)
				continue
			}
			stats.TotalCarts++
		}
		return s.visitItems(ctx, itemKeys, func(item *domain.CartItem) error {
			stats.TotalItems++
			stats.PerTierCounts[item.Tier]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Scanner) scan(ctx context.Context, pattern string, page func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, s.count).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cart keys: %w", err)
		}
		if len(keys) > 0 {
			if err := page(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *Scanner) visitItems(ctx context.Context, keys []string, fn func(item *domain.CartItem) error) error {
	if len(keys) == 0 {
		return nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("failed to read cart items: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		item, err := decodeItem([]byte(raw))
		if err != nil {
			logger.Warn(ctx, "skipping undecodable cart item", "key", keys[i], "error", err)
			continue
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}
