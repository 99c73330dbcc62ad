package domain

import (
	"context"
	"time"
)

// ItemRepository 单条目存储，每次写入只触达一个键，不维护索引
type ItemRepository interface {
	// Get 读取条目，不存在时返回 (nil, nil)
	Get(ctx context.Context, userID, itemID string) (*CartItem, error)
	// GetByKey 按完整键读取条目，不存在时返回 (nil, nil)
	GetByKey(ctx context.Context, key string) (*CartItem, error)
	// Put 写入条目，键过期时间由条目阶段决定
	Put(ctx context.Context, item *CartItem) error
	// Delete 删除条目，返回是否确实删除了值
	Delete(ctx context.Context, userID, itemID string) (bool, error)
	// DeleteKeys 一次性批量删除条目键
	DeleteKeys(ctx context.Context, keys ...string) (int64, error)
}

// IndexRepository 用户购物车的条目键集合
type IndexRepository interface {
	// Add 加入条目键，并把集合过期时间提升到至少 ttl（只延长不缩短）
	Add(ctx context.Context, userID, itemKey string, ttl time.Duration) error
	// Remove 移除条目键，不存在时无操作
	Remove(ctx context.Context, userID, itemKey string) error
	// List 列出条目键，无购物车时返回空
	List(ctx context.Context, userID string) ([]string, error)
	// Clear 删除整个集合
	Clear(ctx context.Context, userID string) error
	// SetExpiry 设置集合过期时间，NoExpiry 表示清除过期时间
	SetExpiry(ctx context.Context, userID string, ttl time.Duration) error
}

// ItemScanner 全量扫描，仅供离线清理与统计使用
type ItemScanner interface {
	// ScanItems 遍历全部条目
	ScanItems(ctx context.Context, fn func(item *CartItem) error) error
	// Statistics 统计购物车与条目数量
	Statistics(ctx context.Context) (*Statistics, error)
}
