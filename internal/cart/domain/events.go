package domain

import (
	"context"
	"time"
)

// EventType 购物车事件类型
type EventType string

const (
	EventItemAdded   EventType = "cart.item.added"
	EventItemUpdated EventType = "cart.item.updated"
	EventItemRemoved EventType = "cart.item.removed"
	EventCleared     EventType = "cart.cleared"
	EventTierChanged EventType = "cart.tier.changed"
)

// Event 发布到消息总线的事件信封
type Event struct {
	EventType EventType `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// CartClearedPayload 清空购物车事件负载
type CartClearedPayload struct {
	UserID       string `json:"userId"`
	RemovedItems int    `json:"removedItems"`
}

// TierChangedPayload 阶段变更事件负载
type TierChangedPayload struct {
	UserID    string `json:"userId"`
	Tier      Tier   `json:"tier"`
	ItemCount int    `json:"itemCount"`
}

// ItemRemovedPayload 条目删除事件负载；Item 在删除前已读到时携带完整快照
type ItemRemovedPayload struct {
	UserID string    `json:"userId"`
	ItemID string    `json:"itemId"`
	Item   *CartItem `json:"item,omitempty"`
}

// EventPublisher 尽力而为的事件发布者：失败只记录，不影响调用方
type EventPublisher interface {
	// Publish 发布事件，key 用于分区（通常为 userID）
	Publish(ctx context.Context, eventType EventType, key string, payload any)
}
