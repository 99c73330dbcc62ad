package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"github.com/wyfcoding/tieredcart/pkg/metrics"
)

// AddItemCommand 添加商品到购物车命令
type AddItemCommand struct {
	UserID             string
	ProductID          string
	Quantity           int
	UnitPrice          decimal.Decimal
	ProductName        string
	ProductDescription string
	ImageURL           string
}

func (c AddItemCommand) newItem() domain.NewItem {
	return domain.NewItem{
		UserID:             c.UserID,
		ProductID:          c.ProductID,
		Quantity:           c.Quantity,
		UnitPrice:          c.UnitPrice,
		ProductName:        c.ProductName,
		ProductDescription: c.ProductDescription,
		ImageURL:           c.ImageURL,
	}
}

// CartCommandService 购物车命令服务
// 条目与索引分两次写入，中途失败留下的不一致由读路径的惰性过滤和 ClearCart 修复
type CartCommandService struct {
	items     domain.ItemRepository
	index     domain.IndexRepository
	query     *CartQueryService
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewCartCommandService 创建购物车命令服务实例
func NewCartCommandService(
	items domain.ItemRepository,
	index domain.IndexRepository,
	query *CartQueryService,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CartCommandService {
	return &CartCommandService{
		items:     items,
		index:     index,
		query:     query,
		publisher: publisher,
		metrics:   m,
		logger:    orDefault(logger),
		now:       time.Now,
	}
}

// AddItem 同一商品已在购物车中时累加数量，否则新建 Default 阶段条目
// 并发添加同一商品可能产生两条记录
func (s *CartCommandService) AddItem(ctx context.Context, cmd AddItemCommand) (item *domain.CartItem, err error) {
	defer func() { s.metrics.RecordCartOp("add_item", err) }()

	n := cmd.newItem()
	if err := n.Validate(); err != nil {
		return nil, err
	}

	cart, err := s.query.Load(ctx, cmd.UserID)
	if err != nil {
		return nil, s.fail(ctx, "load cart", err, "user_id", cmd.UserID)
	}

	now := s.now()
	if existing := cart.FindByProduct(cmd.ProductID); existing != nil {
		existing.Quantity += cmd.Quantity
		existing.Touch(now)
		if err := s.save(ctx, existing); err != nil {
			return nil, err
		}
		s.publisher.Publish(ctx, domain.EventItemUpdated, cmd.UserID, existing)
		return existing, nil
	}

	item = domain.NewCartItem(n, now)
	if err := s.save(ctx, item); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, domain.EventItemAdded, cmd.UserID, item)
	return item, nil
}

// UpdateItem 修改数量，保持条目当前阶段并刷新过期时间
func (s *CartCommandService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (item *domain.CartItem, err error) {
	defer func() { s.metrics.RecordCartOp("update_item", err) }()

	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	item, err = s.items.Get(ctx, userID, itemID)
	if err != nil {
		return nil, s.fail(ctx, "get cart item", err, "user_id", userID, "item_id", itemID)
	}
	now := s.now()
	if item == nil || item.Expired(now) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, itemID)
	}

	item.Quantity = quantity
	item.Touch(now)
	if err := s.save(ctx, item); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, domain.EventItemUpdated, userID, item)
	return item, nil
}

// RemoveItem 删除条目并从索引移除；只有确实删除了值才发布事件
func (s *CartCommandService) RemoveItem(ctx context.Context, userID, itemID string) (removed bool, err error) {
	defer func() { s.metrics.RecordCartOp("remove_item", err) }()

	if err := domain.ValidateUserID(userID); err != nil {
		return false, err
	}

	item, err := s.items.Get(ctx, userID, itemID)
	if err != nil {
		return false, s.fail(ctx, "get cart item", err, "user_id", userID, "item_id", itemID)
	}
	if err := s.index.Remove(ctx, userID, domain.ItemKey(userID, itemID)); err != nil {
		return false, s.fail(ctx, "unindex cart item", err, "user_id", userID, "item_id", itemID)
	}
	removed, err = s.items.Delete(ctx, userID, itemID)
	if err != nil {
		return false, s.fail(ctx, "delete cart item", err, "user_id", userID, "item_id", itemID)
	}

	if removed {
		s.publisher.Publish(ctx, domain.EventItemRemoved, userID, domain.ItemRemovedPayload{
			UserID: userID,
			ItemID: itemID,
			Item:   item,
		})
	}
	return removed, nil
}

// ClearCart 批量删除索引中的条目与索引本身；空购物车直接返回成功
func (s *CartCommandService) ClearCart(ctx context.Context, userID string) (ok bool, err error) {
	defer func() { s.metrics.RecordCartOp("clear_cart", err) }()

	if err := domain.ValidateUserID(userID); err != nil {
		return false, err
	}

	keys, err := s.index.List(ctx, userID)
	if err != nil {
		return false, s.fail(ctx, "list cart index", err, "user_id", userID)
	}
	// 空购物车不产生写入，也不发布 cart.cleared
	if len(keys) == 0 {
		return true, nil
	}

	deleted, err := s.items.DeleteKeys(ctx, keys...)
	if err != nil {
		return false, s.fail(ctx, "delete cart items", err, "user_id", userID)
	}
	if err := s.index.Clear(ctx, userID); err != nil {
		return false, s.fail(ctx, "clear cart index", err, "user_id", userID)
	}

	s.publisher.Publish(ctx, domain.EventCleared, userID, domain.CartClearedPayload{
		UserID:       userID,
		RemovedItems: int(deleted),
	})
	return true, nil
}

// SetTier 以新阶段重写全部条目并同步索引 TTL；空购物车返回 false
func (s *CartCommandService) SetTier(ctx context.Context, userID string, tier domain.Tier) (applied bool, err error) {
	defer func() { s.metrics.RecordCartOp("set_tier", err) }()

	if err := domain.ValidateUserID(userID); err != nil {
		return false, err
	}
	if !tier.Valid() {
		return false, fmt.Errorf("%w: unknown tier %q", domain.ErrValidation, tier)
	}

	cart, err := s.query.Load(ctx, userID)
	if err != nil {
		return false, s.fail(ctx, "load cart", err, "user_id", userID)
	}
	if cart.IsEmpty() {
		return false, nil
	}

	now := s.now()
	for _, item := range cart.Items {
		item.SetTier(tier, now)
		if err := s.items.Put(ctx, item); err != nil {
			return false, s.fail(ctx, "save cart item", err, "user_id", userID, "item_id", item.ItemID)
		}
	}
	if err := s.index.SetExpiry(ctx, userID, domain.DurationFor(tier)); err != nil {
		return false, s.fail(ctx, "set cart index ttl", err, "user_id", userID)
	}

	s.publisher.Publish(ctx, domain.EventTierChanged, userID, domain.TierChangedPayload{
		UserID:    userID,
		Tier:      tier,
		ItemCount: len(cart.Items),
	})
	return true, nil
}

// save 写入条目，并把索引 TTL 提升到至少条目的 TTL
func (s *CartCommandService) save(ctx context.Context, item *domain.CartItem) error {
	if err := s.items.Put(ctx, item); err != nil {
		return s.fail(ctx, "save cart item", err, "user_id", item.UserID, "item_id", item.ItemID)
	}
	if err := s.index.Add(ctx, item.UserID, item.Key(), item.TTL()); err != nil {
		return s.fail(ctx, "index cart item", err, "user_id", item.UserID, "item_id", item.ItemID)
	}
	return nil
}

// fail 记录写路径上的后端错误，并包装为 ErrBackendUnavailable
func (s *CartCommandService) fail(ctx context.Context, op string, err error, args ...any) error {
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	args = append(args, "op", op, "error", err)
	logger.Enrich(ctx, s.logger).ErrorContext(ctx, "cart write failed", args...)
	return fmt.Errorf("failed to %s: %w", op, err)
}
