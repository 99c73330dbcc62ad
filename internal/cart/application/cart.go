package application

import (
	"context"

	"github.com/wyfcoding/tieredcart/internal/cart/domain"
)

// CartApplicationService 购物车服务门面，整合命令服务、查询服务与过期清理
type CartApplicationService struct {
	commandService *CartCommandService
	queryService   *CartQueryService
	sweeper        *ExpirySweeper
}

// NewCartApplicationService 创建购物车服务门面实例
func NewCartApplicationService(
	commandService *CartCommandService,
	queryService *CartQueryService,
	sweeper *ExpirySweeper,
) *CartApplicationService {
	return &CartApplicationService{
		commandService: commandService,
		queryService:   queryService,
		sweeper:        sweeper,
	}
}

// GetCart 根据用户ID获取购物车信息
func (s *CartApplicationService) GetCart(ctx context.Context, userID string) *domain.Cart {
	return s.queryService.GetCart(ctx, userID)
}

// AddItem 添加商品到购物车
func (s *CartApplicationService) AddItem(ctx context.Context, cmd AddItemCommand) (*domain.CartItem, error) {
	return s.commandService.AddItem(ctx, cmd)
}

// UpdateItem 修改条目数量
func (s *CartApplicationService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*domain.CartItem, error) {
	return s.commandService.UpdateItem(ctx, userID, itemID, quantity)
}

// RemoveItem 从购物车移除条目
func (s *CartApplicationService) RemoveItem(ctx context.Context, userID, itemID string) (bool, error) {
	return s.commandService.RemoveItem(ctx, userID, itemID)
}

// ClearCart 清空购物车
func (s *CartApplicationService) ClearCart(ctx context.Context, userID string) (bool, error) {
	return s.commandService.ClearCart(ctx, userID)
}

// SetTier 切换购物车阶段
func (s *CartApplicationService) SetTier(ctx context.Context, userID string, tier domain.Tier) (bool, error) {
	return s.commandService.SetTier(ctx, userID, tier)
}

// FindExpired 列出已过期条目
func (s *CartApplicationService) FindExpired(ctx context.Context) ([]*domain.CartItem, error) {
	return s.sweeper.FindExpired(ctx)
}

// SweepExpired 删除已过期条目
func (s *CartApplicationService) SweepExpired(ctx context.Context) (int, error) {
	return s.sweeper.Sweep(ctx)
}

// Statistics 全局购物车统计
func (s *CartApplicationService) Statistics(ctx context.Context) (*domain.Statistics, error) {
	return s.queryService.Statistics(ctx)
}
