package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const defaultFanout = 16

// CartQueryService 购物车查询服务：读取索引、并发读取条目并过滤过期条目
type CartQueryService struct {
	items   domain.ItemRepository
	index   domain.IndexRepository
	scanner domain.ItemScanner
	logger  *slog.Logger
	fanout  int
	now     func() time.Time
}

// NewCartQueryService 创建购物车查询服务实例，fanout 限制单次读取的并发数
func NewCartQueryService(
	items domain.ItemRepository,
	index domain.IndexRepository,
	scanner domain.ItemScanner,
	logger *slog.Logger,
	fanout int,
) *CartQueryService {
	if fanout <= 0 {
		fanout = defaultFanout
	}
	return &CartQueryService{
		items:   items,
		index:   index,
		scanner: scanner,
		logger:  orDefault(logger),
		fanout:  fanout,
		now:     time.Now,
	}
}

// GetCart 读取购物车；后端不可用时记录日志并返回空购物车
func (s *CartQueryService) GetCart(ctx context.Context, userID string) *domain.Cart {
	cart, err := s.Load(ctx, userID)
	if err != nil {
		logger.Enrich(ctx, s.logger).WarnContext(ctx, "returning empty cart", "user_id", userID, "error", err)
		return domain.EmptyCart(userID, s.now())
	}
	return cart
}

// Load 与 GetCart 相同的读取路径，但返回错误，供写路径使用
func (s *CartQueryService) Load(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	keys, err := s.index.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if len(keys) == 0 {
		return domain.EmptyCart(userID, s.now()), nil
	}

	fetched := make([]*domain.CartItem, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			item, err := s.items.GetByKey(gctx, key)
			if err != nil {
				return err
			}
			fetched[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	now := s.now()
	live := make([]*domain.CartItem, 0, len(fetched))
	for _, item := range fetched {
		// 索引悬挂或已过期的条目直接跳过
		if item == nil || item.UserID != userID || item.Expired(now) {
			continue
		}
		live = append(live, item)
	}
	return domain.NewCart(userID, live, now), nil
}

// Statistics 全局统计，全量扫描键空间
func (s *CartQueryService) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats, err := s.scanner.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return stats, nil
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return logger.Get()
	}
	return l
}
