package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"github.com/wyfcoding/tieredcart/pkg/metrics"
)

// ExpirySweeper 定期扫描并删除已过期但尚未被 Redis 淘汰的条目
type ExpirySweeper struct {
	scanner  domain.ItemScanner
	commands *CartCommandService
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewExpirySweeper 创建清理任务，interval 为 0 时 Start 不启动定时器
func NewExpirySweeper(
	scanner domain.ItemScanner,
	commands *CartCommandService,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
) *ExpirySweeper {
	return &ExpirySweeper{
		scanner:  scanner,
		commands: commands,
		metrics:  m,
		logger:   orDefault(logger),
		interval: interval,
		now:      time.Now,
	}
}

// FindExpired 全量扫描，返回过期时间早于或等于当前时间的条目
func (j *ExpirySweeper) FindExpired(ctx context.Context) ([]*domain.CartItem, error) {
	now := j.now()
	expired := make([]*domain.CartItem, 0)
	err := j.scanner.ScanItems(ctx, func(item *domain.CartItem) error {
		if item.Expired(now) {
			expired = append(expired, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return expired, nil
}

// Sweep 对每个过期条目走 RemoveItem 路径，返回实际删除数量；单条失败记录日志后继续
func (j *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := j.FindExpired(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, item := range expired {
		ok, err := j.commands.RemoveItem(ctx, item.UserID, item.ItemID)
		if err != nil {
			logger.Enrich(ctx, j.logger).ErrorContext(ctx, "failed to sweep cart item",
				"user_id", item.UserID, "item_id", item.ItemID, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	j.metrics.RecordSwept(removed)
	return removed, nil
}

// Start 按固定间隔执行清理，直到 ctx 取消
func (j *ExpirySweeper) Start(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("Expiry sweeper disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Expiry sweeper started", "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *ExpirySweeper) run(ctx context.Context) {
	start := time.Now()
	removed, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error("expiry sweep failed", "error", err, "duration", time.Since(start))
		return
	}
	j.logger.Info("expiry sweep finished", "removed", removed, "duration", time.Since(start))
}
