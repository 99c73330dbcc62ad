// Package messaging 提供尽力而为的购物车事件发布
package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"github.com/wyfcoding/tieredcart/pkg/metrics"
)

// PublisherConfig 发布器配置
type PublisherConfig struct {
	// 单次发布超时
	Timeout time.Duration
	// 连续失败多少次后熔断
	BreakerFailures uint32
	// 熔断后多久进入半开状态
	BreakerOpenTimeout time.Duration
}

// BestEffortPublisher 同步投递，失败只记录日志与指标，从不向调用方返回错误
// 总线不可用时由熔断器快速跳过
type BestEffortPublisher struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewBestEffortPublisher 创建发布器
func NewBestEffortPublisher(sink Sink, cfg PublisherConfig, m *metrics.Metrics, l *slog.Logger) *BestEffortPublisher {
	if l == nil {
		l = logger.Get()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cart-events",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("event bus breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &BestEffortPublisher{
		sink:    sink,
		breaker: breaker,
		timeout: cfg.Timeout,
		metrics: m,
		logger:  l,
		now:     time.Now,
	}
}

// Publish 发布事件；请求取消不会中断已开始的投递
func (p *BestEffortPublisher) Publish(ctx context.Context, eventType domain.EventType, key string, payload any) {
	event := domain.Event{
		EventType: eventType,
		Timestamp: p.now(),
		Payload:   payload,
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.sink.Send(sendCtx, key, event)
	})
	p.metrics.RecordEvent(string(eventType), err)
	if err != nil {
		logger.Enrich(ctx, p.logger).WarnContext(ctx, "failed to publish cart event",
			"event_type", eventType, "key", key, "error", err)
	}
}

// State 熔断器当前状态
func (p *BestEffortPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close 关闭底层投递目标
func (p *BestEffortPublisher) Close() error {
	return p.sink.Close()
}
