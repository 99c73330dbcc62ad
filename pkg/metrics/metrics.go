// Package metrics 提供 Prometheus 指标集合，包含 HTTP、Redis、购物车操作与事件发布指标
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Metrics 指标集合；所有记录方法对 nil 接收者安全
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// Redis 操作计数
	RedisOpsTotal *prometheus.CounterVec
	// Redis 操作耗时
	RedisOpDuration prometheus.Histogram
	// Redis 错误计数（不含 redis.Nil）
	RedisErrorsTotal prometheus.Counter

	// 购物车操作计数
	CartOpsTotal *prometheus.CounterVec
	// 事件发布计数
	EventsPublishedTotal *prometheus.CounterVec
	// 清理任务删除的过期条目数
	SweptItemsTotal prometheus.Counter
}

// New 创建并注册指标实例，使用独立 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		RedisOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "redis_ops_total",
			Help:      "Total Redis commands",
		}, []string{"cmd"}),
		RedisOpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "redis_op_duration_seconds",
			Help:      "Redis command duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RedisErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "redis_errors_total",
			Help:      "Total failed Redis commands",
		}),
		CartOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "operations_total",
			Help:      "Cart operations by name and result",
		}, []string{"op", "result"}),
		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "events_published_total",
			Help:      "Cart events handed to the bus by type and result",
		}, []string{"event_type", "result"}),
		SweptItemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cart",
			Subsystem: serviceName,
			Name:      "swept_items_total",
			Help:      "Expired cart items removed by the sweeper",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RedisOpsTotal,
		m.RedisOpDuration,
		m.RedisErrorsTotal,
		m.CartOpsTotal,
		m.EventsPublishedTotal,
		m.SweptItemsTotal,
	)
	return m
}

// Handler 返回 Prometheus 抓取端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCartOp 记录购物车操作结果
func (m *Metrics) RecordCartOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CartOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordEvent 记录事件发布结果
func (m *Metrics) RecordEvent(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}

// RecordSwept 记录清理数量
func (m *Metrics) RecordSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptItemsTotal.Add(float64(n))
}

// RedisHook 返回记录 Redis 命令指标的 go-redis 钩子
func (m *Metrics) RedisHook() redis.Hook {
	return redisHook{m: m}
}

type redisHook struct {
	m *Metrics
}

func (h redisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h redisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if isHandshake(cmd) {
			return next(ctx, cmd)
		}
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), start, err)
		return err
	}
}

func (h redisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if isHandshake(cmds...) {
			return next(ctx, cmds)
		}
		start := time.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", start, err)
		return err
	}
}

// isHandshake 连接建立时 go-redis 自动发送的 HELLO / CLIENT 命令；旧版本服务端会拒绝，不计入指标
func isHandshake(cmds ...redis.Cmder) bool {
	if len(cmds) == 0 {
		return false
	}
	for _, cmd := range cmds {
		switch cmd.Name() {
		case "hello", "client":
		default:
			return false
		}
	}
	return true
}

func (h redisHook) observe(name string, start time.Time, err error) {
	if h.m == nil {
		return
	}
	h.m.RedisOpsTotal.WithLabelValues(name).Inc()
	h.m.RedisOpDuration.Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, redis.Nil) {
		h.m.RedisErrorsTotal.Inc()
	}
}
