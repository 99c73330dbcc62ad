package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"github.com/wyfcoding/tieredcart/pkg/mq"
)

// Sink 事件投递目标
type Sink interface {
	Send(ctx context.Context, key string, event domain.Event) error
	Close() error
}

// KafkaSink 写入 Kafka 主题，key 决定分区
type KafkaSink struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaSink 创建 Kafka 投递目标
func NewKafkaSink(producer *mq.KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Send(ctx context.Context, key string, event domain.Event) error {
	if err := s.producer.SendMessage(ctx, s.topic, key, event); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event.EventType, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// RabbitMQSink 发布到 direct 交换机，路由键在生产者配置中固定
type RabbitMQSink struct {
	producer *mq.RabbitProducer
}

// NewRabbitMQSink 创建 RabbitMQ 投递目标
func NewRabbitMQSink(producer *mq.RabbitProducer) *RabbitMQSink {
	return &RabbitMQSink{producer: producer}
}

func (s *RabbitMQSink) Send(ctx context.Context, _ string, event domain.Event) error {
	if err := s.producer.SendMessage(ctx, event); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", event.EventType, err)
	}
	return nil
}

func (s *RabbitMQSink) Close() error {
	return s.producer.Close()
}

// LogSink 未配置消息总线时只记录日志
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink 创建日志投递目标
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = logger.Get()
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Send(ctx context.Context, key string, event domain.Event) error {
	logger.Enrich(ctx, s.logger).DebugContext(ctx, "cart event", "event_type", event.EventType, "key", key)
	return nil
}

func (s *LogSink) Close() error { return nil }
