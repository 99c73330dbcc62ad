package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wyfcoding/tieredcart/pkg/logger"
)

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	// Queue 可选：声明并绑定到 RoutingKey 的持久化队列
	Queue string
}

// amqpChannel amqp.Channel 的最小子集，便于测试替换
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitProducer RabbitMQ 生产者；amqp.Channel 非并发安全，发布时串行化
type RabbitProducer struct {
	mu   sync.Mutex
	cfg  RabbitMQConfig
	conn *amqp.Connection
	ch   amqpChannel
	dial func(cfg RabbitMQConfig) (*amqp.Connection, amqpChannel, error)
}

// NewRabbitProducer 连接 RabbitMQ 并声明 direct 交换机与队列
func NewRabbitProducer(cfg RabbitMQConfig) (*RabbitProducer, error) {
	p := &RabbitProducer{cfg: cfg, dial: dialRabbit}
	conn, ch, err := p.dial(cfg)
	if err != nil {
		return nil, err
	}
	p.conn, p.ch = conn, ch

	logger.Info(context.Background(), "RabbitMQ producer created", "exchange", cfg.Exchange, "routing_key", cfg.RoutingKey)
	return p, nil
}

// NewRabbitProducerWithChannel 使用自定义 channel 创建生产者（不重连）
func NewRabbitProducerWithChannel(cfg RabbitMQConfig, ch amqpChannel) *RabbitProducer {
	return &RabbitProducer{cfg: cfg, ch: ch}
}

func dialRabbit(cfg RabbitMQConfig) (*amqp.Connection, amqpChannel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if cfg.Queue != "" {
		if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
		}
		if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
		}
	}
	return conn, ch, nil
}

// SendMessage 以 JSON 编码发布一条持久化消息
func (p *RabbitProducer) SendMessage(ctx context.Context, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && p.dial != nil {
		// 连接断开时重连一次
		if rerr := p.reconnect(); rerr != nil {
			return fmt.Errorf("rabbitmq reconnect: %w", rerr)
		}
		err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("rabbitmq publish to %s: %w", p.cfg.Exchange, err)
	}

	logger.Debug(ctx, "RabbitMQ message sent", "exchange", p.cfg.Exchange, "routing_key", p.cfg.RoutingKey)
	return nil
}

func (p *RabbitProducer) reconnect() error {
	p.closeLocked()
	conn, ch, err := p.dial(p.cfg)
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *RabbitProducer) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Close 关闭 channel 与连接
func (p *RabbitProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}
