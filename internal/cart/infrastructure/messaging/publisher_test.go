package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/metrics"
	"github.com/wyfcoding/tieredcart/pkg/mq"
)

type fakeSink struct {
	mu     sync.Mutex
	err    error
	keys   []string
	events []domain.Event
	calls  int
}

func (s *fakeSink) Send(ctx context.Context, key string, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	s.keys = append(s.keys, key)
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func TestPublishDelivers(t *testing.T) {
	sink := &fakeSink{}
	m := metrics.New("pub")
	p := NewBestEffortPublisher(sink, PublisherConfig{}, m, nil)
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	p.Publish(context.Background(), domain.EventCleared, "user-1", domain.CartClearedPayload{UserID: "user-1", RemovedItems: 2})

	require.Len(t, sink.events, 1)
	assert.Equal(t, "user-1", sink.keys[0])
	assert.Equal(t, domain.EventCleared, sink.events[0].EventType)
	assert.Equal(t, fixed, sink.events[0].Timestamp)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("cart.cleared", "ok")))
}

func TestPublishSurvivesCanceledRequest(t *testing.T) {
	sink := &fakeSink{}
	p := NewBestEffortPublisher(sink, PublisherConfig{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, domain.EventItemAdded, "u", nil)

	assert.Len(t, sink.events, 1)
}

func TestPublishSwallowsFailuresAndTrips(t *testing.T) {
	sink := &fakeSink{err: errors.New("broker down")}
	m := metrics.New("pub")
	p := NewBestEffortPublisher(sink, PublisherConfig{BreakerFailures: 2, BreakerOpenTimeout: time.Minute}, m, nil)

	for i := 0; i < 5; i++ {
		assert.NotPanics(t, func() {
			p.Publish(context.Background(), domain.EventItemRemoved, "u", nil)
		})
	}

	assert.Equal(t, 2, sink.calls, "open breaker skips the sink")
	assert.Equal(t, gobreaker.StateOpen, p.State())
	assert.Equal(t, 5.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("cart.item.removed", "error")))
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaSinkEnvelope(t *testing.T) {
	w := &recordingWriter{}
	sink := NewKafkaSink(mq.NewProducerWithWriter(w), "cart.events")
	p := NewBestEffortPublisher(sink, PublisherConfig{}, nil, nil)

	p.Publish(context.Background(), domain.EventTierChanged, "7", domain.TierChangedPayload{UserID: "7", Tier: domain.TierOrderPlaced, ItemCount: 1})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "cart.events", w.msgs[0].Topic)
	assert.Equal(t, "7", string(w.msgs[0].Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "cart.tier.changed", body["eventType"])
	assert.Contains(t, body, "timestamp")
	payload := body["payload"].(map[string]any)
	assert.Equal(t, "order_placed", payload["tier"])
}

type recordingChannel struct {
	exchange, key string
	msgs          []amqp.Publishing
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func TestRabbitMQSinkEnvelope(t *testing.T) {
	ch := &recordingChannel{}
	producer := mq.NewRabbitProducerWithChannel(mq.RabbitMQConfig{Exchange: "cart.exchange", RoutingKey: "cart.events"}, ch)
	p := NewBestEffortPublisher(NewRabbitMQSink(producer), PublisherConfig{}, nil, nil)

	p.Publish(context.Background(), domain.EventItemAdded, "7", map[string]string{"itemId": "x"})

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "cart.exchange", ch.exchange)
	assert.Equal(t, "cart.events", ch.key)
	assert.Contains(t, string(ch.msgs[0].Body), `"eventType":"cart.item.added"`)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(nil)
	assert.NoError(t, sink.Send(context.Background(), "k", domain.Event{EventType: domain.EventCleared}))
	assert.NoError(t, sink.Close())
}
