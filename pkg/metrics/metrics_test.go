package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCartOp("add", nil)
	m.RecordEvent("cart.cleared", errors.New("boom"))
	m.RecordSwept(3)
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestRecordCounters(t *testing.T) {
	m := New("test")

	m.RecordCartOp("add", nil)
	m.RecordCartOp("add", errors.New("boom"))
	m.RecordEvent("cart.item.added", nil)
	m.RecordSwept(2)
	m.RecordSwept(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartOpsTotal.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartOpsTotal.WithLabelValues("add", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("cart.item.added", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweptItemsTotal))
}

func TestRedisHookCountsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	m := New("test")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	client.AddHook(m.RedisHook())

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	assert.ErrorIs(t, client.Get(ctx, "missing").Err(), redis.Nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOpsTotal.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisOpsTotal.WithLabelValues("get")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RedisErrorsTotal))
}

func TestRedisHookIgnoresHandshake(t *testing.T) {
	m := New("test")
	hook := m.RedisHook()
	ctx := context.Background()
	rejected := errors.New("ERR unknown subcommand")

	setinfo := redis.NewStatusCmd(ctx, "client", "setinfo", "lib-name", "go-redis")
	pipeline := hook.ProcessPipelineHook(func(context.Context, []redis.Cmder) error { return rejected })
	assert.ErrorIs(t, pipeline(ctx, []redis.Cmder{setinfo}), rejected)

	maint := redis.NewStatusCmd(ctx, "client", "maint_notifications", "on")
	process := hook.ProcessHook(func(context.Context, redis.Cmder) error { return rejected })
	assert.ErrorIs(t, process(ctx, maint), rejected)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RedisErrorsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RedisOpsTotal.WithLabelValues("client")))

	get := redis.NewStringCmd(ctx, "get", "k")
	assert.ErrorIs(t, process(ctx, get), rejected)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisErrorsTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.RecordCartOp("clear", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cart_test_operations_total"))
}
