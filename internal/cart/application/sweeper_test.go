package application

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
)

func TestSweepRemovesOnlyExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := f.now
	f.now = start.Add(-25 * time.Hour)
	stale := f.add(t, "1", "42", 1, "2")
	f.now = start
	fresh := f.add(t, "1", "43", 1, "2")

	expired, err := f.svc.FindExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ItemID, expired[0].ItemID)

	removed, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.False(t, f.mr.Exists(stale.Key()))
	assert.True(t, f.mr.Exists(fresh.Key()))
	members, err := f.mr.Members(domain.IndexKey("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.Key()}, members)

	types := f.pub.types()
	assert.Equal(t, domain.EventItemRemoved, types[len(types)-1])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SweptItemsTotal))
}

func TestSweepNothingToDo(t *testing.T) {
	f := newFixture(t)
	f.add(t, "1", "42", 1, "2")

	removed, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	expired, err := f.svc.FindExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSweeperStartRunsOnTicker(t *testing.T) {
	f := newFixture(t)
	f.now = f.now.Add(-48 * time.Hour)
	stale := f.add(t, "1", "42", 1, "2")
	f.now = f.now.Add(48 * time.Hour)

	sweeper := f.svc.sweeper
	sweeper.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !f.mr.Exists(stale.Key()) }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperStartDisabled(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		f.svc.sweeper.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
