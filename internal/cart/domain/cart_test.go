package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestItem(t *testing.T, userID, productID string, qty int, price string) *CartItem {
	t.Helper()
	return NewCartItem(NewItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}, testNow)
}

func TestNewItemValidate(t *testing.T) {
	valid := NewItem{UserID: "1", ProductID: "42", Quantity: 1, UnitPrice: decimal.RequireFromString("9.99")}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(n *NewItem)
	}{
		{name: "empty user", mutate: func(n *NewItem) { n.UserID = " " }},
		{name: "user with separator", mutate: func(n *NewItem) { n.UserID = "a:b" }},
		{name: "user with glob", mutate: func(n *NewItem) { n.UserID = "a*" }},
		{name: "empty product", mutate: func(n *NewItem) { n.ProductID = "" }},
		{name: "zero quantity", mutate: func(n *NewItem) { n.Quantity = 0 }},
		{name: "negative quantity", mutate: func(n *NewItem) { n.Quantity = -3 }},
		{name: "negative price", mutate: func(n *NewItem) { n.UnitPrice = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			assert.ErrorIs(t, n.Validate(), ErrValidation)
		})
	}

	free := valid
	free.UnitPrice = decimal.Zero
	assert.NoError(t, free.Validate())
}

func TestNewCartItem(t *testing.T) {
	item := newTestItem(t, "1", "42", 2, "9.99")

	assert.NotEmpty(t, item.ItemID)
	assert.Equal(t, TierDefault, item.Tier)
	assert.Equal(t, testNow, item.CreatedAt)
	assert.Equal(t, testNow, item.UpdatedAt)
	require.NotNil(t, item.ExpiresAt)
	assert.Equal(t, testNow.Add(DefaultTTL), *item.ExpiresAt)
	assert.Equal(t, "cart:user:1:item:"+item.ItemID, item.Key())
}

func TestSetTierRecomputesExpiry(t *testing.T) {
	item := newTestItem(t, "1", "42", 1, "1")
	later := testNow.Add(time.Hour)

	item.SetTier(TierOrderPlaced, later)
	require.NotNil(t, item.ExpiresAt)
	assert.Equal(t, later.Add(OrderPlacedTTL), *item.ExpiresAt)
	assert.Equal(t, later, item.UpdatedAt)
	assert.Equal(t, testNow, item.CreatedAt)

	item.SetTier(TierPaymentCompleted, later)
	assert.Nil(t, item.ExpiresAt)
	assert.False(t, item.Expired(later.Add(100*365*24*time.Hour)))
}

func TestExpiredBoundary(t *testing.T) {
	item := newTestItem(t, "1", "42", 1, "1")
	at := *item.ExpiresAt

	assert.True(t, item.Expired(at), "expiry equal to now is expired")
	assert.False(t, item.Expired(at.Add(-time.Microsecond)))
	assert.True(t, item.Expired(at.Add(time.Second)))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "cart:user:7", IndexKey("7"))
	key := ItemKey("7", "abc")
	assert.True(t, IsItemKey(key))
	assert.False(t, IsItemKey(IndexKey("7")))

	userID, itemID, ok := ParseItemKey(key)
	require.True(t, ok)
	assert.Equal(t, "7", userID)
	assert.Equal(t, "abc", itemID)

	for _, bad := range []string{"cart:user:7", "order:7:item:x", "cart:user::item:x", "cart:user:7:item:"} {
		_, _, ok := ParseItemKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestNewCartTotalsAndTier(t *testing.T) {
	a := newTestItem(t, "1", "42", 2, "9.99")
	b := newTestItem(t, "1", "43", 3, "0.10")
	b.SetTier(TierOrderPlaced, testNow)

	c := NewCart("1", []*CartItem{a, b}, testNow)
	assert.Equal(t, "20.28", c.TotalAmount.StringFixed(2))
	assert.Equal(t, 5, c.TotalItems)
	assert.Equal(t, TierOrderPlaced, c.Tier)
	assert.Same(t, b, c.FindByProduct("43"))
	assert.Nil(t, c.FindByProduct("99"))
}

func TestEmptyCart(t *testing.T) {
	c := EmptyCart("1", testNow)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, TierDefault, c.Tier)
	assert.True(t, c.TotalAmount.IsZero())
	assert.NotNil(t, c.Items)
}

func TestNewStatisticsHasEveryTier(t *testing.T) {
	s := NewStatistics()
	assert.Len(t, s.PerTierCounts, len(Tiers))
	for _, tier := range Tiers {
		assert.Equal(t, 0, s.PerTierCounts[tier])
	}
}
