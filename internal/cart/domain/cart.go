package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	keyPrefix  = "cart:user:"
	itemMarker = ":item:"
)

// CartItem 购物车条目，归属于唯一用户的购物车
type CartItem struct {
	ItemID             string          `json:"itemId"`
	UserID             string          `json:"userId"`
	ProductID          string          `json:"productId"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	ProductName        string          `json:"productName,omitempty"`
	ProductDescription string          `json:"productDescription,omitempty"`
	ImageURL           string          `json:"imageUrl,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	// ExpiresAt 为 nil 表示永不过期
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Tier      Tier       `json:"tier"`
}

// NewItem 新增条目的输入
type NewItem struct {
	UserID             string
	ProductID          string
	Quantity           int
	UnitPrice          decimal.Decimal
	ProductName        string
	ProductDescription string
	ImageURL           string
}

// Validate 校验新增条目参数
func (n NewItem) Validate() error {
	if err := ValidateUserID(n.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(n.ProductID) == "" {
		return fmt.Errorf("%w: productId is required", ErrValidation)
	}
	if err := ValidateQuantity(n.Quantity); err != nil {
		return err
	}
	if n.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	return nil
}

// ValidateUserID 用户 ID 不能为空，且不能包含键分隔符
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if strings.ContainsAny(userID, ":*?[]") {
		return fmt.Errorf("%w: userId contains reserved characters", ErrValidation)
	}
	return nil
}

// ValidateQuantity 数量必须为正
func ValidateQuantity(q int) error {
	if q <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}
	return nil
}

// NewCartItem 创建 Default 阶段的新条目
func NewCartItem(n NewItem, now time.Time) *CartItem {
	item := &CartItem{
		ItemID:             uuid.NewString(),
		UserID:             n.UserID,
		ProductID:          n.ProductID,
		Quantity:           n.Quantity,
		UnitPrice:          n.UnitPrice,
		ProductName:        n.ProductName,
		ProductDescription: n.ProductDescription,
		ImageURL:           n.ImageURL,
		CreatedAt:          now,
		Tier:               TierDefault,
	}
	item.Touch(now)
	return item
}

// Touch 刷新 UpdatedAt，并按当前阶段重新计算 ExpiresAt
func (i *CartItem) Touch(now time.Time) {
	i.UpdatedAt = now
	i.ExpiresAt = ExpiryFor(i.Tier, now)
}

// SetTier 切换阶段并刷新过期时间
func (i *CartItem) SetTier(t Tier, now time.Time) {
	i.Tier = t
	i.Touch(now)
}

// Expired 过期时间早于或等于 now 即视为过期
func (i *CartItem) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// TTL 当前阶段对应的键过期时长
func (i *CartItem) TTL() time.Duration {
	return DurationFor(i.Tier)
}

// Subtotal 单价 × 数量
func (i *CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Key 条目在键值存储中的键
func (i *CartItem) Key() string {
	return ItemKey(i.UserID, i.ItemID)
}

// ItemKey cart:user:{userID}:item:{itemID}
func ItemKey(userID, itemID string) string {
	return keyPrefix + userID + itemMarker + itemID
}

// IndexKey cart:user:{userID}
func IndexKey(userID string) string {
	return keyPrefix + userID
}

// ItemKeyPattern 匹配全部条目键的 SCAN 模式
func ItemKeyPattern() string {
	return keyPrefix + "*" + itemMarker + "*"
}

// KeyPattern 匹配全部购物车相关键（索引与条目）的 SCAN 模式
func KeyPattern() string {
	return keyPrefix + "*"
}

// IsItemKey 是否为条目键（否则为索引键）
func IsItemKey(key string) bool {
	return strings.HasPrefix(key, keyPrefix) && strings.Contains(key, itemMarker)
}

// ParseItemKey 从条目键解析出用户 ID 与条目 ID
func ParseItemKey(key string) (userID, itemID string, ok bool) {
	rest, found := strings.CutPrefix(key, keyPrefix)
	if !found {
		return "", "", false
	}
	userID, itemID, found = strings.Cut(rest, itemMarker)
	if !found || userID == "" || itemID == "" {
		return "", "", false
	}
	return userID, itemID, true
}

// Cart 只读的聚合视图，每次读取时重新构建，不单独持久化
type Cart struct {
	UserID      string          `json:"userId"`
	Items       []*CartItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TotalItems  int             `json:"totalItems"`
	Tier        Tier            `json:"tier"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// NewCart 由未过期条目构建购物车视图并计算汇总
func NewCart(userID string, items []*CartItem, now time.Time) *Cart {
	c := &Cart{
		UserID:      userID,
		Items:       make([]*CartItem, 0, len(items)),
		TotalAmount: decimal.Zero,
		Tier:        TierDefault,
		LastUpdated: now,
	}
	for _, item := range items {
		c.Items = append(c.Items, item)
		c.TotalAmount = c.TotalAmount.Add(item.Subtotal())
		c.TotalItems += item.Quantity
		c.Tier = MaxTier(c.Tier, item.Tier)
	}
	return c
}

// EmptyCart 空购物车
func EmptyCart(userID string, now time.Time) *Cart {
	return NewCart(userID, nil, now)
}

// IsEmpty 是否没有条目
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindByProduct 按商品查找条目
func (c *Cart) FindByProduct(productID string) *CartItem {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item
		}
	}
	return nil
}

// Statistics 全局购物车统计
type Statistics struct {
	TotalCarts    int          `json:"totalCarts"`
	TotalItems    int          `json:"totalItems"`
	PerTierCounts map[Tier]int `json:"perTierCounts"`
}

// NewStatistics 返回各阶段计数归零的统计
func NewStatistics() *Statistics {
	s := &Statistics{PerTierCounts: make(map[Tier]int, len(Tiers))}
	for _, t := range Tiers {
		s.PerTierCounts[t] = 0
	}
	return s
}
