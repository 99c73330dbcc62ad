package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Tier 购物车所处的购买漏斗阶段，决定条目的 TTL
type Tier string

const (
	TierDefault          Tier = "default"
	TierOrderPlaced      Tier = "order_placed"
	TierPaymentCompleted Tier = "payment_completed"
)

const (
	// DefaultTTL 浏览阶段条目保留 24 小时
	DefaultTTL = 24 * time.Hour
	// OrderPlacedTTL 下单后保留 7 天
	OrderPlacedTTL = 7 * 24 * time.Hour
	// NoExpiry 表示永不过期，只作为标记使用，不参与时间运算
	NoExpiry time.Duration = -1
)

// Tiers 按漏斗顺序列出全部阶段
var Tiers = []Tier{TierDefault, TierOrderPlaced, TierPaymentCompleted}

// Rank 漏斗序号：Default < OrderPlaced < PaymentCompleted；未知阶段为 -1
func (t Tier) Rank() int {
	switch t {
	case TierDefault:
		return 0
	case TierOrderPlaced:
		return 1
	case TierPaymentCompleted:
		return 2
	default:
		return -1
	}
}

// Valid 是否为已知阶段
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

func (t Tier) String() string {
	return string(t)
}

// MaxTier 返回漏斗中更靠后的阶段
func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseTier 解析阶段名称，兼容 default / Default / DEFAULT、OrderPlaced / order_placed 以及序号 0|1|2
func ParseTier(s string) (Tier, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	switch normalized {
	case "default", "0":
		return TierDefault, nil
	case "orderplaced", "1":
		return TierOrderPlaced, nil
	case "paymentcompleted", "2":
		return TierPaymentCompleted, nil
	}
	return "", fmt.Errorf("%w: unknown tier %q", ErrValidation, s)
}

// UnmarshalJSON 接受字符串名称或数字序号
func (t *Tier) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		if v != math.Trunc(v) {
			return fmt.Errorf("%w: invalid tier %s", ErrValidation, string(data))
		}
		s = fmt.Sprintf("%d", int(v))
	default:
		return fmt.Errorf("%w: invalid tier %s", ErrValidation, string(data))
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DurationFor 返回阶段对应的 TTL；PaymentCompleted 返回 NoExpiry，未知阶段按 Default 处理
func DurationFor(t Tier) time.Duration {
	switch t {
	case TierOrderPlaced:
		return OrderPlacedTTL
	case TierPaymentCompleted:
		return NoExpiry
	default:
		return DefaultTTL
	}
}

// ExpiryFor 返回绝对过期时间；永不过期时返回 nil
func ExpiryFor(t Tier, now time.Time) *time.Time {
	d := DurationFor(t)
	if d == NoExpiry {
		return nil
	}
	at := now.Add(d)
	return &at
}
