package domain

import "errors"

var (
	// ErrNotFound 条目或购物车不存在
	ErrNotFound = errors.New("cart item not found")
	// ErrValidation 请求参数非法，在访问后端之前拒绝
	ErrValidation = errors.New("validation failed")
	// ErrBackendUnavailable 键值存储不可用
	ErrBackendUnavailable = errors.New("cart backend unavailable")
	// ErrNotApplicable 操作对当前购物车不适用，例如对空购物车切换阶段
	ErrNotApplicable = errors.New("operation not applicable to cart")
)
