package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tieredcart/internal/cart/application"
	"github.com/wyfcoding/tieredcart/internal/cart/domain"
	"github.com/wyfcoding/tieredcart/pkg/logger"
	"github.com/wyfcoding/tieredcart/pkg/middleware"
	"github.com/wyfcoding/tieredcart/pkg/ratelimit"
	"github.com/wyfcoding/tieredcart/pkg/response"
)

// CartHandler HTTP 处理器
// 负责把购物车 REST 请求映射到应用服务
type CartHandler struct {
	app     *application.CartApplicationService
	limiter ratelimit.RateLimiter
	limit   ratelimit.Limit
}

// NewCartHandler 创建 HTTP 处理器实例；limiter 为 nil 时全量扫描接口不限流
func NewCartHandler(app *application.CartApplicationService, limiter ratelimit.RateLimiter, limit ratelimit.Limit) *CartHandler {
	return &CartHandler{app: app, limiter: limiter, limit: limit}
}

// RegisterRoutes 注册路由
func (h *CartHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/cart")
	{
		scan := []gin.HandlerFunc{}
		if h.limiter != nil {
			scan = append(scan, middleware.RateLimit(h.limiter, "cart-scan", h.limit))
		}

		api.GET("/expired", append(scan, h.FindExpired)...)
		api.DELETE("/expired", append(scan, h.SweepExpired)...)
		api.POST("/expired/sweep", append(scan, h.SweepExpired)...)
		api.GET("/statistics", append(scan, h.Statistics)...)

		api.POST("/add", h.AddItem)
		api.GET("/:userId", h.GetCart)
		api.DELETE("/:userId", h.ClearCart)
		api.PUT("/:userId/items/:itemId", h.UpdateItem)
		api.DELETE("/:userId/items/:itemId", h.RemoveItem)
		api.POST("/:userId/tier", h.SetTier)
		api.POST("/:userId/ttl", h.SetTier)
	}
}

// flexID 兼容数字与字符串形式的 ID
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}

// AddItemRequest 添加商品请求，price 与 unitPrice 二选一
type AddItemRequest struct {
	UserID             flexID           `json:"userId"`
	ProductID          flexID           `json:"productId"`
	Quantity           int              `json:"quantity"`
	UnitPrice          *decimal.Decimal `json:"unitPrice"`
	Price              *decimal.Decimal `json:"price"`
	ProductName        string           `json:"productName"`
	ProductDescription string           `json:"productDescription"`
	ImageURL           string           `json:"imageUrl"`
}

func (r AddItemRequest) command() application.AddItemCommand {
	price := decimal.Zero
	switch {
	case r.UnitPrice != nil:
		price = *r.UnitPrice
	case r.Price != nil:
		price = *r.Price
	}
	return application.AddItemCommand{
		UserID:             strings.TrimSpace(string(r.UserID)),
		ProductID:          strings.TrimSpace(string(r.ProductID)),
		Quantity:           r.Quantity,
		UnitPrice:          price,
		ProductName:        r.ProductName,
		ProductDescription: r.ProductDescription,
		ImageURL:           r.ImageURL,
	}
}

// UpdateItemRequest 修改数量请求
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// SetTierRequest 切换阶段请求，兼容 ttlType 字段名
type SetTierRequest struct {
	Tier    *domain.Tier `json:"tier"`
	TTLType *domain.Tier `json:"ttlType"`
}

func (r SetTierRequest) tier() (domain.Tier, bool) {
	switch {
	case r.Tier != nil:
		return *r.Tier, true
	case r.TTLType != nil:
		return *r.TTLType, true
	}
	return "", false
}

// GetCart 获取购物车，后端异常时返回空购物车
func (h *CartHandler) GetCart(c *gin.Context) {
	userID := c.Param("userId")
	if err := domain.ValidateUserID(userID); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	response.Success(c, h.app.GetCart(c.Request.Context(), userID))
}

// AddItem 添加商品
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.app.AddItem(c.Request.Context(), req.command())
	if err != nil {
		h.fail(c, "Failed to add cart item", err)
		return
	}
	c.Header("Location", "/api/v1/cart/"+item.UserID)
	response.Created(c, item)
}

// UpdateItem 修改条目数量
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.app.UpdateItem(c.Request.Context(), c.Param("userId"), c.Param("itemId"), req.Quantity)
	if err != nil {
		h.fail(c, "Failed to update cart item", err)
		return
	}
	response.Success(c, item)
}

// RemoveItem 移除条目
func (h *CartHandler) RemoveItem(c *gin.Context) {
	removed, err := h.app.RemoveItem(c.Request.Context(), c.Param("userId"), c.Param("itemId"))
	if err != nil {
		h.fail(c, "Failed to remove cart item", err)
		return
	}
	if !removed {
		response.ErrorWithStatus(c, http.StatusNotFound, domain.ErrNotFound.Error())
		return
	}
	response.NoContent(c)
}

// ClearCart 清空购物车，空购物车同样返回 204
func (h *CartHandler) ClearCart(c *gin.Context) {
	if _, err := h.app.ClearCart(c.Request.Context(), c.Param("userId")); err != nil {
		h.fail(c, "Failed to clear cart", err)
		return
	}
	response.NoContent(c)
}

// SetTier 切换阶段
func (h *CartHandler) SetTier(c *gin.Context) {
	var req SetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	tier, ok := req.tier()
	if !ok {
		response.ErrorWithStatus(c, http.StatusBadRequest, "tier is required")
		return
	}

	userID := c.Param("userId")
	applied, err := h.app.SetTier(c.Request.Context(), userID, tier)
	if err != nil {
		h.fail(c, "Failed to set cart tier", err)
		return
	}
	if !applied {
		response.ErrorWithStatus(c, http.StatusNotFound, domain.ErrNotApplicable.Error()+": cart is empty")
		return
	}
	response.Success(c, gin.H{"userId": userID, "tier": tier})
}

// FindExpired 列出已过期条目（诊断用）
func (h *CartHandler) FindExpired(c *gin.Context) {
	items, err := h.app.FindExpired(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list expired cart items", err)
		return
	}
	response.Success(c, items)
}

// SweepExpired 删除已过期条目
func (h *CartHandler) SweepExpired(c *gin.Context) {
	removed, err := h.app.SweepExpired(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to sweep expired cart items", err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

// Statistics 全局统计
func (h *CartHandler) Statistics(c *gin.Context) {
	stats, err := h.app.Statistics(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to get cart statistics", err)
		return
	}
	response.Success(c, stats)
}

func (h *CartHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
	}
	response.ErrorWithStatus(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
