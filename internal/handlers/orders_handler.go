package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/idempotency"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/validation"
)

// OrderService is satisfied by *orders.Manager.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (*orders.Order, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ConfirmPayment(ctx context.Context, orderID string, payment orders.PaymentDetails) (*orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*orders.Order, error)
}

// IdempotencyStore is satisfied by *idempotency.Store.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// OrdersHandler serves the order lifecycle endpoints.
type OrdersHandler struct {
	orders   OrderService
	idem     IdempotencyStore
	validate *validatorv10.Validate
	logger   *zap.Logger
}

func NewOrdersHandler(svc OrderService, idem IdempotencyStore, logger *zap.Logger) *OrdersHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrdersHandler{orders: svc, idem: idem, validate: validation.New(), logger: logger}
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r gin.IRouter, h *OrdersHandler) {
	r.POST("/orders", h.createOrder)
	r.GET("/orders/:id", h.getOrder)
	r.POST("/orders/:id/payment", h.confirmPayment)
	r.PATCH("/orders/:id/status", h.updateStatus)
	r.POST("/orders/:id/cancel", h.cancelOrder)
}

func (h *OrdersHandler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
		return
	}

	created, err := h.idem.CreateIfNotExists(ctx, idempKey)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if !created && !h.resumeAttempt(c, idempKey) {
		return
	}

	in := orders.CreateOrderInput{
		CustomerID:  req.CustomerID,
		VendorID:    req.VendorID,
		ShippingFee: req.ShippingFee,
		Items:       make([]orders.LineItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, orders.LineItem{
			ProductID:     it.ProductID,
			VariantID:     it.VariantID,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			IsDiscounted:  it.IsDiscounted,
			OriginalPrice: it.OriginalPrice,
		})
	}

	order, err := h.orders.CreateOrder(ctx, in)
	if err != nil {
		// let the client retry under the same key
		if mErr := h.idem.MarkFailed(ctx, idempKey, err.Error()); mErr != nil {
			h.logger.Warn("mark idempotency failed", zap.String("idempotency_key", idempKey), zap.Error(mErr))
		}
		writeError(c, h.logger, err)
		return
	}

	body, err := json.Marshal(order)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.idem.MarkDone(ctx, idempKey, order.OrderID, string(body), http.StatusCreated); err != nil {
		// the order exists; a replay will see IN_PROGRESS until the record expires
		h.logger.Warn("mark idempotency done", zap.String("idempotency_key", idempKey), zap.Error(err))
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
	c.Data(http.StatusCreated, "application/json", body)
}

// resumeAttempt handles a key seen before. It writes the response and returns
// false unless the previous attempt failed and this request reclaimed it.
func (h *OrdersHandler) resumeAttempt(c *gin.Context, key string) bool {
	ctx := c.Request.Context()

	rec, err := h.idem.Get(ctx, key)
	if err != nil {
		writeError(c, h.logger, err)
		return false
	}
	if rec == nil {
		// expired between the put and the read
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_expired"})
		return false
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return false
		}
		c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
		return false
	case idempotency.StatusFailed:
		ok, err := h.idem.Reclaim(ctx, key)
		if err != nil {
			writeError(c, h.logger, err)
			return false
		}
		if ok {
			return true
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
		return false
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "order_id": rec.OrderID})
		return false
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
		return false
	}
}

func (h *OrdersHandler) getOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrdersHandler) confirmPayment(c *gin.Context) {
	var req validation.ConfirmPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	order, err := h.orders.ConfirmPayment(c.Request.Context(), c.Param("id"), orders.PaymentDetails{
		TransactionID: req.TransactionID,
		Method:        req.Method,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrdersHandler) updateStatus(c *gin.Context) {
	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	to, ok := orders.ParseStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_status"})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), to)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrdersHandler) cancelOrder(c *gin.Context) {
	var req validation.CancelOrderRequest
	if err := validation.BindOptionalJSON(c, &req, h.validate); err != nil {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
