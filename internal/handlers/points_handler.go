package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/loyalty"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/validation"
)

// PointsService is satisfied by *loyalty.Service.
type PointsService interface {
	Status(ctx context.Context) (loyalty.SettingsStatus, error)
	CalculateOrderPoints(ctx context.Context, in loyalty.OrderInput) (*loyalty.Calculation, error)
	Summary(ctx context.Context, customerID string, limit int) (*loyalty.Summary, error)
	Redeem(ctx context.Context, req loyalty.RedeemRequest) (*loyalty.PointTransaction, error)
	Adjust(ctx context.Context, customerID string, points int64, description string) (*loyalty.PointTransaction, error)
}

const defaultHistoryLimit = 20

type PointsHandler struct {
	points   PointsService
	validate *validatorv10.Validate
	logger   *zap.Logger
}

func NewPointsHandler(svc PointsService, logger *zap.Logger) *PointsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointsHandler{points: svc, validate: validation.New(), logger: logger}
}

func RegisterPointsRoutes(r gin.IRouter, h *PointsHandler) {
	r.GET("/points/settings", h.settings)
	r.POST("/points/calculate", h.calculate)
	r.GET("/customers/:id/points", h.summary)
	r.POST("/customers/:id/points/redeem", h.redeem)
	r.POST("/customers/:id/points/adjust", h.adjust)
}

func (h *PointsHandler) settings(c *gin.Context) {
	st, err := h.points.Status(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *PointsHandler) calculate(c *gin.Context) {
	var req validation.CalculatePointsRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	in := loyalty.OrderInput{
		CustomerID:        req.CustomerID,
		MerchandiseAmount: req.MerchandiseAmount,
		ShippingAmount:    req.ShippingAmount,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, loyalty.Item{
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			IsDiscounted: it.Discounted(),
		})
	}

	calc, err := h.points.CalculateOrderPoints(c.Request.Context(), in)
	if errs.Is(err, errs.ErrLoyaltyDisabled) {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "total_points": 0})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

func (h *PointsHandler) summary(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = n
	}

	sum, err := h.points.Summary(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *PointsHandler) redeem(c *gin.Context) {
	var req validation.RedeemPointsRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	tx, err := h.points.Redeem(c.Request.Context(), loyalty.RedeemRequest{
		CustomerID:  c.Param("id"),
		Points:      req.Points,
		OrderID:     req.OrderID,
		OrderAmount: req.OrderAmount,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *PointsHandler) adjust(c *gin.Context) {
	var req validation.AdjustPointsRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	tx, err := h.points.Adjust(c.Request.Context(), c.Param("id"), req.Points, req.Description)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}
