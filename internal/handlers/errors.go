package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// writeError maps the domain error taxonomy onto HTTP responses.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var oos *errs.OutOfStockError
	var bad *errs.InvalidTransitionError

	switch {
	case errs.As(err, &oos):
		c.JSON(http.StatusConflict, gin.H{"error": "out_of_stock", "keys": oos.Keys})
	case errs.As(err, &bad):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "from": bad.From, "to": bad.To})
	case errs.Is(err, errs.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": "already_processed", "msg": err.Error()})
	case errs.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "msg": err.Error()})
	case errs.Is(err, errs.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "msg": err.Error()})
	case errs.Is(err, errs.ErrInsufficientPoints):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient_points", "msg": err.Error()})
	case errs.Is(err, errs.ErrLoyaltyDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": "loyalty_disabled"})
	case errs.Is(err, errs.ErrDownstream):
		logger.Error("downstream failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
	default:
		logger.Error("unhandled error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
			zap.Strings("stack", errs.ExtractStackLines(err, 5)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
