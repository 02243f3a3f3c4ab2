package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/cart"
	"github.com/example/giftshop/pkg/catalog"
	"github.com/example/giftshop/pkg/imaging"
	"github.com/example/giftshop/pkg/ordering"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errBadID = errors.New("id must be a positive integer")

// bind decodes the JSON body into obj, answering 400, or 413 when the body
// exceeded the configured limit.
func (g *Gateway) bind(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	return false
}

// writeError maps a service error to its HTTP status. Unrecognised errors
// are logged and reported as 500 without detail.
func (g *Gateway) writeError(c *gin.Context, err error) {
	var (
		validation *ordering.ValidationError
		short      *wallet.InsufficientBalanceError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &short):
		c.JSON(http.StatusConflict, gin.H{
			"error":     wallet.ErrInsufficientBalance.Error(),
			"required":  short.Required.StringFixed(2),
			"balance":   short.Balance.StringFixed(2),
			"shortfall": short.Shortfall.StringFixed(2),
		})
	case errors.Is(err, imaging.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, errBadID),
		errors.Is(err, ordering.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, catalog.ErrInvalidBanner),
		errors.Is(err, imaging.ErrNotDataURL),
		errors.Is(err, imaging.ErrUnsupported),
		errors.Is(err, imaging.ErrEmptyPayload),
		errors.Is(err, wallet.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrUnauthenticated),
		errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, wallet.ErrAccountNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ordering.ErrNotFound),
		errors.Is(err, approval.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, approval.ErrNotPending),
		errors.Is(err, ordering.ErrNotApproved),
		errors.Is(err, wallet.ErrAlreadyCharged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, approval.ErrDispatcherStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		g.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func paramID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadID
	}
	return uint(id), nil
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
