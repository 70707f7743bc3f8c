package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	stockdomain "github.com/smallbiznis/comptoir/internal/stock/domain"
)

type setThresholdRequest struct {
	AlertThreshold *int64 `json:"alert_threshold"`
}

func (s *Server) ListStockLevels(c *gin.Context) {
	resp, err := s.stockSvc.ListLevels(c.Request.Context(), principal(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStockAlerts(c *gin.Context) {
	resp, err := s.stockSvc.Alerts(c.Request.Context(), principal(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStockLevel(c *gin.Context) {
	productID, err := pathID(c, "productId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.stockSvc.GetLevel(c.Request.Context(), principal(c), productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStockMovements(c *gin.Context) {
	productID, err := pathID(c, "productId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		Direction string `form:"direction"`
		From      string `form:"from"`
		To        string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := stockdomain.MovementFilter{Direction: stockdomain.Direction(strings.TrimSpace(query.Direction))}
	if filter.From, err = parseOptionalTime(query.From, false); err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	if filter.To, err = parseOptionalTime(query.To, true); err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.stockSvc.ListMovements(c.Request.Context(), principal(c), productID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetStockThreshold(c *gin.Context) {
	productID, err := pathID(c, "productId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.AlertThreshold == nil {
		AbortWithError(c, newValidationError("alert_threshold", "required", "alert_threshold is required"))
		return
	}

	resp, err := s.stockSvc.SetAlertThreshold(c.Request.Context(), principal(c), productID, *req.AlertThreshold)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReconcileStock(c *gin.Context) {
	productID, err := pathID(c, "productId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.stockSvc.Reconcile(c.Request.Context(), principal(c), productID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
