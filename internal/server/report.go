package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	reportingdomain "github.com/smallbiznis/comptoir/internal/reporting/domain"
)

type reportQuery struct {
	From        string `form:"from"`
	To          string `form:"to"`
	Granularity string `form:"granularity"`
	TenantID    string `form:"tenant_id"`
}

// periodRequest reads from/to as business-local days unless they carry a
// full timestamp.
func (s *Server) periodRequest(c *gin.Context) (reportingdomain.PeriodRequest, bool) {
	var query reportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return reportingdomain.PeriodRequest{}, false
	}

	loc := s.cfg.Location()
	from, err := parseOptionalTimeIn(query.From, false, loc)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return reportingdomain.PeriodRequest{}, false
	}
	to, err := parseOptionalTimeIn(query.To, true, loc)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return reportingdomain.PeriodRequest{}, false
	}
	tenantID, err := parseOptionalSnowflakeID(query.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_id", "invalid tenant_id"))
		return reportingdomain.PeriodRequest{}, false
	}

	req := reportingdomain.PeriodRequest{
		Granularity: reportingdomain.Granularity(strings.TrimSpace(query.Granularity)),
	}
	if from != nil {
		req.From = *from
	}
	if to != nil {
		req.To = *to
	}
	if tenantID != nil {
		req.TenantID = *tenantID
	}
	return req, true
}

func (s *Server) GetKPIs(c *gin.Context) {
	req, ok := s.periodRequest(c)
	if !ok {
		return
	}
	resp, err := s.reportingSvc.KPIs(c.Request.Context(), principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSalesByProduct(c *gin.Context) {
	req, ok := s.periodRequest(c)
	if !ok {
		return
	}
	resp, err := s.reportingSvc.SalesByProduct(c.Request.Context(), principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRevenueSeries(c *gin.Context) {
	req, ok := s.periodRequest(c)
	if !ok {
		return
	}
	resp, err := s.reportingSvc.RevenueSeries(c.Request.Context(), principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCollectionsByMethod(c *gin.Context) {
	req, ok := s.periodRequest(c)
	if !ok {
		return
	}
	resp, err := s.reportingSvc.CollectionsByMethod(c.Request.Context(), principal(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SearchTransactions(c *gin.Context) {
	var query struct {
		reportQuery
		Status    string `form:"status"`
		ServerID  string `form:"server_id"`
		TableID   string `form:"table_id"`
		ProductID string `form:"product_id"`
		Page      int    `form:"page"`
		PageSize  int    `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	loc := s.cfg.Location()
	from, err := parseOptionalTimeIn(query.From, false, loc)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTimeIn(query.To, true, loc)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	filter := reportingdomain.TransactionFilter{
		From:     from,
		To:       to,
		Status:   strings.TrimSpace(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	ids := []struct {
		field string
		raw   string
		dst   *snowflake.ID
	}{
		{"tenant_id", query.TenantID, &filter.TenantID},
		{"server_id", query.ServerID, &filter.ServerID},
		{"table_id", query.TableID, &filter.TableID},
		{"product_id", query.ProductID, &filter.ProductID},
	}
	for _, id := range ids {
		parsed, err := parseOptionalSnowflakeID(id.raw)
		if err != nil {
			AbortWithError(c, newValidationError(id.field, "invalid_id", "invalid "+id.field))
			return
		}
		if parsed != nil {
			*id.dst = *parsed
		}
	}

	resp, err := s.reportingSvc.SearchTransactions(c.Request.Context(), principal(c), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
