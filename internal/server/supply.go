package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	supplydomain "github.com/smallbiznis/comptoir/internal/supply/domain"
)

type createSupplyRequest struct {
	Supplier string                   `json:"supplier"`
	Date     string                   `json:"date"`
	Items    []supplydomain.ItemInput `json:"items"`
	Number   string                   `json:"number"`
	Note     *string                  `json:"note"`
}

type updateSupplyRequest struct {
	Supplier *string `json:"supplier"`
	Date     *string `json:"date"`
	Note     *string `json:"note"`
}

func (s *Server) CreateSupply(c *gin.Context) {
	var req createSupplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	date, err := parseOptionalTime(req.Date, false)
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
		return
	}
	in := supplydomain.CreateRequest{
		Supplier: strings.TrimSpace(req.Supplier),
		Items:    req.Items,
		Number:   strings.TrimSpace(req.Number),
		Note:     req.Note,
	}
	if date != nil {
		in.Date = *date
	}

	resp, err := s.supplySvc.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSuppliesByPeriod(c *gin.Context) {
	var query struct {
		Start string `form:"start"`
		End   string `form:"end"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	start, err := parseOptionalTime(query.Start, false)
	if err != nil || start == nil {
		AbortWithError(c, newValidationError("start", "invalid_start", "start must be a date"))
		return
	}
	end, err := parseOptionalTime(query.End, false)
	if err != nil || end == nil {
		AbortWithError(c, newValidationError("end", "invalid_end", "end must be a date"))
		return
	}

	resp, err := s.supplySvc.ListByPeriod(c.Request.Context(), principal(c), *start, *end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSupplyByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.supplySvc.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSupply(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateSupplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	in := supplydomain.UpdateRequest{Supplier: req.Supplier, Note: req.Note}
	if req.Date != nil {
		date, err := parseOptionalTime(*req.Date, false)
		if err != nil || date == nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
			return
		}
		in.Date = date
	}

	resp, err := s.supplySvc.Update(c.Request.Context(), principal(c), id, in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSupply(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.supplySvc.Delete(c.Request.Context(), principal(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
