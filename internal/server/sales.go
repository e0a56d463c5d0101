package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/fiskal/internal/checkout/domain"
)

func (s *Server) CreateSale(c *gin.Context) {
	var req checkoutdomain.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sale, err := s.checkoutSvc.CreateSale(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sale": sale})
}

func (s *Server) ListSales(c *gin.Context) {
	sales, err := s.checkoutSvc.ListSales(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (s *Server) GetSale(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	sale, err := s.checkoutSvc.GetSale(c.Request.Context(), saleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sale": sale})
}

func (s *Server) CancelSale(c *gin.Context) {
	saleID, ok := saleIDParam(c)
	if !ok {
		return
	}

	sale, err := s.checkoutSvc.CancelSale(c.Request.Context(), saleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sale": sale})
}

func saleIDParam(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	saleID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || saleID <= 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid sale id"))
		return 0, false
	}
	return saleID, true
}
