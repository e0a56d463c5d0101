package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
)

type upsertFiscalConfigRequest struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	TssID       string `json:"tss_id"`
	ClientID    string `json:"client_id"`
	AdminPIN    string `json:"admin_pin"`
	Environment string `json:"environment"`
}

type updateFiscalConfigStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

type fiscalExportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *Server) GetFiscalConfig(c *gin.Context) {
	resp, err := s.fiscalSvc.GetConfig(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": resp})
}

func (s *Server) UpsertFiscalConfig(c *gin.Context) {
	var req upsertFiscalConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.fiscalSvc.UpsertConfig(c.Request.Context(), fiscaldomain.UpsertRequest{
		APIKey:      req.APIKey,
		APISecret:   req.APISecret,
		TssID:       req.TssID,
		ClientID:    req.ClientID,
		AdminPIN:    req.AdminPIN,
		Environment: req.Environment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": resp})
}

func (s *Server) UpdateFiscalConfigStatus(c *gin.Context) {
	var req updateFiscalConfigStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.IsActive == nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "invalid is_active"))
		return
	}

	resp, err := s.fiscalSvc.SetActive(c.Request.Context(), *req.IsActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": resp})
}

func (s *Server) FiscalStatus(c *gin.Context) {
	resp, err := s.fiscalSvc.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": resp})
}

// FiscalExport streams the compliance export as a tar download. Export
// failures surface to the administrator; there is no silent fallback.
func (s *Server) FiscalExport(c *gin.Context) {
	var req fiscalExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	start, err := time.Parse("2006-01-02", strings.TrimSpace(req.StartDate))
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}
	end, err := time.Parse("2006-01-02", strings.TrimSpace(req.EndDate))
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	data, err := s.fiscalSvc.Export(c.Request.Context(), start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="fiscal-export.tar"`)
	c.Data(http.StatusOK, "application/x-tar", data)
}
