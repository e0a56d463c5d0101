package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fiskal/internal/config"
	"github.com/smallbiznis/fiskal/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkoutdomain "github.com/smallbiznis/fiskal/internal/checkout/domain"
	fiscaldomain "github.com/smallbiznis/fiskal/internal/fiscal/domain"
)

func testRouter(cfg config.Config, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/probe", OrgMiddleware(cfg), handler)
	return r
}

func TestOrgMiddlewareReadsHeader(t *testing.T) {
	var gotOrg int64
	r := testRouter(config.Config{}, func(c *gin.Context) {
		orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
		require.True(t, ok)
		gotOrg = int64(orgID)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Org-ID", "42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(42), gotOrg)
}

func TestOrgMiddlewareFallsBackToDefaultOrg(t *testing.T) {
	var gotOrg int64
	r := testRouter(config.Config{DefaultOrgID: 7}, func(c *gin.Context) {
		orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())
		gotOrg = int64(orgID)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), gotOrg)
}

func TestOrgMiddlewareRejectsMalformedHeader(t *testing.T) {
	r := testRouter(config.Config{}, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Org-ID", "not-a-number")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrgMiddlewareUnauthorizedWithoutOrg(t *testing.T) {
	r := testRouter(config.Config{}, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", checkoutdomain.ErrInvalidAmount, http.StatusBadRequest},
		{"conflict", checkoutdomain.ErrAlreadyCancelled, http.StatusConflict},
		{"not found", checkoutdomain.ErrNotFound, http.StatusNotFound},
		{"fiscal disabled", fiscaldomain.ErrNotEnabled, http.StatusBadGateway},
		{"export failure", fiscaldomain.ErrExportFailed, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := testRouter(config.Config{DefaultOrgID: 7}, func(c *gin.Context) {
				AbortWithError(c, tc.err)
			})

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}
