package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name      string
		routePath string
		rawPath   string
		expected  string
	}{
		{"route template", "/history/:currency", "/history/USD", "/history/:currency"},
		{"unmatched route", "", "/history/USD/extra", "unmatched"},
		{"empty", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.routePath, tt.rawPath))
		})
	}
}

func TestGinPrometheusMiddleware_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinPrometheusMiddleware("exchange-rate-service"))
	router.GET("/current", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	router.GET("/health/liveness", func(c *gin.Context) { c.Status(http.StatusOK) })

	for path, code := range map[string]int{
		"/current":         http.StatusTeapot,
		"/health/liveness": http.StatusOK,
		"/missing":         http.StatusNotFound,
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, w.Code, path)
	}
}

func TestUpstreamTimer_Done(t *testing.T) {
	timer := NewUpstreamTimer("fxratesapi")

	assert.NotPanics(t, func() { timer.Done("success") })
	assert.NotPanics(t, func() { RecordRateRefresh("USD", "updated") })
}
