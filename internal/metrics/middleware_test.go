package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func setupMetricsRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(PrometheusMiddleware())
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	router.GET("/ready", func(c *gin.Context) { c.String(http.StatusOK, "ready") })
	router.GET("/api/audit/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func TestPrometheusMiddlewareSkipsProbes(t *testing.T) {
	router := setupMetricsRouter(t)

	t.Run("探针端点不计入请求指标", func(t *testing.T) {
		for _, path := range []string{"/health", "/ready"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, w.Code)
			require.Zero(t, testutil.ToFloat64(
				APIRequestsTotal.WithLabelValues(http.MethodGet, path, "200")))
		}
	})

	t.Run("业务端点按路由模板计数", func(t *testing.T) {
		before := testutil.ToFloat64(
			APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/audit/:id", "200"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit/evt-1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		after := testutil.ToFloat64(
			APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/audit/:id", "200"))
		require.Equal(t, before+1, after, "标签应为路由模板而非实际路径")
	})
}
