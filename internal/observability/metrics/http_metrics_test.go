package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetricsWith(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/packs/:name", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/packs/left-pad", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	var out dto.Metric
	require.NoError(t, m.requests.WithLabelValues(http.MethodGet, "/api/packs/:name", "200").Write(&out))
	require.Equal(t, float64(2), out.GetCounter().GetValue())
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewHTTPMetricsWith(reg)
	require.NoError(t, err)
	_, err = NewHTTPMetricsWith(reg)
	require.NoError(t, err)
}
