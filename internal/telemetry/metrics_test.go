package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("UNIMSG_TEST_ZONE", "eu-1")

	labels, err := ParseMetricsLabels("service=unimsg,zone=${UNIMSG_TEST_ZONE}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "unimsg", "zone": "eu-1"}, labels)

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = ParseMetricsLabels("novalue")
	assert.Error(t, err)

	_, err = ParseMetricsLabels("1bad=x")
	assert.Error(t, err)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitMetrics(nil)

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/v1/messages/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/messages/:id", "204"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/messages/:id", "204"))
	assert.Equal(t, 2.0, after-before)
}

func TestObserveStoreWithoutInitIsSafe(t *testing.T) {
	saved := StoreLatency
	StoreLatency = nil
	defer func() { StoreLatency = saved }()

	assert.NotPanics(t, func() { ObserveStore("get_message", time.Now()) })
}
