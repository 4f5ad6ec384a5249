package connpolicy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/cosmosclient/pkg/domain"
)

func TestMetrics_RecordBuild(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	assert.Same(t, registry, m.Registry())

	m.RecordBuild(nil, time.Millisecond)
	m.RecordBuild(domain.NewConfigError(domain.KindInvalidHandlerChain, "CustomHandlers[0]", "linked"), time.Millisecond)
	m.RecordBuild(errors.New("plain"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("INVALID_HANDLER_CHAIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("UNKNOWN")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordBuild(nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cosmos_config_builds_total{result="success"} 1`)
	assert.Contains(t, string(body), "cosmos_config_build_duration_seconds_count 1")
}
