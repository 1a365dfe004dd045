package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesRegisteredCounters(t *testing.T) {
	HitsDecoded.Add(5)
	ClustersFormed.WithLabelValues("age-based").Add(2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tpx3pipe_hits_decoded_total")
	assert.Contains(t, body, "tpx3pipe_clusters_formed_total")
}
