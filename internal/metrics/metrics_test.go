package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMint(t *testing.T) {
	before := testutil.ToFloat64(mints.WithLabelValues("stablecoin", "success"))
	RecordMint("stablecoin", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(mints.WithLabelValues("stablecoin", "success")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordPostMintFailure("collection")
	RecordMintUSD("native", 12.5)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `minter_postmint_step_failures_total{step="collection"}`)
	assert.Contains(t, string(body), `minter_mint_usd_total{payment_method="native"}`)
}
