package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/niksmo/storefront/internal/adapter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.NewWithRegistry(reg, reg)

	o.OnCheckout("completed", 20*time.Millisecond)
	o.OnCheckout("completed", 30*time.Millisecond)
	o.OnCheckout("race_lost", time.Millisecond)
	o.OnStockRaceLost()
	o.OnStockRaceLost()
	o.OnSubstitutes(5)

	n, err := testutil.GatherAndCount(reg,
		"storefront_checkouts_total",
		"storefront_checkout_stock_race_lost_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	srv := httptest.NewServer(o.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `storefront_checkouts_total{outcome="completed"} 2`)
	assert.Contains(t, string(body), `storefront_checkout_stock_race_lost_total 2`)
	assert.Contains(t, string(body), `storefront_substitutes_returned_count 1`)
}

func TestNewRegistersRuntimeCollectors(t *testing.T) {
	o := metrics.New()
	srv := httptest.NewServer(o.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
