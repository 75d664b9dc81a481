package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:     srv.URL,
			AccessToken: "token",
			PageSize:    2,
			Timeout:     2 * time.Second,
		},
	}, zap.NewNop())
}

func TestFetchCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-Shopify-Access-Token"))
		switch r.URL.Path {
		case "/customers/777.json":
			_, _ = w.Write([]byte(`{"customer":{"id":777,"first_name":"Rina","tags":"agent"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":"Not Found"}`))
		}
	})

	remote, err := client.FetchCustomer(context.Background(), "777")
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.Equal(t, "777", remote.ExternalID)
	assert.Equal(t, []string{"agent"}, remote.Tags)

	missing, err := client.FetchCustomer(context.Background(), "404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListOrdersPaginatesBySinceID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders.json", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		switch r.URL.Query().Get("since_id") {
		case "":
			_, _ = w.Write([]byte(`{"orders":[{"id":1},{"id":2}]}`))
		case "2":
			_, _ = w.Write([]byte(`{"orders":[{"id":3}]}`))
		default:
			_, _ = w.Write([]byte(`{"orders":[]}`))
		}
	})

	page, err := client.ListOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "2", page.LastID)

	page, err = client.ListOrders(context.Background(), page.LastID)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "3", page.LastID)

	page, err = client.ListOrders(context.Background(), page.LastID)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.LastID)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"products":[{"id":9,"product_type":"BYD"}]}`))
	})

	page, err := client.ListProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "BYD", page.Items[0].ProductType)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":"Invalid API key"}`))
	})

	_, err := client.ListCustomers(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var upstreamErr *Error
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusUnauthorized, upstreamErr.Status)
	assert.Contains(t, upstreamErr.Message, "Invalid API key")
	assert.Equal(t, metrics.JobReasonUpstream, metrics.ClassifyJobReason(err))
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient(config.Config{}, zap.NewNop())
	_, err := client.ListOrders(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
