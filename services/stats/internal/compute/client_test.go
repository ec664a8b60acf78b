package compute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
	"github.com/humanimpact/hii-stats/services/stats/internal/testutil"
)

func newTestClient(t *testing.T, url string, attempts int) (*Client, *[]time.Duration) {
	t.Helper()
	c := New(Config{BaseURL: url, MaxAttempts: attempts, Backoff: 100 * time.Millisecond, MaxBackoff: 250 * time.Millisecond, BreakerFailures: 100}, nil)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

func fixture(t *testing.T) (*raster.Slice, *raster.AreaGrid, models.Region) {
	t.Helper()
	g := testutil.DegreeGrid(0, 2, 2, 2)
	return testutil.ConstantSlice(t, testutil.Date(t, "2024-06-01"), g, 1), testutil.MustArea(t, g), testutil.Square("bra", 0, 0, 1, 1)
}

func TestClientReduce(t *testing.T) {
	var got reduceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reduce", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"raster_mean": 1234.5, "raster_min": 10, "raster_max": null, "raster_stdDev": 3, "raster_sum": 99, "area_sum": 9}`))
	}))
	defer srv.Close()

	client, sleeps := newTestClient(t, srv.URL+"/", 3)
	slice, area, region := fixture(t)
	res, err := client.Reduce(context.Background(), slice, area, region)
	require.NoError(t, err)

	assert.Equal(t, 1234.5, *res.RasterMean)
	assert.Nil(t, res.RasterMax)
	assert.Equal(t, 9.0, *res.AreaSum)
	assert.Empty(t, *sleeps)

	assert.Equal(t, "bra", got.RegionID)
	assert.Equal(t, "2024-06-01", got.Date)
	assert.Equal(t, raster.CRSGeographic, got.CRS)
	assert.InDelta(t, 111319.49, got.Scale, 0.01)
	assert.Contains(t, string(got.Geometry), `"Polygon"`)
	assert.Equal(t, []string{"mean", "min", "max", "stdDev", "sum"}, got.Reducers)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"raster_mean": 5}`))
		}
	}))
	defer srv.Close()

	client, sleeps := newTestClient(t, srv.URL, 5)
	slice, area, region := fixture(t)
	res, err := client.Reduce(context.Background(), slice, area, region)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *res.RasterMean)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, sleeps := newTestClient(t, srv.URL, 4)
	slice, area, region := fixture(t)
	_, err := client.Reduce(context.Background(), slice, area, region)
	require.Error(t, err)

	assert.True(t, apperr.IsRemoteCompute(err))
	assert.False(t, apperr.IsRetryable(err))
	assert.True(t, apperr.IsRegionLocal(err))
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}, *sleeps)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		malformed bool
	}{
		{name: "unprocessable geometry", status: http.StatusUnprocessableEntity, malformed: true},
		{name: "bad request", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client, _ := newTestClient(t, srv.URL, 4)
			slice, area, region := fixture(t)
			_, err := client.Reduce(context.Background(), slice, area, region)
			require.Error(t, err)
			assert.Equal(t, int32(1), calls.Load())
			assert.Equal(t, tt.malformed, apperr.IsMalformedGeometry(err))
			assert.True(t, apperr.IsRegionLocal(err))
		})
	}
}

func TestClientMissingGeometry(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:1", 1)
	slice, area, _ := fixture(t)
	_, err := client.Reduce(context.Background(), slice, area, models.Region{ID: "x"})
	assert.True(t, apperr.IsMalformedGeometry(err))
}

func TestClientStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, 10)
	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	slice, area, region := fixture(t)
	_, err := client.Reduce(ctx, slice, area, region)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperr.IsRegionLocal(err))
}

func TestClientCircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, MaxAttempts: 1, BreakerFailures: 2, BreakerCooldown: time.Hour}, nil)
	slice, area, region := fixture(t)
	for i := 0; i < 5; i++ {
		_, err := client.Reduce(context.Background(), slice, area, region)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, stateOpen, client.breaker.current())
}
