// Package compute is the client of a remote zonal reduction backend.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/humanimpact/hii-stats/internal/metrics"
	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/raster"
)

// Config holds remote backend settings.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	MaxPixels   float64
	// BreakerFailures consecutive failures open the circuit for
	// BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Client implements zonal.Reducer against a remote backend.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New constructs a client. Zero values fall back to defaults.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		breaker: newBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		log:     log,
		sleep:   sleepContext,
	}
}

type reduceRequest struct {
	SliceID   string          `json:"slice_id"`
	Date      string          `json:"date"`
	CRS       string          `json:"crs"`
	Scale     float64         `json:"scale"`
	MaxPixels float64         `json:"max_pixels"`
	RegionID  string          `json:"region_id"`
	Geometry  json.RawMessage `json:"geometry"`
	Reducers  []string        `json:"reducers"`
	Bands     []string        `json:"bands"`
}

// Reduce implements zonal.Reducer. The area layer is implied by the slice
// grid and recomputed by the backend.
func (c *Client) Reduce(ctx context.Context, slice *raster.Slice, area *raster.AreaGrid, region models.Region) (models.ReductionResult, error) {
	if region.Geometry == nil {
		return models.ReductionResult{}, apperr.MalformedGeometry(region.ID, errors.New("geometry is missing"))
	}
	geom, err := geojson.NewGeometry(region.Geometry).MarshalJSON()
	if err != nil {
		return models.ReductionResult{}, apperr.MalformedGeometry(region.ID, err)
	}

	body, err := json.Marshal(reduceRequest{
		SliceID:   slice.ID,
		Date:      slice.Date.Format(raster.DateLayout),
		CRS:       slice.Grid.CRS,
		Scale:     slice.Grid.NominalScale(),
		MaxPixels: c.cfg.MaxPixels,
		RegionID:  region.ID,
		Geometry:  geom,
		Reducers:  []string{"mean", "min", "max", "stdDev", "sum"},
		Bands:     []string{"raster", "area"},
	})
	if err != nil {
		return models.ReductionResult{}, fmt.Errorf("marshal reduce request: %w", err)
	}

	backoff := c.cfg.Backoff
	for attempt := 1; ; attempt++ {
		res, err := c.attempt(ctx, region.ID, body)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return models.ReductionResult{}, ctx.Err()
		}
		if !apperr.IsRetryable(err) {
			return models.ReductionResult{}, err
		}
		if attempt >= c.cfg.MaxAttempts {
			return models.ReductionResult{}, apperr.RemoteCompute(
				fmt.Sprintf("region %s: giving up after %d attempts", region.ID, attempt), false, err)
		}

		metrics.RecordRetry()
		c.log.Warn("remote reduction failed, retrying",
			zap.String("region_id", region.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return models.ReductionResult{}, err
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

func (c *Client) attempt(ctx context.Context, regionID string, body []byte) (models.ReductionResult, error) {
	if err := c.breaker.allow(); err != nil {
		return models.ReductionResult{}, apperr.RemoteCompute("reduction backend unavailable", false, err)
	}

	res, err := c.post(ctx, regionID, body)
	c.breaker.record(err != nil && apperr.IsRetryable(err))
	return res, err
}

func (c *Client) post(ctx context.Context, regionID string, body []byte) (models.ReductionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/reduce"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.ReductionResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.ReductionResult{}, apperr.RemoteCompute("request reduction", true, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ReductionResult{}, apperr.RemoteCompute("read reduction response", true, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return models.ReductionResult{}, apperr.MalformedGeometry(regionID, fmt.Errorf("backend rejected geometry: %s", strings.TrimSpace(string(data))))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return models.ReductionResult{}, apperr.RemoteCompute(fmt.Sprintf("unexpected status %s", resp.Status), true, nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return models.ReductionResult{}, apperr.RemoteCompute(fmt.Sprintf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(data))), false, nil)
	}

	var out models.ReductionResult
	if err := json.Unmarshal(data, &out); err != nil {
		return models.ReductionResult{}, apperr.RemoteCompute("decode reduction response", false, err)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
