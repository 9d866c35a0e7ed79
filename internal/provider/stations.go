// Package provider contains the HTTP clients for the two upstreams: the bulk
// weather-measurement feed and the random-image API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/internal/metrics"
)

// StationsClient fetches the current measurements of all stations in one bulk
// GET. No pagination; the feed returns everything current.
type StationsClient struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewStationsClient creates a feed client with a per-request timeout.
func NewStationsClient(baseURL string, timeout time.Duration, retry RetryPolicy, logger *slog.Logger) *StationsClient {
	return &StationsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		logger:  logger,
	}
}

type measurementFeed struct {
	Measurements []struct {
		ID          json.Number `json:"id"`
		Name        string      `json:"name"`
		Lat         float64     `json:"lat"`
		Lon         float64     `json:"lon"`
		Temperature *float64    `json:"temperature"`
		Region      string      `json:"region"`
	} `json:"measurements"`
}

// FetchMeasurements returns the current candidate stations, normalized.
func (c *StationsClient) FetchMeasurements(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station

	err := c.retry.Do(ctx, c.logger, "fetch measurements", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/measurements", nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching measurements: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp)
		}

		var feed measurementFeed
		if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
			return fmt.Errorf("decoding measurement feed: %w", err)
		}

		stations = stations[:0]
		for _, m := range feed.Measurements {
			id := m.ID.String()
			if id == "" {
				continue
			}
			stations = append(stations, domain.Station{
				ID:          id,
				Name:        m.Name,
				Lat:         m.Lat,
				Lon:         m.Lon,
				Temperature: m.Temperature,
				Region:      m.Region,
			})
		}
		return nil
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("stations", "error").Inc()
		return nil, err
	}
	metrics.ProviderRequests.WithLabelValues("stations", "ok").Inc()

	c.logger.Debug("Fetched station measurements",
		slog.Int("count", len(stations)),
	)
	return stations, nil
}
