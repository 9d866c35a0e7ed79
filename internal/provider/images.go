package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/banguyen/weathercards/internal/metrics"
)

// maxImageBytes bounds a single image download.
const maxImageBytes = 20 << 20

// ImagesClient talks to the random-image-by-keyword API. The provider rate
// limits aggressively and communicates it via standard headers, which the
// retry policy honors.
type ImagesClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewImagesClient creates an image API client with a per-request timeout.
func NewImagesClient(baseURL, apiKey string, timeout time.Duration, retry RetryPolicy, logger *slog.Logger) *ImagesClient {
	return &ImagesClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		logger:  logger,
	}
}

type randomImageResponse struct {
	ID   string `json:"id"`
	URLs struct {
		Regular string `json:"regular"`
	} `json:"urls"`
}

// Random returns the fetchable URL of one random image for the keyword.
func (c *ImagesClient) Random(ctx context.Context, keyword string) (string, error) {
	var imageURL string

	err := c.retry.Do(ctx, c.logger, "random image lookup", func() error {
		endpoint := fmt.Sprintf("%s/photos/random?query=%s", c.baseURL, url.QueryEscape(keyword))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Client-ID "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching image descriptor: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp)
		}

		var descriptor randomImageResponse
		if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
			return fmt.Errorf("decoding image descriptor: %w", err)
		}
		if descriptor.URLs.Regular == "" {
			return fmt.Errorf("image descriptor has no fetchable url")
		}

		imageURL = descriptor.URLs.Regular
		return nil
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("images", "error").Inc()
		return "", err
	}
	metrics.ProviderRequests.WithLabelValues("images", "ok").Inc()
	return imageURL, nil
}

// Download fetches the raw image bytes behind a descriptor URL.
func (c *ImagesClient) Download(ctx context.Context, imageURL string) ([]byte, error) {
	var body []byte

	err := c.retry.Do(ctx, c.logger, "image download", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("downloading image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return classifyStatus(resp)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			return fmt.Errorf("reading image body: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("images", "error").Inc()
		return nil, err
	}
	metrics.ProviderRequests.WithLabelValues("images", "ok").Inc()

	c.logger.Debug("Image downloaded",
		slog.Int("bytes", len(body)),
	)
	return body, nil
}
