// Package backend provides an HTTP client to the NutriBot assistant backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/ashureev/nutribot/internal/domain"
)

// RequestIDHeader correlates outbound requests with backend logs.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 4 << 10

// Config holds configuration for the backend client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RateLimit     float64 // requests per second, 0 disables limiting
	Burst         int
	FoodCacheSize int // 0 disables the food detail cache
	FoodCacheTTL  time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8000",
		Timeout:       30 * time.Second,
		RateLimit:     5,
		Burst:         5,
		FoodCacheSize: 128,
		FoodCacheTTL:  10 * time.Minute,
	}
}

// Client talks HTTP/JSON to the assistant backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	foods      *expirable.LRU[int, *domain.FoodDetails]
	logger     *slog.Logger
}

var (
	_ Assistant   = (*Client)(nil)
	_ SensorSink  = (*Client)(nil)
	_ FoodCatalog = (*Client)(nil)
)

// NewClient creates a backend client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.FoodCacheSize > 0 {
		c.foods = expirable.NewLRU[int, *domain.FoodDetails](cfg.FoodCacheSize, nil, cfg.FoodCacheTTL)
	}

	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one chat turn via POST /api/chat.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &resp); err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return &resp, nil
}

// SubmitSensors posts one reading via POST /sensors.
func (c *Client) SubmitSensors(ctx context.Context, payload SensorPayload) error {
	if err := c.do(ctx, http.MethodPost, "/sensors", payload, nil); err != nil {
		return fmt.Errorf("submit sensors failed: %w", err)
	}
	return nil
}

// FoodDetails fetches nutrient detail via GET /api/food/{fdcId}.
// Successful responses are cached.
func (c *Client) FoodDetails(ctx context.Context, fdcID int) (*domain.FoodDetails, error) {
	if c.foods != nil {
		if d, ok := c.foods.Get(fdcID); ok {
			return d.Clone(), nil
		}
	}

	var d domain.FoodDetails
	if err := c.do(ctx, http.MethodGet, "/api/food/"+strconv.Itoa(fdcID), nil, &d); err != nil {
		return nil, fmt.Errorf("food details %d failed: %w", fdcID, err)
	}
	if c.foods != nil {
		c.foods.Add(fdcID, d.Clone())
	}
	return &d, nil
}

// RecommendFood asks the backend for recommendations derived from the
// user's last submitted reading.
func (c *Client) RecommendFood(ctx context.Context, userID string) (*SensorRecommendations, error) {
	var resp SensorRecommendations
	if err := c.do(ctx, http.MethodGet, "/recommend_food/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, fmt.Errorf("recommend food failed: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSensorData, resp.Error)
	}
	return &resp, nil
}

// FoodStats returns the backend's food catalog summary.
func (c *Client) FoodStats(ctx context.Context) (FoodStats, error) {
	var stats FoodStats
	if err := c.do(ctx, http.MethodGet, "/admin/food-stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("food stats failed: %w", err)
	}
	return stats, nil
}

// ReloadFoods asks the backend to reload its food catalog and drops the
// local detail cache.
func (c *Client) ReloadFoods(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/admin/reload-foods", nil, nil); err != nil {
		return fmt.Errorf("reload foods failed: %w", err)
	}
	if c.foods != nil {
		c.foods.Purge()
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("Backend request failed",
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err,
		)
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Backend request",
		"method", method,
		"path", path,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
