package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lnscraper/pkg/errors"
	"lnscraper/pkg/logger"
)

// Client fetches profile feed pages over HTTP. It does no retrying of
// its own; failures carry a type so the retry boundary upstream can
// classify them.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	pageSize   int
	logger     logger.Logger
}

// NewClient creates a feed client.
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			"Accept":          "application/json",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Referer":         "https://www.linkedin.com/",
		},
		baseURL:  BaseURL,
		pageSize: DefaultPageSize,
		logger:   log,
	}
}

// SetHeader sets a custom header for the client.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetPageSize overrides the number of posts requested per page.
func (c *Client) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeValidation, "failed to create request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, "request failed", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeNetwork, "failed to read response body", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return errors.Wrap(errors.ErrorTypeExtraction, "failed to parse feed response", err)
	}

	return nil
}

// checkResponseStatus maps HTTP statuses onto session error types.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeRateLimit, "rate limit exceeded")
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		c.logger.WarnWithFields("request blocked", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeBlocked, "access blocked by anti-automation protection")
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrorTypeValidation, "profile not found")
	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("server error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("server returned status %d", resp.StatusCode))
	default:
		return errors.New(errors.ErrorTypeUnknown, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}
}
