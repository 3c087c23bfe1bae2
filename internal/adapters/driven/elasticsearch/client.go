package elasticsearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds Elasticsearch / OpenSearch connection configuration
type Config struct {
	// BaseURL is the cluster endpoint (e.g., http://localhost:9200)
	BaseURL string

	// Username and Password enable HTTP basic auth when Username is set
	Username string
	Password string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// validateEndpoint checks the endpoint is an http(s) URL and strips any
// trailing slash.
func validateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("search endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid search endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("search endpoint %q has no host", endpoint)
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}

// do sends one request. The caller closes the response body.
func (s *SearchIndex) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return s.httpClient.Do(req)
}

// errorFromResponse formats a non-2xx response.
func errorFromResponse(op string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s failed: %s - %s", op, resp.Status, string(respBody))
}
