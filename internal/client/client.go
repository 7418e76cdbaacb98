package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/leetfollow/leetfollow-service/internal/circuitbreaker"
	"github.com/leetfollow/leetfollow-service/internal/models"
	"github.com/leetfollow/leetfollow-service/internal/observability"
)

// StatsClient fetches solved-problem statistics for a single username.
type StatsClient interface {
	FetchStats(ctx context.Context, username string) (models.StatsRecord, error)
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)

// DefaultAPIURL is LeetCode's public GraphQL endpoint.
const DefaultAPIURL = "https://leetcode.com/graphql"

// statsQuery is the fixed GraphQL query; username is the only variable.
const statsQuery = `query getUserProfile($username: String!) {
    matchedUser(username: $username) {
        username
        submitStats: submitStatsGlobal {
            acSubmissionNum {
                difficulty
                count
                submissions
            }
        }
        profile {
            ranking
        }
    }
}`

// LeetCodeClient implements StatsClient against the LeetCode GraphQL API.
// Each fetch is a single attempt with a bounded timeout; unknown usernames
// are an expected condition, not worth retrying.
type LeetCodeClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewLeetCodeClient creates a LeetCodeClient for the given endpoint. An empty
// apiURL falls back to the public endpoint. timeout bounds each call.
func NewLeetCodeClient(apiURL string, timeout time.Duration) (*LeetCodeClient, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &LeetCodeClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker installs a circuit breaker around upstream calls.
func (c *LeetCodeClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// FetchStats issues one GraphQL POST for username and normalizes the response.
// Transport failures, timeouts, non-200 statuses, and unmatched usernames all
// surface as errors; the caller decides how to degrade.
func (c *LeetCodeClient) FetchStats(ctx context.Context, username string) (models.StatsRecord, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		observability.LeetCodeAPICallsTotal.WithLabelValues("circuit_open").Inc()
		return models.StatsRecord{}, fmt.Errorf("%w: leetcode_api", ErrCircuitOpen)
	}

	record, err := c.callAPI(ctx, username)
	if c.breaker != nil {
		// Only upstream health counts toward the breaker: an unmatched
		// username is a successful round trip.
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return record, err
}

func (c *LeetCodeClient) callAPI(ctx context.Context, username string) (models.StatsRecord, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, username)
	if err != nil {
		observability.LeetCodeAPICallsTotal.WithLabelValues("error").Inc()
		return models.StatsRecord{}, fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.LeetCodeAPICallsTotal.WithLabelValues("error").Inc()
		observability.LeetCodeAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.StatsRecord{}, fmt.Errorf("%w: request timeout: %v", ErrUpstreamFailure, err)
		}
		return models.StatsRecord{}, fmt.Errorf("%w: http request failed: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.LeetCodeAPICallsTotal.WithLabelValues(status).Inc()
	observability.LeetCodeAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.StatsRecord{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.StatsRecord{}, fmt.Errorf("read response body: %w", err)
	}

	return Normalize(body)
}

func (c *LeetCodeClient) buildRequest(ctx context.Context, username string) (*http.Request, error) {
	payload := map[string]interface{}{
		"query": statsQuery,
		"variables": map[string]string{
			"username": username,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *LeetCodeClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrUserNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
