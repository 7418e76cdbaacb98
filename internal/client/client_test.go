package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leetfollow/leetfollow-service/internal/circuitbreaker"
)

func TestLeetCodeClient_FetchStats_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Query     string            `json:"query"`
			Variables map[string]string `json:"variables"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("request body is not JSON: %v", err)
		}
		if !strings.Contains(payload.Query, "matchedUser") {
			t.Errorf("query missing matchedUser: %s", payload.Query)
		}
		if payload.Variables["username"] != "alice" {
			t.Errorf("username variable = %q, want alice", payload.Variables["username"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(statsBody("alice", 100, 40, 40, 20, 5678))
	}))
	defer server.Close()

	c, err := NewLeetCodeClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewLeetCodeClient() error = %v", err)
	}

	got, err := c.FetchStats(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FetchStats() error = %v", err)
	}

	if got.Username != "alice" {
		t.Errorf("Username = %q, want alice", got.Username)
	}
	if got.TotalSolved != 100 {
		t.Errorf("TotalSolved = %d, want 100", got.TotalSolved)
	}
	if got.Ranking != 5678 {
		t.Errorf("Ranking = %d, want 5678", got.Ranking)
	}
}

func TestLeetCodeClient_FetchStats_ErrorHandling(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "unknown username returns null matchedUser",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": {"matchedUser": null}}`))
			},
			wantErr: ErrUserNotFound,
		},
		{
			name: "429 rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantErr: ErrRateLimited,
		},
		{
			name: "500 upstream failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: ErrUpstreamFailure,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`not json`))
			},
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			c, err := NewLeetCodeClient(server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewLeetCodeClient() error = %v", err)
			}

			_, err = c.FetchStats(context.Background(), "whoever")
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("FetchStats() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// TestLeetCodeClient_FetchStats_Timeout verifies a stalled upstream surfaces
// as an upstream failure once the client timeout elapses.
func TestLeetCodeClient_FetchStats_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewLeetCodeClient(server.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewLeetCodeClient() error = %v", err)
	}

	start := time.Now()
	_, err = c.FetchStats(context.Background(), "alice")
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("FetchStats() error = %v, want ErrUpstreamFailure", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("FetchStats() took %v, timeout did not bound the call", elapsed)
	}
}

// TestLeetCodeClient_CircuitBreaker verifies an open breaker rejects fetches
// without touching the network, and that not-found responses do not trip it.
func TestLeetCodeClient_CircuitBreaker(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewLeetCodeClient(server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewLeetCodeClient() error = %v", err)
	}
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Cooldown:         time.Hour,
		Component:        "leetcode_api",
	}))

	for i := 0; i < 2; i++ {
		if _, err := c.FetchStats(context.Background(), "alice"); err == nil {
			t.Fatal("FetchStats() error = nil, want upstream failure")
		}
	}
	if calls != 2 {
		t.Fatalf("upstream calls = %d, want 2", calls)
	}

	_, err = c.FetchStats(context.Background(), "alice")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("FetchStats() error = %v, want ErrCircuitOpen", err)
	}
	if calls != 2 {
		t.Errorf("upstream calls = %d after open circuit, want 2 (no new call)", calls)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{name: "nil", err: nil, want: ""},
		{name: "user not found", err: ErrUserNotFound, want: ErrorCategoryUserNotFound},
		{name: "rate limited", err: ErrRateLimited, want: ErrorCategoryRateLimited},
		{name: "circuit open", err: ErrCircuitOpen, want: ErrorCategoryCircuitOpen},
		{name: "malformed", err: ErrMalformedResponse, want: ErrorCategoryParsing},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorCategoryTimeout},
		{name: "upstream", err: ErrUpstreamFailure, want: ErrorCategoryUpstream5xx},
		{name: "unknown", err: errors.New("boom"), want: ErrorCategoryUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CategorizeError(tc.err); got != tc.want {
				t.Errorf("CategorizeError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
