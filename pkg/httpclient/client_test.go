package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripper_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.Header.Get("Custom-Header")))
	}))
	defer server.Close()

	tests := []struct {
		name          string
		headers       map[string]string
		requestHeader map[string]string
		wantHeader    string
	}{
		{
			name:          "add default header when not present",
			headers:       map[string]string{"Custom-Header": "default-value"},
			requestHeader: map[string]string{},
			wantHeader:    "default-value",
		},
		{
			name:          "preserve existing request header",
			headers:       map[string]string{"Custom-Header": "default-value"},
			requestHeader: map[string]string{"Custom-Header": "request-value"},
			wantHeader:    "request-value",
		},
		{
			name:          "nil headers map",
			headers:       nil,
			requestHeader: map[string]string{},
			wantHeader:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hrt := &HeaderRoundTripper{
				Headers: tt.headers,
				Next:    http.DefaultTransport,
			}

			client := &http.Client{
				Transport: hrt,
			}

			req, err := http.NewRequest("GET", server.URL, nil)
			if err != nil {
				t.Fatal(err)
			}

			for k, v := range tt.requestHeader {
				req.Header.Set(k, v)
			}

			resp, err := client.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer func() {
				_ = resp.Body.Close()
			}()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatal(err)
			}

			if string(body) != tt.wantHeader {
				t.Errorf("Expected header value %q, got %q", tt.wantHeader, string(body))
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("default client", func(t *testing.T) {
		client := New(Options{})
		require.NotNil(t, client)
		assert.Nil(t, client.Logger)

		hrt, ok := client.HTTPClient.Transport.(*HeaderRoundTripper)
		require.True(t, ok, "Expected HeaderRoundTripper transport")
		assert.Equal(t, DefaultUserAgent, hrt.Headers["User-Agent"])
	})

	t.Run("custom headers override defaults", func(t *testing.T) {
		client := New(Options{Headers: map[string]string{"User-Agent": "test-agent", "Cookie": "a=b"}})
		hrt := client.HTTPClient.Transport.(*HeaderRoundTripper)
		assert.Equal(t, "test-agent", hrt.Headers["User-Agent"])
		assert.Equal(t, "a=b", hrt.Headers["Cookie"])
	})

	t.Run("timeout and retries", func(t *testing.T) {
		client := New(Options{Timeout: 3 * time.Second, RetryMax: 7})
		assert.Equal(t, 3*time.Second, client.HTTPClient.Timeout)
		assert.Equal(t, 7, client.RetryMax)
	})

	t.Run("check retry function", func(t *testing.T) {
		client := New(Options{})
		ctx := context.Background()

		shouldRetry, _ := client.CheckRetry(ctx, &http.Response{StatusCode: 429}, nil)
		assert.True(t, shouldRetry, "Expected to retry on 429 status")

		shouldRetry, _ = client.CheckRetry(ctx, &http.Response{StatusCode: 500}, nil)
		assert.True(t, shouldRetry, "Expected to retry on 500 status")

		shouldRetry, _ = client.CheckRetry(ctx, &http.Response{StatusCode: 501}, nil)
		assert.False(t, shouldRetry, "Expected NOT to retry on 501 status")

		shouldRetry, _ = client.CheckRetry(ctx, &http.Response{StatusCode: 200}, nil)
		assert.False(t, shouldRetry, "Expected NOT to retry on 200 status")

		shouldRetry, _ = client.CheckRetry(ctx, nil, nil)
		assert.False(t, shouldRetry, "Expected NOT to retry with nil response")

		shouldRetry, _ = client.CheckRetry(ctx, nil, http.ErrServerClosed)
		assert.True(t, shouldRetry, "Expected to retry on error")
	})

	t.Run("canceled context stops retries", func(t *testing.T) {
		client := New(Options{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		shouldRetry, err := client.CheckRetry(ctx, &http.Response{StatusCode: 500}, nil)
		assert.False(t, shouldRetry)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
