// Package httpclient provides the shared HTTP client used to fetch pages, scripts,
// rule files and AI assist responses. Requests are retried on transient errors,
// honour HTTP_PROXY and skip certificate verification for scanned targets.
package httpclient

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// DefaultUserAgent is sent unless the caller provides its own User-Agent header.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) jsleek"

var ignoreProxy atomic.Bool

// SetIgnoreProxy disables HTTP_PROXY handling for clients created afterwards.
func SetIgnoreProxy(ignore bool) {
	ignoreProxy.Store(ignore)
}

// HeaderRoundTripper adds default headers that are not already set on the request.
type HeaderRoundTripper struct {
	Headers map[string]string
	Next    http.RoundTripper
}

func (hrt *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if hrt.Next == nil {
		return nil, http.ErrNotSupported
	}

	for k, v := range hrt.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	return hrt.Next.RoundTrip(req)
}

// Options tunes the client returned by New.
type Options struct {
	Headers  map[string]string
	Timeout  time.Duration
	RetryMax int
}

// New creates a retryable client. 429 and 5xx responses (except 501) are retried.
func New(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	if opts.RetryMax > 0 {
		client.RetryMax = opts.RetryMax
	}
	if opts.Timeout > 0 {
		client.HTTPClient.Timeout = opts.Timeout
	}

	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if err != nil {
			log.Debug().Err(err).Msg("Retrying HTTP request, error occurred")
			return true, nil
		}

		if resp == nil {
			return false, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented) {
			reqURL := ""
			if resp.Request != nil && resp.Request.URL != nil {
				reqURL = resp.Request.URL.String()
			}
			log.Trace().Str("url", reqURL).Int("statusCode", resp.StatusCode).Msg("Retrying HTTP request")
			return true, nil
		}

		return false, nil
	}

	// #nosec G402 - scanned pages are untrusted targets, often with self-signed certificates
	tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}

	if !ignoreProxy.Load() {
		if proxyServer, ok := os.LookupEnv("HTTP_PROXY"); ok {
			proxyURL, err := url.Parse(proxyServer)
			if err != nil {
				log.Fatal().Err(err).Str("HTTP_PROXY", proxyServer).Msg("Invalid Proxy URL in HTTP_PROXY environment variable")
			}
			log.Debug().Str("proxy", proxyURL.String()).Msg("Using HTTP_PROXY")
			tr.Proxy = http.ProxyURL(proxyURL)
		}
	}

	headers := map[string]string{"User-Agent": DefaultUserAgent}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	client.HTTPClient.Transport = &HeaderRoundTripper{Headers: headers, Next: tr}
	return client
}
