package resource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/httpclient"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

type PageOptions struct {
	Headers map[string]string
	Timeout time.Duration
	// ProbeSourceMaps adds a <script>.map candidate for every external script.
	// Missing maps yield empty content and are skipped.
	ProbeSourceMaps bool
	// RequestsPerSecond caps the request rate towards the target. Zero means
	// unlimited.
	RequestsPerSecond float64
}

// PageSource lists the scripts referenced by a live HTML page.
type PageSource struct {
	pageURL *url.URL
	client  *resty.Client
	limiter *rate.Limiter
	opts    PageOptions
}

func NewPageSource(pageURL string, opts PageOptions) (*PageSource, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid page URL %q: scheme must be http or https", pageURL)
	}

	// cookies set by the page are sent along with the script requests
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cannot create cookie jar: %w", err)
	}
	hc := httpclient.New(httpclient.Options{Headers: opts.Headers, Timeout: opts.Timeout}).StandardClient()
	hc.Jar = jar
	client := resty.NewWithClient(hc).SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &PageSource{pageURL: u, client: client, limiter: limiter, opts: opts}, nil
}

func (p *PageSource) get(ctx context.Context, u string) (*resty.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.client.R().SetContext(ctx).Get(u)
}

// ListResources downloads the page and returns the document itself, every
// external and inline script and every module preload, in document order.
func (p *PageSource) ListResources(ctx context.Context) ([]Resource, error) {
	pageURL := p.pageURL.String()
	res, err := p.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed fetching page %s: %w", pageURL, err)
	}
	if res.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed fetching page %s: status %d", pageURL, res.StatusCode())
	}

	html := res.String()
	base := p.pageURL
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		// scripts are relative to the final URL after redirects
		base = res.RawResponse.Request.URL
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed parsing page %s: %w", pageURL, err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := base.Parse(href); err == nil {
			base = u
		}
	}

	resources := []Resource{Static(pageURL, TypeDocument, html)}
	seen := map[string]bool{}
	var external []string
	inline := 0

	addExternal := func(ref string) {
		u, err := base.Parse(strings.TrimSpace(ref))
		if err != nil {
			log.Debug().Err(err).Str("src", ref).Msg("Skipping unparsable script reference")
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		external = append(external, abs)
		resources = append(resources, Resource{URL: abs, Type: TypeScript, Fetch: p.fetcher(abs, false)})
	}

	doc.Find("script, link[rel=modulepreload][href], link[rel=preload][as=script][href]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "link" {
			href, _ := s.Attr("href")
			addExternal(href)
			return
		}

		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			addExternal(src)
			return
		}

		text := s.Text()
		if strings.TrimSpace(text) == "" {
			return
		}
		inline++
		resources = append(resources, Static(fmt.Sprintf("%s#inline-script-%d", pageURL, inline), TypeScript, text))
	})

	if p.opts.ProbeSourceMaps {
		for _, abs := range external {
			if IsSourceMap(Resource{URL: abs}) {
				continue
			}
			mapURL := withMapSuffix(abs)
			if seen[mapURL] {
				continue
			}
			seen[mapURL] = true
			resources = append(resources, Resource{URL: mapURL, Type: TypeSourceMap, Fetch: p.fetcher(mapURL, true)})
		}
	}

	log.Debug().Str("url", pageURL).Int("scripts", len(external)).Int("inline", inline).Msg("Listed page resources")
	return resources, nil
}

// fetcher downloads one resource. With optional set a 404 yields empty content.
func (p *PageSource) fetcher(u string, optional bool) ContentFunc {
	return func(ctx context.Context) (string, error) {
		res, err := p.get(ctx, u)
		if err != nil {
			return "", fmt.Errorf("failed downloading %s: %w", u, err)
		}
		if optional && (res.StatusCode() == http.StatusNotFound || res.StatusCode() == http.StatusForbidden) {
			log.Trace().Str("url", u).Int("status", res.StatusCode()).Msg("Optional resource not available")
			return "", nil
		}
		if res.StatusCode() >= http.StatusBadRequest {
			return "", fmt.Errorf("failed downloading %s: status %d", u, res.StatusCode())
		}
		return res.String(), nil
	}
}

func withMapSuffix(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u + ".map"
	}
	parsed.Path += ".map"
	parsed.RawPath = ""
	return parsed.String()
}
