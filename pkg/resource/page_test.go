package resource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!doctype html>
<html>
<head>
  <script src="/static/app.js"></script>
  <script src="https://cdn.example.com/vendor.js"></script>
  <script src="/static/app.js"></script>
  <link rel="modulepreload" href="chunks/router.mjs">
  <link rel="stylesheet" href="/site.css">
</head>
<body>
  <script>window.cfg = { api: "/api/v1" };</script>
  <script>   </script>
</body>
</html>`

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/shop/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shop/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/static/app.js", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`fetch("/api/v1/users")`))
	})
	mux.HandleFunc("/static/app.js.map", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":3,"sources":["a.js"],"sourcesContent":["var a;"]}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPageSourceListResources(t *testing.T) {
	server := newPageServer(t)

	source, err := NewPageSource(server.URL+"/shop/", PageOptions{})
	require.NoError(t, err)

	resources, err := source.ListResources(context.Background())
	require.NoError(t, err)

	var urls []string
	for _, r := range resources {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{
		server.URL + "/shop/",
		server.URL + "/static/app.js",
		"https://cdn.example.com/vendor.js",
		server.URL + "/shop/chunks/router.mjs",
		server.URL + "/shop/#inline-script-1",
	}, urls)

	assert.Equal(t, TypeDocument, resources[0].Type)
	for _, r := range resources[1:] {
		assert.Equal(t, TypeScript, r.Type)
	}

	content, err := resources[1].Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `fetch("/api/v1/users")`, content)

	inline, err := resources[4].Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, inline, "window.cfg")
}

func TestPageSourceProbeSourceMaps(t *testing.T) {
	server := newPageServer(t)

	source, err := NewPageSource(server.URL+"/shop/", PageOptions{ProbeSourceMaps: true})
	require.NoError(t, err)

	resources, err := source.ListResources(context.Background())
	require.NoError(t, err)

	maps := map[string]Resource{}
	for _, r := range resources {
		if r.Type == TypeSourceMap {
			maps[r.URL] = r
		}
	}
	require.Contains(t, maps, server.URL+"/static/app.js.map")
	require.Contains(t, maps, server.URL+"/shop/chunks/router.mjs.map")

	content, err := maps[server.URL+"/static/app.js.map"].Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, content, "sourcesContent")

	missing, err := maps[server.URL+"/shop/chunks/router.mjs.map"].Content(context.Background())
	require.NoError(t, err, "missing source maps are not failures")
	assert.Empty(t, missing)
}

func TestPageSourceErrors(t *testing.T) {
	server := newPageServer(t)

	_, err := NewPageSource("ftp://example.com", PageOptions{})
	assert.Error(t, err)

	source, err := NewPageSource(server.URL+"/broken", PageOptions{})
	require.NoError(t, err)
	_, err = source.ListResources(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")

	missing := Resource{URL: server.URL + "/static/missing.js", Fetch: source.fetcher(server.URL+"/static/missing.js", false)}
	_, err = missing.Content(context.Background())
	assert.Error(t, err)
}

func TestPageSourceForwardsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		_, _ = w.Write([]byte(`<script src="/app.js"></script>`))
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("var session = '" + cookie.Value + "';"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source, err := NewPageSource(server.URL+"/", PageOptions{})
	require.NoError(t, err)
	resources, err := source.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 2)

	content, err := resources[1].Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "var session = 'abc';", content)
}

func TestPageSourceRateLimit(t *testing.T) {
	server := newPageServer(t)

	source, err := NewPageSource(server.URL+"/shop/", PageOptions{RequestsPerSecond: 0.5})
	require.NoError(t, err)

	resources, err := source.ListResources(context.Background())
	require.NoError(t, err)

	// the page request used the only token, the next one is two seconds away
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = resources[1].Content(ctx)
	assert.Error(t, err)
}
