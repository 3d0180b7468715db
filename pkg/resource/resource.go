// Package resource enumerates the files of a web page that can be scanned:
// scripts and source maps of a live page, a local directory, a HAR capture or
// an archive bundle. Content is retrieved lazily, one resource at a time.
package resource

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
)

// Resource types as reported by the browser devtools resource listing.
const (
	TypeScript     = "script"
	TypeSourceMap  = "sourcemap"
	TypeDocument   = "document"
	TypeStylesheet = "stylesheet"
	TypeOther      = "other"
)

var ErrNoRetriever = errors.New("resource has no content retriever")

// ContentFunc retrieves the text of a resource.
type ContentFunc func(ctx context.Context) (string, error)

type Resource struct {
	URL   string
	Type  string
	Fetch ContentFunc
}

// Content retrieves the resource text. An empty string with a nil error means
// the resource has no content.
func (r Resource) Content(ctx context.Context) (string, error) {
	if r.Fetch == nil {
		return "", ErrNoRetriever
	}
	return r.Fetch(ctx)
}

// Lister enumerates the resources of one scan target.
type Lister interface {
	ListResources(ctx context.Context) ([]Resource, error)
}

// Static returns a resource with fixed content.
func Static(u string, typ string, content string) Resource {
	return Resource{URL: u, Type: typ, Fetch: func(context.Context) (string, error) { return content, nil }}
}

// StaticLister lists a fixed set of resources.
type StaticLister []Resource

func (s StaticLister) ListResources(context.Context) ([]Resource, error) {
	return append([]Resource(nil), s...), nil
}

var scriptSuffixes = []string{".js", ".mjs", ".cjs", ".map"}

// IsScriptLike reports whether the resource is a script or a source map, either
// by its type or by the suffix of its URL path. Query and fragment are ignored.
func IsScriptLike(r Resource) bool {
	if r.Type == TypeScript || r.Type == TypeSourceMap {
		return true
	}
	p := strings.ToLower(urlPath(r.URL))
	for _, suffix := range scriptSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// IsSourceMap reports whether the resource holds a source map.
func IsSourceMap(r Resource) bool {
	return r.Type == TypeSourceMap || strings.HasSuffix(strings.ToLower(urlPath(r.URL)), ".map")
}

// TypeFromPath guesses the resource type from a file name or URL.
func TypeFromPath(p string) string {
	switch strings.ToLower(path.Ext(urlPath(p))) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts":
		return TypeScript
	case ".map":
		return TypeSourceMap
	case ".html", ".htm":
		return TypeDocument
	case ".css":
		return TypeStylesheet
	default:
		return TypeOther
	}
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && (u.Scheme != "" || u.Host != "") {
		return u.Path
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
