package resource

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// HARSource lists the responses recorded in a HAR capture, as exported by the
// browser devtools network panel.
type HARSource struct {
	Path string
}

func (h HARSource) ListResources(ctx context.Context) ([]Resource, error) {
	// #nosec G304 - HAR path is provided by the user via --har
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, fmt.Errorf("failed reading HAR file: %w", err)
	}
	return ParseHAR(data)
}

// ParseHAR returns one resource per recorded entry, in capture order. Later
// entries for an already seen URL are dropped.
func ParseHAR(data []byte) ([]Resource, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid HAR file: malformed JSON")
	}
	entries := gjson.GetBytes(data, "log.entries")
	if !entries.IsArray() {
		return nil, fmt.Errorf("invalid HAR file: log.entries missing")
	}

	var resources []Resource
	seen := map[string]bool{}
	entries.ForEach(func(_, entry gjson.Result) bool {
		u := entry.Get("request.url").String()
		if u == "" || seen[u] {
			return true
		}
		seen[u] = true

		content := entry.Get("response.content")
		resources = append(resources, Resource{
			URL:   u,
			Type:  harType(entry, u),
			Fetch: harContent(u, content.Get("text").String(), content.Get("encoding").String()),
		})
		return true
	})

	log.Debug().Int("entries", len(resources)).Msg("Parsed HAR file")
	return resources, nil
}

func harType(entry gjson.Result, u string) string {
	// Chromium exports carry the devtools resource type
	if t := strings.ToLower(entry.Get("_resourceType").String()); t != "" {
		if t == TypeScript && strings.HasSuffix(strings.ToLower(urlPath(u)), ".map") {
			return TypeSourceMap
		}
		return t
	}

	return typeFromMIME(entry.Get("response.content.mimeType").String(), u)
}

// typeFromMIME maps a response content type to a resource type, falling back
// to the URL path.
func typeFromMIME(mime string, u string) string {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "javascript") || strings.Contains(mime, "ecmascript"):
		if strings.HasSuffix(strings.ToLower(urlPath(u)), ".map") {
			return TypeSourceMap
		}
		return TypeScript
	case strings.Contains(mime, "html"):
		return TypeDocument
	case strings.Contains(mime, "css"):
		return TypeStylesheet
	}
	return TypeFromPath(u)
}

func harContent(u string, text string, encoding string) ContentFunc {
	return func(context.Context) (string, error) {
		if encoding != "base64" {
			return text, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return "", fmt.Errorf("failed decoding HAR content of %s: %w", u, err)
		}
		return string(decoded), nil
	}
}
