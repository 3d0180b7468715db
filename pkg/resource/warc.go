package resource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/nlnwa/gowarc/v2"
	"github.com/rs/zerolog/log"
)

// WARCSource lists the HTTP responses archived in a WARC or WARC.GZ file, e.g.
// a crawl of the target site. Only script-like responses keep their body in
// memory; other responses are listed with empty content.
type WARCSource struct {
	Path string
}

func (w WARCSource) ListResources(ctx context.Context) ([]Resource, error) {
	// #nosec G304 - WARC path is provided by the user via --warc
	f, err := os.Open(w.Path)
	if err != nil {
		return nil, fmt.Errorf("failed opening WARC file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadWARC(ctx, f)
}

// ReadWARC returns one resource per archived response, in archive order. Later
// responses for an already seen URL are dropped.
func ReadWARC(ctx context.Context, input io.Reader) ([]Resource, error) {
	warcReader, err := gowarc.NewWarcFileReaderFromStream(input, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create WARC reader: %w", err)
	}
	defer func() { _ = warcReader.Close() }()

	var resources []Resource
	seen := map[string]bool{}
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		record, _, _, err := warcReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read WARC record: %w", err)
		}
		if record.Type() != gowarc.Response {
			continue
		}

		u := record.WarcHeader().Get("WARC-Target-URI")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		raw, err := record.Block().RawBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to get record body of %s: %w", u, err)
		}
		r, err := warcResource(u, raw)
		if err != nil {
			log.Debug().Err(err).Str("url", u).Msg("Skipping unparseable WARC response")
			continue
		}
		resources = append(resources, r)
	}

	log.Debug().Int("responses", len(resources)).Msg("Read WARC file")
	return resources, nil
}

func warcResource(u string, raw io.Reader) (Resource, error) {
	resp, err := http.ReadResponse(bufio.NewReader(raw), nil)
	if err != nil {
		return Resource{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	r := Resource{URL: u, Type: typeFromMIME(resp.Header.Get("Content-Type"), u)}
	if !IsScriptLike(r) || resp.StatusCode >= http.StatusBadRequest {
		r.Fetch = func(context.Context) (string, error) { return "", nil }
		return r, nil
	}

	content, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		// listed anyway so the file shows up as a scan failure
		log.Debug().Err(err).Str("url", u).Msg("Cannot decode archived response")
		r.Fetch = func(context.Context) (string, error) { return "", fmt.Errorf("failed decoding %s: %w", u, err) }
		return r, nil
	}
	r.Fetch = func(context.Context) (string, error) { return content, nil }
	return r, nil
}

// decodeBody undoes the Content-Encoding of an archived response body. Crawlers
// store responses as sent on the wire.
func decodeBody(body io.Reader, encoding string) (string, error) {
	var decoded io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		decoded = body
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return "", err
		}
		defer func() { _ = gz.Close() }()
		decoded = gz
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return "", err
		}
		defer func() { _ = zr.Close() }()
		decoded = zr
	case "br":
		decoded = brotli.NewReader(body)
	case "zstd":
		zr, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return "", err
		}
		defer zr.Close()
		decoded = zr
	default:
		return "", fmt.Errorf("unsupported content encoding %q", encoding)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, decoded); err != nil {
		return "", fmt.Errorf("failed to copy record body: %w", err)
	}
	return buf.String(), nil
}
