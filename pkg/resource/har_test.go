package resource

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHAR() string {
	encoded := base64.StdEncoding.EncodeToString([]byte(`axios.get("/api/cart")`))
	return `{"log": {"version": "1.2", "entries": [
  {"request": {"url": "https://shop.example.com/"}, "response": {"status": 200, "content": {"mimeType": "text/html", "text": "<html></html>"}}},
  {"_resourceType": "script", "request": {"url": "https://shop.example.com/app.js"}, "response": {"content": {"mimeType": "application/javascript", "text": "fetch(\"/api/v1/users\")"}}},
  {"request": {"url": "https://shop.example.com/cart.js?v=2"}, "response": {"content": {"mimeType": "text/javascript", "text": "` + encoded + `", "encoding": "base64"}}},
  {"_resourceType": "script", "request": {"url": "https://shop.example.com/app.js.map"}, "response": {"content": {"mimeType": "application/json", "text": "{}"}}},
  {"request": {"url": "https://shop.example.com/app.js"}, "response": {"content": {"text": "duplicate"}}},
  {"request": {"url": "https://shop.example.com/broken.js"}, "response": {"content": {"text": "%%%", "encoding": "base64"}}},
  {"request": {"url": "https://shop.example.com/logo.png"}, "response": {"content": {"mimeType": "image/png"}}}
]}}`
}

func TestParseHAR(t *testing.T) {
	resources, err := ParseHAR([]byte(testHAR()))
	require.NoError(t, err)
	require.Len(t, resources, 6)

	expected := []struct {
		url string
		typ string
	}{
		{"https://shop.example.com/", TypeDocument},
		{"https://shop.example.com/app.js", TypeScript},
		{"https://shop.example.com/cart.js?v=2", TypeScript},
		{"https://shop.example.com/app.js.map", TypeSourceMap},
		{"https://shop.example.com/broken.js", TypeScript},
		{"https://shop.example.com/logo.png", TypeOther},
	}
	for i, e := range expected {
		assert.Equal(t, e.url, resources[i].URL)
		assert.Equal(t, e.typ, resources[i].Type, e.url)
	}

	plain, err := resources[1].Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `fetch("/api/v1/users")`, plain)

	decoded, err := resources[2].Content(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `axios.get("/api/cart")`, decoded)

	_, err = resources[4].Content(context.Background())
	assert.Error(t, err)

	empty, err := resources[5].Content(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseHARInvalid(t *testing.T) {
	_, err := ParseHAR([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseHAR([]byte(`{"log": {}}`))
	assert.Error(t, err)
}

func TestHARSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), "capture.har")
	require.NoError(t, os.WriteFile(p, []byte(testHAR()), 0o600))

	resources, err := HARSource{Path: p}.ListResources(context.Background())
	require.NoError(t, err)
	assert.Len(t, resources, 6)

	_, err = HARSource{Path: p + ".missing"}.ListResources(context.Background())
	assert.Error(t, err)
}
