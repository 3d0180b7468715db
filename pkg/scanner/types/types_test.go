package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in       string
		expected Method
	}{
		{"get", MethodGet},
		{"POST", MethodPost},
		{" Put ", MethodPut},
		{"delete", MethodDelete},
		{"del", MethodDelete},
		{"patch", MethodPatch},
		{"head", MethodUnknown},
		{"", MethodUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseMethod(tt.in))
		})
	}
}

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierHigh, TierOf(100))
	assert.Equal(t, TierHigh, TierOf(80))
	assert.Equal(t, TierMedium, TierOf(79))
	assert.Equal(t, TierMedium, TierOf(50))
	assert.Equal(t, TierLow, TierOf(49))
	assert.Equal(t, TierLow, TierOf(0))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, ClampConfidence(-5))
	assert.Equal(t, 42, ClampConfidence(42))
	assert.Equal(t, 100, ClampConfidence(130))
}

func TestIsWrite(t *testing.T) {
	assert.False(t, MethodGet.IsWrite())
	assert.False(t, MethodUnknown.IsWrite())
	assert.True(t, MethodPost.IsWrite())
	assert.True(t, MethodDelete.IsWrite())
}

func TestFullURL(t *testing.T) {
	tests := []struct {
		name     string
		finding  EndpointFinding
		expected string
	}{
		{name: "no base", finding: EndpointFinding{Endpoint: "/api/users"}, expected: "/api/users"},
		{name: "relative path", finding: EndpointFinding{Endpoint: "/api/users", BaseURL: "https://api.example.com"}, expected: "https://api.example.com/api/users"},
		{name: "trailing slash base", finding: EndpointFinding{Endpoint: "/users", BaseURL: "https://api.example.com/"}, expected: "https://api.example.com/users"},
		{name: "protocol relative untouched", finding: EndpointFinding{Endpoint: "//cdn.example.com/x", BaseURL: "https://api.example.com"}, expected: "//cdn.example.com/x"},
		{name: "template interpolation", finding: EndpointFinding{Endpoint: "${API}/orders/${id}", BaseURL: "https://api.example.com/v1"}, expected: "https://api.example.com/v1/orders/${id}"},
		{name: "absolute", finding: EndpointFinding{Endpoint: "https://x.example.com/api", BaseURL: "https://api.example.com"}, expected: "https://x.example.com/api"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.finding.FullURL())
		})
	}
}
