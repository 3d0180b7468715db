package result

import (
	"sync"
	"testing"

	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/stretchr/testify/assert"
)

var (
	testSecrets = []types.SecretFinding{
		{Type: "AWS Access Key", Match: "AKIA" + "Z7Q4MJ2KX9WPLR3T", Confidence: 90, File: "https://shop.example.com/app.js"},
		{Type: "GitHub Token", Match: "ghp_" + "R4nd0mT0k3nV4lu3F0rT3st1ngPurp0s3s12", Confidence: 95, File: "https://shop.example.com/vendor.js"},
		{Type: "Generic Password", Match: "hunter2hunter2", Confidence: 45, File: "https://shop.example.com/AWS-config.js"},
	}
	testEndpoints = []types.EndpointFinding{
		{Method: types.MethodGet, Endpoint: "/api/v1/users", Confidence: 75, File: "https://shop.example.com/app.js"},
		{Method: types.MethodPost, Endpoint: "/api/login", Confidence: 75, File: "https://shop.example.com/auth.js"},
		{Method: types.MethodUnknown, Endpoint: "/users/list", Confidence: 30, File: "https://shop.example.com/app.js"},
	}
)

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore()
	assert.Empty(t, s.Secrets())
	assert.Empty(t, s.Endpoints())

	var zero Store
	assert.Empty(t, zero.Secrets())
	assert.Empty(t, zero.FilterEndpoints("api"))
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	s.Replace(testSecrets, testEndpoints)

	assert.Equal(t, testSecrets, s.Secrets())
	assert.Equal(t, testEndpoints, s.Endpoints())

	s.Replace(nil, testEndpoints[:1])
	assert.Empty(t, s.Secrets())
	assert.Equal(t, testEndpoints[:1], s.Endpoints())
}

func TestStoreIsolatesCallers(t *testing.T) {
	secrets := append([]types.SecretFinding(nil), testSecrets...)
	s := NewStore()
	s.Replace(secrets, nil)

	secrets[0].Type = "changed"
	got := s.Secrets()
	got[1].Type = "changed too"

	assert.Equal(t, testSecrets, s.Secrets())
}

func TestFilterSecrets(t *testing.T) {
	s := NewStore()
	s.Replace(testSecrets, testEndpoints)

	tests := []struct {
		name     string
		term     string
		expected []types.SecretFinding
	}{
		{name: "empty term", term: "", expected: testSecrets},
		{name: "by type case-insensitive", term: "aws", expected: []types.SecretFinding{testSecrets[0], testSecrets[2]}},
		{name: "by match", term: "HUNTER2", expected: []types.SecretFinding{testSecrets[2]}},
		{name: "by file", term: "vendor.js", expected: []types.SecretFinding{testSecrets[1]}},
		{name: "no match", term: "stripe", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.FilterSecrets(tt.term))
		})
	}

	assert.Equal(t, testSecrets, s.Secrets(), "filtering must not modify the store")
}

func TestFilterEndpoints(t *testing.T) {
	s := NewStore()
	s.Replace(testSecrets, testEndpoints)

	tests := []struct {
		name     string
		term     string
		expected []types.EndpointFinding
	}{
		{name: "empty term", term: "", expected: testEndpoints},
		{name: "by method", term: "post", expected: []types.EndpointFinding{testEndpoints[1]}},
		{name: "by endpoint", term: "/API/V1", expected: []types.EndpointFinding{testEndpoints[0]}},
		{name: "by file", term: "app.js", expected: []types.EndpointFinding{testEndpoints[0], testEndpoints[2]}},
		{name: "unknown method", term: "unknown", expected: []types.EndpointFinding{testEndpoints[2]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.FilterEndpoints(tt.term))
		})
	}
}

func TestFilterIsSubsetAndMatches(t *testing.T) {
	for _, term := range []string{"a", "API", "js", "token", "zzz"} {
		filtered := FilterSecrets(testSecrets, term)
		assert.LessOrEqual(t, len(filtered), len(testSecrets))
		for _, f := range filtered {
			assert.Contains(t, testSecrets, f)
		}
	}
}

func TestAbove(t *testing.T) {
	assert.Equal(t, []types.SecretFinding{testSecrets[0], testSecrets[1]}, SecretsAbove(testSecrets, 50))
	assert.Equal(t, []types.EndpointFinding{testEndpoints[0], testEndpoints[1]}, EndpointsAbove(testEndpoints, 75))
	assert.Len(t, SecretsAbove(testSecrets, 0), len(testSecrets))
	assert.Len(t, testSecrets, 3)
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Replace(testSecrets, testEndpoints)
		}()
		go func() {
			defer wg.Done()
			got := s.Secrets()
			assert.True(t, len(got) == 0 || len(got) == len(testSecrets))
		}()
	}
	wg.Wait()
}
