package result

import (
	"slices"
	"sync/atomic"

	"github.com/CompassSecurity/jsleek/pkg/format"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
)

type snapshot struct {
	secrets   []types.SecretFinding
	endpoints []types.EndpointFinding
}

// Store holds the findings of the last completed scan. Readers always see a
// complete result set; Replace swaps it in one step.
type Store struct {
	current atomic.Pointer[snapshot]
}

func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshot{})
	return s
}

// Replace swaps in the findings of a completed scan.
func (s *Store) Replace(secrets []types.SecretFinding, endpoints []types.EndpointFinding) {
	s.current.Store(&snapshot{secrets: slices.Clone(secrets), endpoints: slices.Clone(endpoints)})
}

func (s *Store) load() *snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	return &snapshot{}
}

// Secrets returns a copy of the current secret findings.
func (s *Store) Secrets() []types.SecretFinding {
	return slices.Clone(s.load().secrets)
}

// Endpoints returns a copy of the current endpoint findings.
func (s *Store) Endpoints() []types.EndpointFinding {
	return slices.Clone(s.load().endpoints)
}

// FilterSecrets returns the secrets whose type, match or file contains term,
// ignoring case. An empty term returns everything.
func (s *Store) FilterSecrets(term string) []types.SecretFinding {
	return FilterSecrets(s.load().secrets, term)
}

// FilterEndpoints returns the endpoints whose method, endpoint or file contains
// term, ignoring case. An empty term returns everything.
func (s *Store) FilterEndpoints(term string) []types.EndpointFinding {
	return FilterEndpoints(s.load().endpoints, term)
}

func FilterSecrets(secrets []types.SecretFinding, term string) []types.SecretFinding {
	if term == "" {
		return slices.Clone(secrets)
	}
	needle := format.Fold(term)
	var out []types.SecretFinding
	for _, f := range secrets {
		if containsFolded(needle, f.Type, f.Match, f.File) {
			out = append(out, f)
		}
	}
	return out
}

func FilterEndpoints(endpoints []types.EndpointFinding, term string) []types.EndpointFinding {
	if term == "" {
		return slices.Clone(endpoints)
	}
	needle := format.Fold(term)
	var out []types.EndpointFinding
	for _, f := range endpoints {
		if containsFolded(needle, string(f.Method), f.Endpoint, f.File) {
			out = append(out, f)
		}
	}
	return out
}

func containsFolded(needle string, fields ...string) bool {
	for _, field := range fields {
		if format.ContainsI(field, needle) {
			return true
		}
	}
	return false
}

// SecretsAbove drops secrets scored below minimum.
func SecretsAbove(secrets []types.SecretFinding, minimum int) []types.SecretFinding {
	return slices.DeleteFunc(slices.Clone(secrets), func(f types.SecretFinding) bool { return f.Confidence < minimum })
}

// EndpointsAbove drops endpoints scored below minimum.
func EndpointsAbove(endpoints []types.EndpointFinding, minimum int) []types.EndpointFinding {
	return slices.DeleteFunc(slices.Clone(endpoints), func(f types.EndpointFinding) bool { return f.Confidence < minimum })
}
