package types

import (
	"regexp"
	"strings"
)

// Method is the HTTP method inferred for an endpoint finding.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodUnknown Method = "UNKNOWN"
)

// ParseMethod maps a verb token found in source code to a Method.
// Anything that is not one of the supported verbs yields MethodUnknown.
func ParseMethod(verb string) Method {
	switch strings.ToUpper(strings.TrimSpace(verb)) {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE", "DEL":
		return MethodDelete
	case "PATCH":
		return MethodPatch
	default:
		return MethodUnknown
	}
}

// IsWrite reports whether the method modifies server state.
func (m Method) IsWrite() bool {
	return m == MethodPost || m == MethodPut || m == MethodDelete || m == MethodPatch
}

// Confidence tiers used for presentation.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"

	HighConfidence   = 80
	MediumConfidence = 50
)

// TierOf maps a confidence score to its presentation tier.
func TierOf(confidence int) string {
	switch {
	case confidence >= HighConfidence:
		return TierHigh
	case confidence >= MediumConfidence:
		return TierMedium
	default:
		return TierLow
	}
}

// ClampConfidence bounds a score to [0,100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// SecretFinding is a credential-like substring detected in a resource.
type SecretFinding struct {
	Type       string `json:"type"`
	Match      string `json:"match"`
	Confidence int    `json:"confidence"`
	File       string `json:"file"`
}

// EndpointFinding is an API call target detected in a resource.
// An empty BaseURL means no API root could be inferred.
type EndpointFinding struct {
	Method     Method `json:"method"`
	Endpoint   string `json:"endpoint"`
	Confidence int    `json:"confidence"`
	File       string `json:"file"`
	BaseURL    string `json:"baseUrl,omitempty"`
}

// FullURL joins a relative endpoint with its inferred base URL.
// Absolute endpoints and endpoints without base URL are returned unchanged.
// A template literal starting with an interpolation has that interpolation
// replaced by the base URL.
func (e EndpointFinding) FullURL() string {
	if e.BaseURL == "" {
		return e.Endpoint
	}
	base := strings.TrimSuffix(e.BaseURL, "/")
	switch {
	case strings.HasPrefix(e.Endpoint, "/") && !strings.HasPrefix(e.Endpoint, "//"):
		return base + e.Endpoint
	case strings.HasPrefix(e.Endpoint, "${"):
		if end := strings.Index(e.Endpoint, "}"); end > 0 {
			return base + e.Endpoint[end+1:]
		}
	}
	return e.Endpoint
}

// Adjuster modifies the confidence of a secret match based on its surroundings.
type Adjuster struct {
	Name    string
	Delta   int
	Applies func(m MatchContext) bool
}

// MatchContext describes a single regex hit inside a file.
type MatchContext struct {
	// Match is the reported substring.
	Match string
	// Before and After hold the bytes on the same line around Match,
	// capped to a fixed window.
	Before string
	After  string
	// Literal is the enclosing quoted string literal when Match sits inside one.
	Literal string
	// StartsLiteral is true when Match begins right after an opening quote.
	StartsLiteral bool
}

// SecretRule detects one kind of credential.
type SecretRule struct {
	Type           string
	Pattern        *regexp.Regexp
	BaseConfidence int
	// SecretGroup selects the capture group reported as the match; 0 is the whole match.
	SecretGroup int
	// Adjusters overrides the catalog default adjusters when non-nil.
	Adjusters []Adjuster
}

// EndpointKind classifies how an endpoint rule recognizes a candidate.
type EndpointKind string

const (
	KindCall     EndpointKind = "call"
	KindLiteral  EndpointKind = "literal"
	KindTemplate EndpointKind = "template"
	KindAbsolute EndpointKind = "absolute"
)

// EndpointRule detects one shape of API endpoint reference.
type EndpointRule struct {
	Name string
	// MethodHint is used when the rule has no method capture group.
	MethodHint     Method
	Pattern        *regexp.Regexp
	BaseConfidence int
	Kind           EndpointKind
	// EndpointGroup and MethodGroup index capture groups; MethodGroup 0 means none.
	EndpointGroup int
	MethodGroup   int
	// Require, when set, must match the captured endpoint for it to be reported.
	Require *regexp.Regexp
}
