package rules

import (
	"regexp"
	"slices"
	"sync"

	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
)

// Catalog is an immutable set of secret and endpoint rules.
type Catalog struct {
	secrets   []types.SecretRule
	endpoints []types.EndpointRule
}

// NewCatalog builds a catalog from already compiled rules.
func NewCatalog(secrets []types.SecretRule, endpoints []types.EndpointRule) *Catalog {
	return &Catalog{secrets: slices.Clone(secrets), endpoints: slices.Clone(endpoints)}
}

// SecretRules returns the secret rules in catalog order.
func (c *Catalog) SecretRules() []types.SecretRule {
	return slices.Clone(c.secrets)
}

// EndpointRules returns the endpoint rules in catalog order.
func (c *Catalog) EndpointRules() []types.EndpointRule {
	return slices.Clone(c.endpoints)
}

// With returns a new catalog with the extra rules appended after the existing ones.
func (c *Catalog) With(secrets []types.SecretRule, endpoints []types.EndpointRule) *Catalog {
	return &Catalog{
		secrets:   slices.Concat(c.secrets, secrets),
		endpoints: slices.Concat(c.endpoints, endpoints),
	}
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	return NewCatalog(defaultSecretRules(), defaultEndpointRules())
})

// Default returns the built-in catalog. It is compiled once per process.
func Default() *Catalog {
	return defaultCatalog()
}

const (
	quote    = "[\"'`]"
	notQuote = "[^\\s\"'`]"
)

func defaultSecretRules() []types.SecretRule {
	return []types.SecretRule{
		{Type: "AWS Access Key", Pattern: regexp.MustCompile(`\b((?:AKIA|ASIA|AGPA|AIDA|AROA|ANPA|ANVA|AIPA)[0-9A-Z]{16})\b`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "AWS Secret Key", Pattern: regexp.MustCompile(`(?i)aws_?secret_?(?:access_?)?key["'\s]*[:=]\s*["']?([A-Za-z0-9/+=]{40})`), BaseConfidence: 85, SecretGroup: 1, Adjusters: ContextFreeAdjusters},
		{Type: "Google API Key", Pattern: regexp.MustCompile(`\b(AIza[0-9A-Za-z_\-]{35})`), BaseConfidence: 75, SecretGroup: 1},
		{Type: "Google OAuth Client Secret", Pattern: regexp.MustCompile(`\b(GOCSPX-[0-9A-Za-z_\-]{28})`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "GitHub Token", Pattern: regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{36,255})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "GitHub Fine-Grained Token", Pattern: regexp.MustCompile(`\b(github_pat_[A-Za-z0-9_]{82})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "GitLab Personal Access Token", Pattern: regexp.MustCompile(`\b(glpat-[A-Za-z0-9_\-]{20})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "Slack Token", Pattern: regexp.MustCompile(`\b(xox[baprs]-[0-9A-Za-z\-]{10,72})`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "Slack Webhook", Pattern: regexp.MustCompile(`(https://hooks\.slack\.com/services/T[A-Z0-9]+/B[A-Z0-9]+/[A-Za-z0-9]+)`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "Stripe Secret Key", Pattern: regexp.MustCompile(`\b((?:sk|rk)_live_[0-9a-zA-Z]{24,99})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "Stripe Publishable Key", Pattern: regexp.MustCompile(`\b(pk_live_[0-9a-zA-Z]{24,99})`), BaseConfidence: 40, SecretGroup: 1},
		{Type: "Twilio API Key", Pattern: regexp.MustCompile(`\b(SK[0-9a-fA-F]{32})\b`), BaseConfidence: 70, SecretGroup: 1},
		{Type: "SendGrid API Key", Pattern: regexp.MustCompile(`\b(SG\.[A-Za-z0-9_\-]{22}\.[A-Za-z0-9_\-]{43})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "Mailgun API Key", Pattern: regexp.MustCompile(`\b(key-[0-9a-zA-Z]{32})\b`), BaseConfidence: 75, SecretGroup: 1},
		{Type: "Shopify Access Token", Pattern: regexp.MustCompile(`\b(shp(?:at|ca|pa|ss)_[a-fA-F0-9]{32})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "Square Access Token", Pattern: regexp.MustCompile(`\b(sq0atp-[0-9A-Za-z_\-]{22})`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "NPM Token", Pattern: regexp.MustCompile(`\b(npm_[A-Za-z0-9]{36})`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "OpenAI API Key", Pattern: regexp.MustCompile(`\b(sk-(?:proj-)?[A-Za-z0-9_\-]{20,}T3BlbkFJ[A-Za-z0-9_\-]{20,})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "Anthropic API Key", Pattern: regexp.MustCompile(`\b(sk-ant-(?:api|admin)\d{2}-[A-Za-z0-9_\-]{80,})`), BaseConfidence: 95, SecretGroup: 1},
		{Type: "JWT", Pattern: regexp.MustCompile(`\b(eyJ[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{10,})`), BaseConfidence: 70, SecretGroup: 1},
		{Type: "Private Key", Pattern: regexp.MustCompile(`(-----BEGIN (?:RSA |EC |OPENSSH |DSA |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----)`), BaseConfidence: 95, SecretGroup: 1, Adjusters: []types.Adjuster{Placeholder}},
		{Type: "Heroku API Key", Pattern: regexp.MustCompile(`(?i)heroku[a-z_\-]*["'\s]*[:=]\s*["']?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`), BaseConfidence: 80, SecretGroup: 1, Adjusters: ContextFreeAdjusters},
		{Type: "Database Connection String", Pattern: regexp.MustCompile(`((?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s"'` + "`" + `:@/]+:[^\s"'` + "`" + `@/]+@[^\s"'` + "`" + `]+)`), BaseConfidence: 90, SecretGroup: 1},
		{Type: "Basic Auth URL", Pattern: regexp.MustCompile(`(https?://[^\s"'` + "`" + `:@/]+:[^\s"'` + "`" + `@/]+@[A-Za-z0-9.\-]+)`), BaseConfidence: 75, SecretGroup: 1},
		{Type: "Bearer Token", Pattern: regexp.MustCompile(`(?i)` + quote + `Bearer\s+([A-Za-z0-9_\-.=+/]{20,})` + quote), BaseConfidence: 65, SecretGroup: 1, Adjusters: ContextFreeAdjusters},
		{Type: "Generic API Key", Pattern: regexp.MustCompile(`(?i)(?:api[_\-]?key|access[_\-]?token|auth[_\-]?token|client[_\-]?secret)["']?\s*[:=]\s*` + quote + `([A-Za-z0-9_\-./+=]{16,})` + quote), BaseConfidence: 55, SecretGroup: 1, Adjusters: ContextFreeAdjusters},
		{Type: "Generic Password", Pattern: regexp.MustCompile(`(?i)(?:secret|passwd|password|pwd)["']?\s*[:=]\s*` + quote + `([^\s"'` + "`" + `]{8,})` + quote), BaseConfidence: 45, SecretGroup: 1, Adjusters: ContextFreeAdjusters},
	}
}

// urlArgument matches the URL-like first argument of an HTTP client call:
// absolute or protocol-relative URLs, absolute paths and template literals
// starting with an interpolation.
const urlArgument = `((?:https?:)?//` + notQuote + `+|/` + notQuote + `*|\$\{` + notQuote + `+)`

const (
	// ExplicitVerbConfidence is the score of a call naming its verb with a relative URL.
	ExplicitVerbConfidence = 75
	// AbsoluteURLBonus is added to explicit-verb calls targeting an absolute URL.
	AbsoluteURLBonus = 10
	// NoVerbCallConfidence scores a recognized call whose verb cannot be determined.
	NoVerbCallConfidence = 60
	// PathLiteralConfidence scores a bare path literal without call context.
	PathLiteralConfidence = 30
	// APIPrefixBonus is added to path literals starting with an API-looking segment.
	APIPrefixBonus = 10
	// BaseURLBonus is added to bare heuristics located near an API root literal.
	BaseURLBonus = 10
	// TemplateConfidence scores template-literal URL construction.
	TemplateConfidence = 40
	// AbsoluteLiteralConfidence scores bare absolute API-looking URL literals.
	AbsoluteLiteralConfidence = 45
	// HeuristicCeiling caps every bare heuristic so it never reaches the medium tier.
	HeuristicCeiling = 50
)

// APIPath recognizes path prefixes that typically denote an API.
var APIPath = regexp.MustCompile(`(?i)^/(?:api|rest|graphql|gql|v\d+|services?|backend|auth|oauth2?)(?:[/?.]|$)`)

var apiLikeURL = regexp.MustCompile(`(?i)^(?:https?:)?//(?:api[.\-][^/]+|[^/]+/(?:.*/)?(?:api|rest|graphql|gql|v\d+)(?:[/?.]|$))`)

// optionsSpan skips the text between two properties of an options object. One
// level of nested objects such as headers: {...} is allowed.
const optionsSpan = `(?:[^{}]|\{[^{}]*\}){0,400}?`

// httpReceiver matches the receivers whose get/post/... methods issue requests.
const httpReceiver = `(?:^|[^\w$.])(?:\$|\$http|axios|http|httpClient|api|apiClient|client|request|superagent|ky|this\.\$?http(?:Client)?)`

func defaultEndpointRules() []types.EndpointRule {
	return []types.EndpointRule{
		{
			Name:           "fetch",
			Pattern:        regexp.MustCompile(`\bfetch\(\s*` + quote + urlArgument + quote + `(?:\s*,\s*\{` + optionsSpan + `\bmethod\s*:\s*` + quote + `([A-Za-z]+)` + quote + `)?`),
			BaseConfidence: ExplicitVerbConfidence,
			Kind:           types.KindCall,
			MethodHint:     types.MethodUnknown,
			EndpointGroup:  1,
			MethodGroup:    2,
		},
		{
			Name:           "client-verb",
			Pattern:        regexp.MustCompile(httpReceiver + `\.(get|post|put|delete|patch)\(\s*` + quote + urlArgument + quote),
			BaseConfidence: ExplicitVerbConfidence,
			Kind:           types.KindCall,
			EndpointGroup:  2,
			MethodGroup:    1,
		},
		{
			Name:           "xhr-open",
			Pattern:        regexp.MustCompile(`\.open\(\s*` + quote + `((?i:get|post|put|delete|patch))` + quote + `\s*,\s*` + quote + urlArgument + quote),
			BaseConfidence: ExplicitVerbConfidence,
			Kind:           types.KindCall,
			EndpointGroup:  2,
			MethodGroup:    1,
		},
		{
			Name:           "request-object",
			Pattern:        regexp.MustCompile(`\{` + optionsSpan + `\burl\s*:\s*` + quote + urlArgument + quote + optionsSpan + `\b(?:method|type)\s*:\s*` + quote + `([A-Za-z]+)` + quote),
			BaseConfidence: ExplicitVerbConfidence,
			Kind:           types.KindCall,
			EndpointGroup:  1,
			MethodGroup:    2,
		},
		{
			Name:           "request-object-method-first",
			Pattern:        regexp.MustCompile(`\{` + optionsSpan + `\b(?:method|type)\s*:\s*` + quote + `([A-Za-z]+)` + quote + optionsSpan + `\burl\s*:\s*` + quote + urlArgument + quote),
			BaseConfidence: ExplicitVerbConfidence,
			Kind:           types.KindCall,
			EndpointGroup:  2,
			MethodGroup:    1,
		},
		{
			Name:           "template-base",
			Pattern:        regexp.MustCompile("`" + `(\$\{[A-Za-z_$][\w$.]*\}/[^` + "`" + `\s]*)` + "`"),
			BaseConfidence: TemplateConfidence,
			Kind:           types.KindTemplate,
			MethodHint:     types.MethodUnknown,
			EndpointGroup:  1,
		},
		{
			Name:           "template-absolute",
			Pattern:        regexp.MustCompile("`" + `(https?://[^` + "`" + `\s$]*\$\{[^` + "`" + `\s]*)` + "`"),
			BaseConfidence: TemplateConfidence,
			Kind:           types.KindTemplate,
			MethodHint:     types.MethodUnknown,
			EndpointGroup:  1,
		},
		{
			Name:           "path-literal",
			Pattern:        regexp.MustCompile(quote + `(/[A-Za-z0-9_\-]+(?:/[A-Za-z0-9_\-.:{}$]+)+/?(?:\?[^\s"'` + "`" + `]*)?)` + quote),
			BaseConfidence: PathLiteralConfidence,
			Kind:           types.KindLiteral,
			MethodHint:     types.MethodUnknown,
			EndpointGroup:  1,
		},
		{
			Name:           "absolute-api-url",
			Pattern:        regexp.MustCompile(quote + `(https?://[A-Za-z0-9.\-]+(?::\d+)?/` + notQuote + `*)` + quote),
			BaseConfidence: AbsoluteLiteralConfidence,
			Kind:           types.KindAbsolute,
			MethodHint:     types.MethodUnknown,
			EndpointGroup:  1,
			Require:        apiLikeURL,
		},
	}
}
