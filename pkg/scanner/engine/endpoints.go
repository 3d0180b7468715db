package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/scanner/rules"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/rs/zerolog/log"
)

var baseURLLiteral = regexp.MustCompile(`["'` + "`" + `](https?://[A-Za-z0-9.\-]+(?::\d+)?(?:/[A-Za-z0-9_\-./]*)?)["'` + "`" + `]`)

var staticAssetSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".bmp",
	".css", ".scss", ".less",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp4", ".webm", ".mp3", ".wav",
	".js", ".mjs", ".map", ".html", ".htm",
}

var noiseHosts = []string{"www.w3.org", "schemas.xmlsoap.org", "json-schema.org", "schemas.microsoft.com", "purl.org"}

// EndpointExtractor applies the catalog's endpoint rules to file contents.
type EndpointExtractor struct {
	rules []types.EndpointRule
	opts  Options
}

func NewEndpointExtractor(catalog *rules.Catalog, opts Options) *EndpointExtractor {
	return &EndpointExtractor{rules: catalog.EndpointRules(), opts: opts}
}

type baseCandidate struct {
	pos int
	url string
}

// Extract returns endpoint findings, rules in catalog order and matches in
// discovery order. Every rule fires on its own, so one literal can be reported
// by a call rule and by a literal heuristic.
func (x *EndpointExtractor) Extract(content string, fileURL string) []types.EndpointFinding {
	var findings []types.EndpointFinding

	state := &fileState{
		content:     content,
		assigned:    map[string]string{},
		window:      x.opts.BaseURLWindow,
		ruleTimeout: x.opts.RuleTimeout,
	}
	state.bases = x.baseCandidates(content, fileURL)

	for _, rule := range x.rules {
		completed := eachMatch(rule.Pattern, content, x.opts.RuleTimeout, func(loc []int) {
			start, end := groupSpan(loc, rule.EndpointGroup)
			if start < 0 || end <= start {
				return
			}
			endpoint := content[start:end]
			if IsStaticAsset(endpoint) || isNoise(endpoint) {
				return
			}
			if rule.Require != nil && !rule.Require.MatchString(endpoint) {
				return
			}

			method, explicit := methodOf(rule, content, loc)
			absolute := isAbsolute(endpoint)

			baseURL := ""
			if !absolute {
				baseURL = state.inferBaseURL(endpoint, start)
			}

			findings = append(findings, types.EndpointFinding{
				Method:     method,
				Endpoint:   endpoint,
				Confidence: score(rule, explicit, absolute, endpoint, baseURL),
				File:       fileURL,
				BaseURL:    baseURL,
			})
		})

		if !completed {
			log.Trace().Str("rule", rule.Name).Str("file", fileURL).Dur("budget", x.opts.RuleTimeout).Msg("Endpoint rule exceeded its time budget, results truncated")
		}
	}

	return findings
}

func (x *EndpointExtractor) baseCandidates(content string, fileURL string) []baseCandidate {
	var bases []baseCandidate
	completed := eachMatch(baseURLLiteral, content, x.opts.RuleTimeout, func(loc []int) {
		start, end := groupSpan(loc, 1)
		candidate := content[start:end]
		if isPlausibleRoot(candidate) {
			bases = append(bases, baseCandidate{pos: start, url: strings.TrimSuffix(candidate, "/")})
		}
	})
	if !completed {
		log.Trace().Str("file", fileURL).Msg("Base URL discovery exceeded its time budget, results truncated")
	}
	return bases
}

type fileState struct {
	content     string
	bases       []baseCandidate
	assigned    map[string]string
	window      int
	ruleTimeout time.Duration
}

// inferBaseURL resolves the API root for a relative endpoint. A template literal
// starting with ${ident} uses the absolute URL assigned to ident in the same file;
// anything else uses the closest API root literal within the window.
func (s *fileState) inferBaseURL(endpoint string, pos int) string {
	if strings.HasPrefix(endpoint, "${") {
		if end := strings.Index(endpoint, "}"); end > 2 {
			ident := endpoint[2:end]
			if dot := strings.LastIndexByte(ident, '.'); dot >= 0 {
				ident = ident[dot+1:]
			}
			if base := s.assignedURL(ident); base != "" {
				return base
			}
		}
	}

	if s.window <= 0 {
		return ""
	}

	best, bestDistance := "", s.window+1
	for _, b := range s.bases {
		distance := b.pos - pos
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			best, bestDistance = b.url, distance
		}
	}
	return best
}

func (s *fileState) assignedURL(ident string) string {
	if ident == "" {
		return ""
	}
	if v, ok := s.assigned[ident]; ok {
		return v
	}

	re := regexp.MustCompile(`(?:^|[^\w$])` + regexp.QuoteMeta(ident) + `["']?\s*(?::|=)\s*["'` + "`" + `](https?://[^\s"'` + "`" + `]+)["'` + "`" + `]`)
	base := ""
	eachMatch(re, s.content, s.ruleTimeout, func(loc []int) {
		if base != "" {
			return
		}
		start, end := groupSpan(loc, 1)
		if candidate := s.content[start:end]; !IsStaticAsset(candidate) {
			base = strings.TrimSuffix(candidate, "/")
		}
	})
	s.assigned[ident] = base
	return base
}

func methodOf(rule types.EndpointRule, content string, loc []int) (types.Method, bool) {
	if rule.MethodGroup > 0 {
		if start, end := groupSpan(loc, rule.MethodGroup); start >= 0 {
			if m := types.ParseMethod(content[start:end]); m != types.MethodUnknown {
				return m, true
			}
		}
		return types.MethodUnknown, false
	}
	if rule.MethodHint != "" && rule.MethodHint != types.MethodUnknown {
		return rule.MethodHint, true
	}
	return types.MethodUnknown, false
}

func score(rule types.EndpointRule, explicit bool, absolute bool, endpoint string, baseURL string) int {
	if rule.Kind == types.KindCall {
		if !explicit {
			return min(rule.BaseConfidence, rules.NoVerbCallConfidence)
		}
		c := rule.BaseConfidence
		if absolute {
			c += rules.AbsoluteURLBonus
		}
		return types.ClampConfidence(c)
	}

	c := rule.BaseConfidence
	if rule.Kind == types.KindLiteral && rules.APIPath.MatchString(endpoint) {
		c += rules.APIPrefixBonus
	}
	if baseURL != "" {
		c += rules.BaseURLBonus
	}
	return types.ClampConfidence(min(c, rules.HeuristicCeiling))
}

func isAbsolute(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "//")
}

func hostOf(u string) string {
	rest := u
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[i+2:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

func pathOf(u string) string {
	rest := u
	if isAbsolute(u) {
		rest = u[strings.Index(u, "//")+2:]
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return ""
		}
		rest = rest[i:]
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// IsStaticAsset reports whether the URL or path points at a static file such as
// an image, stylesheet, font or script rather than an API.
func IsStaticAsset(u string) bool {
	p := strings.ToLower(pathOf(u))
	for _, suffix := range staticAssetSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func isNoise(endpoint string) bool {
	if !isAbsolute(endpoint) {
		return false
	}
	host := hostOf(endpoint)
	for _, h := range noiseHosts {
		if host == h {
			return true
		}
	}
	return false
}

func isPlausibleRoot(u string) bool {
	if IsStaticAsset(u) || isNoise(u) {
		return false
	}
	p := pathOf(u)
	return p == "" || p == "/" || rules.APIPath.MatchString(p) || strings.HasPrefix(hostOf(u), "api.")
}
