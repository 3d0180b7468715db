package engine

import (
	"github.com/CompassSecurity/jsleek/pkg/scanner/rules"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/rs/zerolog/log"
)

// SecretScanner applies the catalog's secret rules to file contents.
type SecretScanner struct {
	rules []types.SecretRule
	opts  Options
}

func NewSecretScanner(catalog *rules.Catalog, opts Options) *SecretScanner {
	return &SecretScanner{rules: catalog.SecretRules(), opts: opts}
}

// Scan returns every match of every rule, rules in catalog order and matches in
// discovery order. Identical matches are kept; deduplication is up to the caller.
func (s *SecretScanner) Scan(content string, fileURL string) []types.SecretFinding {
	var findings []types.SecretFinding

	for _, rule := range s.rules {
		adjusters := rule.Adjusters
		if adjusters == nil {
			adjusters = rules.DefaultAdjusters
		}

		completed := eachMatch(rule.Pattern, content, s.opts.RuleTimeout, func(loc []int) {
			start, end := groupSpan(loc, rule.SecretGroup)
			if start < 0 || end <= start {
				return
			}

			mc := matchContext(content, start, end)
			findings = append(findings, types.SecretFinding{
				Type:       rule.Type,
				Match:      mc.Match,
				Confidence: rules.Adjust(rule.BaseConfidence, adjusters, mc),
				File:       fileURL,
			})
		})

		if !completed {
			log.Trace().Str("rule", rule.Type).Str("file", fileURL).Dur("budget", s.opts.RuleTimeout).Msg("Secret rule exceeded its time budget, results truncated")
		}
	}

	return findings
}
