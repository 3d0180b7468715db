package rules

import (
	"math"
	"regexp"
	"strings"

	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
)

// AdjusterVersion is bumped whenever a delta, marker or threshold below changes,
// because confidence scores are only comparable within one version.
const AdjusterVersion = 1

const (
	PlaceholderDelta    = -20
	LowEntropyDelta     = -25
	SuggestiveNameDelta = 10

	LowEntropyMinLength = 16
	LowEntropyThreshold = 3.0
)

var placeholderMarkers = []string{
	"example",
	"sample",
	"dummy",
	"placeholder",
	"your_",
	"your-",
	"<your",
	"changeme",
	"xxxxxx",
	"redacted",
	"insert_",
}

var suggestiveNameParts = []string{"key", "secret", "token", "passw", "auth", "credential"}

// identifier followed by an assignment and the opening quote of the literal
var assignmentTail = regexp.MustCompile(`([A-Za-z_$][\w$\-]*)["']?\s*(?::|:?=)\s*["'` + "`" + `]$`)

// Placeholder lowers matches that sit in obvious sample values like "<YOUR_KEY>".
var Placeholder = types.Adjuster{
	Name:  "placeholder",
	Delta: PlaceholderDelta,
	Applies: func(m types.MatchContext) bool {
		return containsAny(strings.ToLower(m.Match), placeholderMarkers) ||
			containsAny(strings.ToLower(m.Literal), placeholderMarkers)
	},
}

// LowEntropy lowers long matches made of few distinct characters.
var LowEntropy = types.Adjuster{
	Name:  "low-entropy",
	Delta: LowEntropyDelta,
	Applies: func(m types.MatchContext) bool {
		return len(m.Match) >= LowEntropyMinLength && ShannonEntropy(m.Match) < LowEntropyThreshold
	},
}

// SuggestiveName raises matches assigned to identifiers such as apiKey or authToken.
var SuggestiveName = types.Adjuster{
	Name:  "suggestive-name",
	Delta: SuggestiveNameDelta,
	Applies: func(m types.MatchContext) bool {
		if !m.StartsLiteral {
			return false
		}
		sub := assignmentTail.FindStringSubmatch(m.Before)
		if sub == nil {
			return false
		}
		return containsAny(strings.ToLower(sub[1]), suggestiveNameParts)
	},
}

// DefaultAdjusters apply to every rule that does not declare its own.
var DefaultAdjusters = []types.Adjuster{Placeholder, LowEntropy, SuggestiveName}

// ContextFreeAdjusters is used by rules whose pattern already requires a
// suggestive key name, so the name must not count twice.
var ContextFreeAdjusters = []types.Adjuster{Placeholder, LowEntropy}

// Adjust applies the adjusters to a base confidence. When adjusters disagree the
// lower outcome wins: any applicable negative delta (the most negative one) is
// used and positive deltas are ignored; otherwise the largest positive delta is used.
func Adjust(base int, adjusters []types.Adjuster, m types.MatchContext) int {
	lowest, highest := 0, 0
	for _, a := range adjusters {
		if a.Applies == nil || !a.Applies(m) {
			continue
		}
		if a.Delta < lowest {
			lowest = a.Delta
		}
		if a.Delta > highest {
			highest = a.Delta
		}
	}

	delta := highest
	if lowest < 0 {
		delta = lowest
	}
	return types.ClampConfidence(base + delta)
}

// ShannonEntropy returns the entropy of s in bits per character.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]float64)
	for _, c := range s {
		freq[c]++
	}

	entropy := 0.0
	length := float64(len([]rune(s)))
	for _, count := range freq {
		p := count / length
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	return entropy
}

func containsAny(s string, parts []string) bool {
	if s == "" {
		return false
	}
	for _, p := range parts {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
