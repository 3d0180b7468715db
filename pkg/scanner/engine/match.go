package engine

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
)

// contextWindow bounds how far around a match the adjusters may look.
const contextWindow = 64

// literalWindow bounds the search for the closing quote of an enclosing literal.
const literalWindow = 256

// Options configures the scanners.
type Options struct {
	// RuleTimeout is the matching budget of one rule on one file. Zero disables it.
	RuleTimeout time.Duration
	// BaseURLWindow is the maximum byte distance between a relative endpoint
	// and the API root literal it is resolved against.
	BaseURLWindow int
}

func DefaultOptions() Options {
	return Options{
		RuleTimeout:   2 * time.Second,
		BaseURLWindow: 2048,
	}
}

// eachMatch calls fn with the submatch indexes of every non-overlapping match of
// re in content, in order of discovery. The budget is checked between matches;
// once exhausted matching stops and false is returned. Go's regexp guarantees
// linear time per search, so a single search cannot run away.
func eachMatch(re *regexp.Regexp, content string, budget time.Duration, fn func(loc []int)) bool {
	var deadline time.Time
	if budget > 0 {
		deadline = time.Now().Add(budget)
	}

	pos := 0
	for pos <= len(content) {
		if budget > 0 && time.Now().After(deadline) {
			return false
		}

		loc := re.FindStringSubmatchIndex(content[pos:])
		if loc == nil {
			return true
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}

		if loc[1] == loc[0] {
			// empty matches carry nothing to report, step over one rune
			if loc[1] >= len(content) {
				return true
			}
			_, size := utf8.DecodeRuneInString(content[loc[1]:])
			pos = loc[1] + size
			continue
		}

		fn(loc)
		pos = loc[1]
	}
	return true
}

// groupSpan returns the byte span of capture group g, or -1,-1 when it did not participate.
func groupSpan(loc []int, g int) (int, int) {
	if 2*g+1 >= len(loc) {
		return -1, -1
	}
	return loc[2*g], loc[2*g+1]
}

func isQuote(b byte) bool {
	return b == '"' || b == '\'' || b == '`'
}

// matchContext collects the same-line surroundings of content[start:end].
func matchContext(content string, start, end int) types.MatchContext {
	from := max(0, start-contextWindow)
	if nl := strings.LastIndexByte(content[from:start], '\n'); nl >= 0 {
		from += nl + 1
	}
	to := min(len(content), end+contextWindow)
	if nl := strings.IndexByte(content[end:to], '\n'); nl >= 0 {
		to = end + nl
	}

	m := types.MatchContext{
		Match:  content[start:end],
		Before: content[from:start],
		After:  content[end:to],
	}

	if start > 0 && isQuote(content[start-1]) {
		m.StartsLiteral = true
		q := content[start-1]
		limit := min(len(content), end+literalWindow)
		closing := strings.IndexByte(content[end:limit], q)
		if nl := strings.IndexByte(content[end:limit], '\n'); closing < 0 || (nl >= 0 && nl < closing) {
			m.Literal = m.Match
		} else {
			m.Literal = content[start : end+closing]
		}
		return m
	}

	if open := strings.LastIndexAny(m.Before, "\"'`"); open >= 0 {
		q := m.Before[open]
		if closing := strings.IndexByte(m.After, q); closing >= 0 {
			m.Literal = m.Before[open+1:] + m.Match + m.After[:closing]
		}
	}
	return m
}
