package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/rs/zerolog/log"
	"github.com/trufflesecurity/trufflehog/v3/pkg/detectors"
	"github.com/trufflesecurity/trufflehog/v3/pkg/engine/defaults"
	"github.com/wandb/parallel"
)

const (
	TruffleHogVerifiedConfidence   = 95
	TruffleHogUnverifiedConfidence = 60
)

// TruffleHog runs the TruffleHog default detectors as an additional secret pass.
type TruffleHog struct {
	detectors []detectors.Detector
	verify    bool
	threads   int
}

func NewTruffleHog(verify bool, threads int) *TruffleHog {
	return &TruffleHog{detectors: defaults.DefaultDetectors(), verify: verify, threads: max(1, threads)}
}

type detectorResult struct {
	index    int
	findings []types.SecretFinding
}

// Scan runs all detectors on content. Results are ordered by detector, and only
// values that literally occur in content are reported. With verification enabled
// only verified results are kept.
func (t *TruffleHog) Scan(ctx context.Context, content string, fileURL string) []types.SecretFinding {
	if content == "" {
		return nil
	}

	data := []byte(content)
	group := parallel.Collect[detectorResult](parallel.Limited(ctx, t.threads))

	for i, detector := range t.detectors {
		group.Go(func(ctx context.Context) (detectorResult, error) {
			hits, err := detector.FromData(ctx, t.verify, data)
			if err != nil {
				log.Debug().Err(err).Str("detector", detector.Type().String()).Str("file", fileURL).Msg("TruffleHog detector failed")
				return detectorResult{index: i}, nil
			}

			res := detectorResult{index: i}
			for _, hit := range hits {
				if t.verify && !hit.Verified {
					continue
				}

				match := rawMatch(content, hit)
				if match == "" {
					continue
				}

				confidence := TruffleHogUnverifiedConfidence
				if hit.Verified {
					confidence = TruffleHogVerifiedConfidence
				}
				res.findings = append(res.findings, types.SecretFinding{
					Type:       "TruffleHog " + hit.DetectorType.String(),
					Match:      match,
					Confidence: confidence,
					File:       fileURL,
				})
			}
			return res, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		log.Error().Stack().Err(err).Msg("Failed waiting for TruffleHog detectors")
	}

	slices.SortFunc(results, func(a, b detectorResult) int { return a.index - b.index })

	var findings []types.SecretFinding
	for _, r := range results {
		findings = append(findings, r.findings...)
	}
	return findings
}

func rawMatch(content string, hit detectors.Result) string {
	for _, raw := range [][]byte{hit.RawV2, hit.Raw} {
		if len(raw) > 0 && strings.Contains(content, string(raw)) {
			return string(raw)
		}
	}
	return ""
}
