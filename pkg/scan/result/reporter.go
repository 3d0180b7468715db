package result

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/format"
	"github.com/CompassSecurity/jsleek/pkg/logging"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/acarl005/stripansi"
	"github.com/rxwycdh/rxhash"
)

// MatchDisplayLength is the number of characters of a match shown in tables.
const MatchDisplayLength = 50

func ReportSecrets(findings []types.SecretFinding) {
	for _, finding := range findings {
		ReportSecret(finding)
	}
}

func ReportSecret(finding types.SecretFinding) {
	logging.Hit().
		Kind(logging.FindingKindSecret).
		Str("type", finding.Type).
		Int("confidence", finding.Confidence).
		Str("tier", types.TierOf(finding.Confidence)).
		Str("value", Clean(finding.Match)).
		Str("file", finding.File).
		Msg("SECRET")
}

func ReportEndpoints(findings []types.EndpointFinding) {
	for _, finding := range findings {
		ReportEndpoint(finding)
	}
}

func ReportEndpoint(finding types.EndpointFinding) {
	event := logging.Hit().
		Kind(logging.FindingKindEndpoint).
		Str("method", string(finding.Method)).
		Bool("write", finding.Method.IsWrite()).
		Str("endpoint", Clean(finding.Endpoint)).
		Int("confidence", finding.Confidence).
		Str("tier", types.TierOf(finding.Confidence)).
		Str("file", finding.File)

	if finding.BaseURL != "" {
		event = event.Str("baseUrl", finding.BaseURL).Str("url", Clean(finding.FullURL()))
	}

	event.Msg("ENDPOINT")
}

// Clean makes a matched value safe to print on a terminal.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return stripansi.Strip(text)
}

// DeduplicateSecrets drops repeated identical findings, keeping the first occurrence.
func DeduplicateSecrets(findings []types.SecretFinding) []types.SecretFinding {
	return deduplicate(findings)
}

// DeduplicateEndpoints drops repeated identical findings, keeping the first occurrence.
// The same endpoint reported by different rules with different scores is kept once per score.
func DeduplicateEndpoints(findings []types.EndpointFinding) []types.EndpointFinding {
	return deduplicate(findings)
}

func deduplicate[T any](findings []T) []T {
	seen := make(map[string]struct{}, len(findings))
	out := make([]T, 0, len(findings))
	for _, finding := range findings {
		hash, err := rxhash.HashStruct(finding)
		if err != nil {
			out = append(out, finding)
			continue
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		out = append(out, finding)
	}
	return out
}

// Report is the JSON document written by --output.
type Report struct {
	Target     string                `json:"target"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
	Files      int                   `json:"files"`
	Failures   []Failure             `json:"failures,omitempty"`
	Secrets    []types.SecretFinding `json:"secrets"`
	Endpoints  []ReportedEndpoint    `json:"endpoints"`
}

// Failure is a file that could not be scanned.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ReportedEndpoint adds the resolved URL to an endpoint finding.
type ReportedEndpoint struct {
	types.EndpointFinding
	FullURL string `json:"fullUrl"`
	Tier    string `json:"tier"`
}

func WithFullURL(endpoints []types.EndpointFinding) []ReportedEndpoint {
	out := make([]ReportedEndpoint, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, ReportedEndpoint{EndpointFinding: e, FullURL: e.FullURL(), Tier: types.TierOf(e.Confidence)})
	}
	return out
}

func WriteJSON(w io.Writer, report Report) error {
	if report.Secrets == nil {
		report.Secrets = []types.SecretFinding{}
	}
	if report.Endpoints == nil {
		report.Endpoints = []ReportedEndpoint{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed writing JSON report: %w", err)
	}
	return nil
}

// WriteTable prints both finding lists as aligned text tables.
func WriteTable(w io.Writer, secrets []types.SecretFinding, endpoints []types.EndpointFinding) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "SECRETS (%d)\n", len(secrets))
	fmt.Fprintln(tw, "TIER\tCONFIDENCE\tTYPE\tMATCH\tFILE")
	for _, s := range secrets {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", types.TierOf(s.Confidence), s.Confidence, s.Type, format.Truncate(Clean(s.Match), MatchDisplayLength), s.File)
	}

	fmt.Fprintf(tw, "\nENDPOINTS (%d)\n", len(endpoints))
	fmt.Fprintln(tw, "TIER\tCONFIDENCE\tMETHOD\tWRITE\tURL\tFILE")
	for _, e := range endpoints {
		write := "-"
		if e.Method.IsWrite() {
			write = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", types.TierOf(e.Confidence), e.Confidence, e.Method, write, Clean(e.FullURL()), e.File)
	}

	return tw.Flush()
}
