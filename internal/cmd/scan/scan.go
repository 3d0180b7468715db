package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/config"
	"github.com/CompassSecurity/jsleek/pkg/format"
	"github.com/CompassSecurity/jsleek/pkg/logging"
	"github.com/CompassSecurity/jsleek/pkg/resource"
	"github.com/CompassSecurity/jsleek/pkg/scan/orchestrator"
	"github.com/CompassSecurity/jsleek/pkg/scan/result"
	"github.com/CompassSecurity/jsleek/pkg/scanner"
	"github.com/CompassSecurity/jsleek/pkg/system"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Target selects where the scripts come from. Exactly one source is set.
type Target struct {
	URL       string
	Dir       string
	URLPrefix string
	HAR       string
	Archive   string
	WARC      string
}

type ScanOptions struct {
	config.ScanOptions
	Target      Target
	Output      string
	Table       bool
	headers     []string
	maxFileSize string
}

var options = ScanOptions{ScanOptions: config.DefaultScanOptions()}

func NewScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the scripts of a web page for secrets and API endpoints",
		Long: `Scan every script a web page loads, including inline scripts and source maps, for leaked secrets and API endpoint references.

Findings are logged as hits while the scan runs. Every finding has a confidence between 0 and 100:
high (80+), medium (50-79) and low (below 50).

### Sources
- --url fetches a live page and the scripts it references
- --dir scans a local build output or a mirrored site
- --har scans the responses of a HAR capture exported from the browser devtools
- --archive scans a zip or tar bundle, nested archives included
- --warc scans the responses of a WARC crawl (.warc or .warc.gz)

Press s while scanning to print the progress, t/d/i/w/e to switch the log level.
		`,
		Example: `
# Scan a live page
jsleek scan --url https://shop.example.com/

# Scan a page with a session cookie and probe for source maps
jsleek scan --url https://shop.example.com/account --header "Cookie: session=abc" --probe-maps

# Scan a HAR capture and write a JSON report with medium and high findings only
jsleek scan --har capture.har --min-confidence 50 --output report.json

# Scan a crawl without hammering the site again
jsleek scan --warc crawl.warc.gz

# Scan a local build output, print a deduplicated table of AWS findings
jsleek scan --dir ./dist --url-prefix https://shop.example.com --table --dedup --search aws
		`,
		Run: Scan,
	}

	flags := scanCmd.Flags()
	flags.StringVarP(&options.Target.URL, "url", "u", "", "URL of the page to scan")
	flags.StringVarP(&options.Target.Dir, "dir", "d", "", "Local directory to scan")
	flags.StringVar(&options.Target.URLPrefix, "url-prefix", "", "URL prefix reported for files of --dir instead of file:// URLs")
	flags.StringVar(&options.Target.HAR, "har", "", "HAR capture to scan")
	flags.StringVar(&options.Target.Archive, "archive", "", "Archive bundle to scan (zip, tar, gz, 7z, rar)")
	flags.StringVar(&options.Target.WARC, "warc", "", "WARC crawl to scan (.warc or .warc.gz)")
	scanCmd.MarkFlagsOneRequired("url", "dir", "har", "archive", "warc")
	scanCmd.MarkFlagsMutuallyExclusive("url", "dir", "har", "archive", "warc")

	flags.StringArrayVarP(&options.headers, "header", "H", nil, "Header sent with page requests, e.g. \"Cookie: session=abc\" (repeatable)")
	flags.DurationVar(&options.Timeout, "timeout", options.Timeout, "HTTP timeout for page, script and rule requests")
	flags.BoolVar(&options.ProbeSourceMaps, "probe-maps", options.ProbeSourceMaps, "Request <script>.map for every page script")
	flags.Float64Var(&options.RequestsPerSecond, "rate", options.RequestsPerSecond, "Max page and script requests per second, 0 is unlimited")

	flags.StringVar(&options.RulesFile, "rules", "", "Additional rules file (yaml, json or json5), local path or URL")
	flags.DurationVar(&options.RuleTimeout, "rule-timeout", options.RuleTimeout, "Matching budget of one rule on one file")
	flags.StringVarP(&options.maxFileSize, "max-file-size", "", format.HumanSize(options.MaxFileSize), "Max file size to scan, larger files are reported as failures")
	flags.BoolVar(&options.TruffleHog, "truffle-hog", options.TruffleHog, "Run the TruffleHog detectors as an additional secret pass")
	flags.BoolVar(&options.TruffleHogVerification, "truffle-hog-verification", options.TruffleHogVerification, "Verify TruffleHog findings against the provider, sends the secrets to the provider")
	flags.IntVarP(&options.MaxScanGoRoutines, "threads", "", options.MaxScanGoRoutines, "Number of concurrent TruffleHog detectors")

	flags.IntVarP(&options.MinConfidence, "min-confidence", "c", options.MinConfidence, "Only report findings with at least this confidence (0-100)")
	flags.StringVarP(&options.Search, "search", "s", "", "Only report findings containing this term (case-insensitive)")
	flags.BoolVar(&options.Dedup, "dedup", options.Dedup, "Collapse identical findings in the report")
	flags.StringVarP(&options.Output, "output", "o", "", "Write the report as JSON to this file")
	flags.BoolVar(&options.Table, "table", false, "Print the report as a table when the scan completed")

	return scanCmd
}

func Scan(cmd *cobra.Command, args []string) {
	if err := prepareOptions(&options); err != nil {
		log.Fatal().Err(err).Msg("Invalid options")
	}

	ctx, stop := system.GracefulContext(cmd.Context())
	defer stop()

	if err := Run(ctx, options, cmd.OutOrStdout()); err != nil {
		if errors.Is(err, orchestrator.ErrScanCanceled) {
			log.Warn().Msg("Scan canceled, no report written")
			return
		}
		log.Fatal().Err(err).Msg("Scan failed")
	}
}

func prepareOptions(opts *ScanOptions) error {
	if opts.maxFileSize != "" {
		size, err := config.ParseMaxFileSize(opts.maxFileSize)
		if err != nil {
			return err
		}
		opts.MaxFileSize = size
	}

	headers, err := config.ParseHeaders(opts.headers)
	if err != nil {
		return err
	}
	opts.Headers = headers

	if opts.Target.URL != "" {
		if err := config.ValidateURL(opts.Target.URL, "page URL"); err != nil {
			return err
		}
	}
	return opts.Validate()
}

// Run scans the target and writes the requested reports. Table output goes to out.
func Run(ctx context.Context, opts ScanOptions, out io.Writer) error {
	lister, target, cleanup, err := newLister(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	catalog := scanner.DefaultCatalog()
	if opts.RulesFile != "" {
		catalog, err = scanner.LoadCatalog(ctx, opts.RulesFile)
		if err != nil {
			return fmt.Errorf("failed loading rules: %w", err)
		}
	}

	engineOpts := scanner.DefaultOptions()
	engineOpts.RuleTimeout = opts.RuleTimeout

	orchOpts := orchestrator.Options{
		MaxFileSize: opts.MaxFileSize,
		OnFindings: func(secrets []scanner.SecretFinding, endpoints []scanner.EndpointFinding) {
			result.ReportSecrets(result.SecretsAbove(secrets, opts.MinConfidence))
			result.ReportEndpoints(result.EndpointsAbove(endpoints, opts.MinConfidence))
		},
	}
	if opts.TruffleHog {
		orchOpts.Extra = scanner.NewTruffleHog(opts.TruffleHogVerification, opts.MaxScanGoRoutines)
	}

	store := result.NewStore()
	orch := orchestrator.New(store,
		scanner.NewSecretScanner(catalog, engineOpts),
		scanner.NewEndpointExtractor(catalog, engineOpts),
		orchOpts)
	logging.RegisterStatusHook(orch.Status)
	defer logging.RegisterStatusHook(nil)

	log.Info().Str("target", target).Msg("Scanning")
	session, err := orch.Run(ctx, lister, func(processed, total int) {
		log.Debug().Int("processed", processed).Int("total", total).Msg("Scanned file")
	})
	if err != nil {
		return err
	}

	secrets, endpoints := selectFindings(store, opts.ScanOptions)
	if len(session.Failures) > 0 {
		log.Warn().Int("failures", len(session.Failures)).Msg("Some files could not be scanned")
	}

	if opts.Output != "" {
		if err := writeReport(opts.Output, buildReport(target, session, secrets, endpoints)); err != nil {
			return err
		}
		log.Info().Str("file", opts.Output).Msg("Wrote JSON report")
	}

	if opts.Table {
		if err := result.WriteTable(out, secrets, endpoints); err != nil {
			return fmt.Errorf("failed writing table: %w", err)
		}
	}

	return nil
}

// selectFindings applies the search term, the confidence threshold and dedup.
func selectFindings(store *result.Store, opts config.ScanOptions) ([]scanner.SecretFinding, []scanner.EndpointFinding) {
	secrets := result.SecretsAbove(store.FilterSecrets(opts.Search), opts.MinConfidence)
	endpoints := result.EndpointsAbove(store.FilterEndpoints(opts.Search), opts.MinConfidence)
	if opts.Dedup {
		secrets = result.DeduplicateSecrets(secrets)
		endpoints = result.DeduplicateEndpoints(endpoints)
	}
	return secrets, endpoints
}

func newLister(opts ScanOptions) (lister resource.Lister, target string, cleanup func(), err error) {
	cleanup = func() {}
	t := opts.Target

	switch {
	case t.URL != "":
		page, err := resource.NewPageSource(t.URL, resource.PageOptions{
			Headers:           opts.Headers,
			Timeout:           opts.Timeout,
			ProbeSourceMaps:   opts.ProbeSourceMaps,
			RequestsPerSecond: opts.RequestsPerSecond,
		})
		if err != nil {
			return nil, "", cleanup, err
		}
		return page, t.URL, cleanup, nil
	case t.Dir != "":
		if info, err := os.Stat(t.Dir); err != nil || !info.IsDir() {
			return nil, "", cleanup, fmt.Errorf("not a directory: %s", t.Dir)
		}
		return resource.DirSource{Root: t.Dir, URLPrefix: t.URLPrefix}, t.Dir, cleanup, nil
	case t.HAR != "":
		return resource.HARSource{Path: t.HAR}, t.HAR, cleanup, nil
	case t.Archive != "":
		archive := &resource.ArchiveSource{Path: t.Archive, MaxExtractSize: opts.MaxFileSize * 20}
		return archive, t.Archive, func() {
			if err := archive.Close(); err != nil {
				log.Debug().Err(err).Msg("Failed removing extracted archive")
			}
		}, nil
	case t.WARC != "":
		return resource.WARCSource{Path: t.WARC}, t.WARC, cleanup, nil
	default:
		return nil, "", cleanup, errors.New("no scan target, use one of --url, --dir, --har, --archive or --warc")
	}
}

func buildReport(target string, session *orchestrator.Session, secrets []scanner.SecretFinding, endpoints []scanner.EndpointFinding) result.Report {
	report := result.Report{
		Target:     target,
		StartedAt:  session.StartedAt.UTC().Truncate(time.Second),
		FinishedAt: session.FinishedAt.UTC().Truncate(time.Second),
		Files:      session.Processed,
		Secrets:    secrets,
		Endpoints:  result.WithFullURL(endpoints),
	}
	for _, f := range session.Failures {
		report.Failures = append(report.Failures, result.Failure{URL: f.URL, Error: f.Err.Error()})
	}
	return report
}

func writeReport(path string, report result.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), format.DirUserGroupRead); err != nil {
		return fmt.Errorf("failed creating report directory: %w", err)
	}
	// #nosec G304 - report path is chosen by the user running the tool
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, format.FileUserReadWrite)
	if err != nil {
		return fmt.Errorf("failed creating report: %w", err)
	}
	if err := result.WriteJSON(f, report); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed writing report: %w", err)
	}
	return f.Close()
}
