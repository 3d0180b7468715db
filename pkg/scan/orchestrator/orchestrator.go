// Package orchestrator runs one scan over the scripts of a target: it lists the
// resources, retrieves them one by one, applies the secret and endpoint
// scanners and publishes the combined findings to the result store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/resource"
	"github.com/CompassSecurity/jsleek/pkg/scan/result"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type SecretScanner interface {
	Scan(content string, fileURL string) []types.SecretFinding
}

type EndpointExtractor interface {
	Extract(content string, fileURL string) []types.EndpointFinding
}

// ContextScanner is an additional secret pass that may block, such as TruffleHog
// with credential verification.
type ContextScanner interface {
	Scan(ctx context.Context, content string, fileURL string) []types.SecretFinding
}

// ProgressFunc is called on the scan goroutine after every file, with processed
// counting from 1 to total.
type ProgressFunc func(processed int, total int)

// FindingsFunc receives the findings of one file as soon as it was scanned.
type FindingsFunc func(secrets []types.SecretFinding, endpoints []types.EndpointFinding)

type Options struct {
	// MaxFileSize is the largest content in bytes that is scanned; 0 means unlimited.
	MaxFileSize int64
	// Extra runs after the built-in secret rules when set.
	Extra ContextScanner
	// OnFindings is called per file, for live reporting.
	OnFindings FindingsFunc
}

// Session summarizes one scan run. The results are only set once the scan
// completed and hold the findings in file order.
type Session struct {
	State           State
	Total           int
	Processed       int
	Skipped         int
	Failures        []FileFailure
	SecretResults   []types.SecretFinding
	EndpointResults []types.EndpointFinding
	StartedAt       time.Time
	FinishedAt      time.Time
}

type Orchestrator struct {
	store     *result.Store
	secrets   SecretScanner
	endpoints EndpointExtractor
	opts      Options

	mu    sync.Mutex
	state State

	processed atomic.Int64
	total     atomic.Int64
}

func New(store *result.Store, secrets SecretScanner, endpoints EndpointExtractor, opts Options) *Orchestrator {
	return &Orchestrator{store: store, secrets: secrets, endpoints: endpoints, opts: opts}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Status logs the progress of the running scan; it is registered as the
// keyboard status hook.
func (o *Orchestrator) Status() *zerolog.Event {
	return log.Info().
		Str("state", o.State().String()).
		Int64("processed", o.processed.Load()).
		Int64("total", o.total.Load())
}

// Run scans the script-like resources of lister sequentially in listing order.
// Files that cannot be retrieved are recorded as failures and skipped. The store
// is only replaced when the scan completes.
func (o *Orchestrator) Run(ctx context.Context, lister resource.Lister, onProgress ProgressFunc) (*Session, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrScanAlreadyRunning
	}
	o.state = StateRunning
	o.mu.Unlock()

	o.processed.Store(0)
	o.total.Store(0)

	session := &Session{State: StateRunning, StartedAt: time.Now()}
	fail := func(err error) (*Session, error) {
		session.State = StateFailed
		session.FinishedAt = time.Now()
		o.setState(StateFailed)
		return session, err
	}

	resources, err := lister.ListResources(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed listing resources")
		return fail(fmt.Errorf("%w: %w", ErrScanInfrastructure, err))
	}

	var scripts []resource.Resource
	for _, r := range resources {
		if resource.IsScriptLike(r) {
			scripts = append(scripts, r)
		}
	}
	session.Total = len(scripts)
	o.total.Store(int64(len(scripts)))
	log.Info().Int("resources", len(resources)).Int("scripts", len(scripts)).Msg("Starting scan")

	secrets, endpoints, err := o.scanAll(ctx, scripts, session, onProgress)
	if err != nil {
		return fail(err)
	}

	o.store.Replace(secrets, endpoints)

	session.SecretResults = secrets
	session.EndpointResults = endpoints
	session.State = StateCompleted
	session.FinishedAt = time.Now()
	o.setState(StateCompleted)

	log.Info().
		Int("files", session.Processed).
		Int("failures", len(session.Failures)).
		Int("skipped", session.Skipped).
		Int("secrets", len(secrets)).
		Int("endpoints", len(endpoints)).
		Dur("duration", session.FinishedAt.Sub(session.StartedAt)).
		Msg("Scan completed")
	return session, nil
}

func (o *Orchestrator) scanAll(ctx context.Context, scripts []resource.Resource, session *Session, onProgress ProgressFunc) (secrets []types.SecretFinding, endpoints []types.EndpointFinding, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("processed", session.Processed).Msg("Scan loop panicked")
			secrets, endpoints = nil, nil
			err = fmt.Errorf("%w: %v", ErrScanFailed, r)
		}
	}()

	for _, script := range scripts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Info().Int("processed", session.Processed).Int("total", session.Total).Msg("Scan canceled")
			return nil, nil, fmt.Errorf("%w: %w", ErrScanCanceled, ctxErr)
		}

		fileSecrets, fileEndpoints, scanned, err := o.scanFile(ctx, script)
		switch {
		case err != nil:
			log.Warn().Err(errors.Unwrap(err)).Str("file", script.URL).Msg("Skipping file")
			session.Failures = append(session.Failures, FileFailure{URL: script.URL, Err: err})
		case !scanned:
			session.Skipped++
		default:
			secrets = append(secrets, fileSecrets...)
			endpoints = append(endpoints, fileEndpoints...)
			if o.opts.OnFindings != nil && (len(fileSecrets) > 0 || len(fileEndpoints) > 0) {
				o.opts.OnFindings(fileSecrets, fileEndpoints)
			}
		}

		session.Processed++
		o.processed.Store(int64(session.Processed))
		if onProgress != nil {
			onProgress(session.Processed, session.Total)
		}
	}

	return secrets, endpoints, nil
}

// scanFile retrieves and scans one resource. scanned is false for resources
// without scannable text.
func (o *Orchestrator) scanFile(ctx context.Context, r resource.Resource) (secrets []types.SecretFinding, endpoints []types.EndpointFinding, scanned bool, err error) {
	content, err := r.Content(ctx)
	if err != nil {
		return nil, nil, false, &RetrievalError{URL: r.URL, Err: err}
	}
	if content == "" {
		log.Trace().Str("file", r.URL).Msg("Skipping empty file")
		return nil, nil, false, nil
	}
	if o.opts.MaxFileSize > 0 && int64(len(content)) > o.opts.MaxFileSize {
		return nil, nil, false, &RetrievalError{URL: r.URL, Err: fmt.Errorf("%w: %d bytes", ErrTooLarge, len(content))}
	}
	if isBinary(content) {
		log.Debug().Str("file", r.URL).Msg("Skipping binary file")
		return nil, nil, false, nil
	}

	if resource.IsSourceMap(r) {
		if files, ok := resource.UnpackSourceMap(content); ok {
			log.Trace().Str("file", r.URL).Int("sources", len(files)).Msg("Scanning embedded sources of source map")
			for _, f := range files {
				s, e := o.scanContent(ctx, f.Content, r.URL)
				secrets = append(secrets, s...)
				endpoints = append(endpoints, e...)
			}
			return secrets, endpoints, true, nil
		}
	}

	secrets, endpoints = o.scanContent(ctx, content, r.URL)
	return secrets, endpoints, true, nil
}

func (o *Orchestrator) scanContent(ctx context.Context, content string, fileURL string) ([]types.SecretFinding, []types.EndpointFinding) {
	secrets := o.secrets.Scan(content, fileURL)
	if o.opts.Extra != nil {
		secrets = append(secrets, o.opts.Extra.Scan(ctx, content, fileURL)...)
	}
	return secrets, o.endpoints.Extract(content, fileURL)
}

// isBinary sniffs the magic bytes of content; scripts never match a known type.
func isBinary(content string) bool {
	head := content[:min(len(content), 262)]
	kind, _ := filetype.Match([]byte(head))
	return kind != filetype.Unknown
}
