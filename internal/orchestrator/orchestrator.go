// Package orchestrator runs one credibility analysis per browser context:
// local hint, cache lookup, bounded remote call and presentation.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/veritas/internal/credentials"
	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	"github.com/jonesrussell/north-cloud/veritas/internal/highlight"
	"github.com/jonesrussell/north-cloud/veritas/internal/telemetry"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// Default limits.
const (
	DefaultTimeout              = 30 * time.Second
	DefaultMinContentLength     = 300
	DefaultProvisionalThreshold = 50
)

var (
	// ErrAnalysisInProgress is returned when the context already has a running analysis.
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	// ErrNothingToRetry is returned by Retry when the context has no stored article.
	ErrNothingToRetry = errors.New("no previous article to retry")
	// ErrSuperseded is returned when a newer request or a close replaced the request.
	ErrSuperseded = errors.New("analysis superseded")
	// ErrNoExtractor is returned by SubmitHTML when no extractor is configured.
	ErrNoExtractor = errors.New("no extractor configured")
)

// LocalAnalyzer is the cheap heuristic scorer. It never fails.
type LocalAnalyzer interface {
	Analyze(article domain.Article) domain.AnalysisResult
}

// ResultCache stores remote results by article URL.
type ResultCache interface {
	Get(ctx context.Context, url string, now time.Time) (domain.CacheEntry, bool)
	Put(ctx context.Context, url string, result domain.AnalysisResult, now time.Time)
}

// RemoteSource hands out the remote client for the current API key.
type RemoteSource interface {
	Current() (credentials.RemoteAnalyzer, error)
}

// Extractor turns page HTML into an article.
type Extractor interface {
	Extract(pageURL, html string) (domain.Article, error)
}

// Presenter delivers outbound messages to one browser context.
type Presenter interface {
	ShowResult(ctx context.Context, contextID string, msg domain.ShowResultMessage) error
	ShowError(ctx context.Context, contextID string, msg domain.ShowErrorMessage) error
	Hide(ctx context.Context, contextID string) error
}

// Config holds orchestrator limits.
type Config struct {
	// Timeout bounds the remote call.
	Timeout time.Duration
	// MinContentLength is the shortest content, in characters, worth analyzing.
	MinContentLength int
	// ProvisionalThreshold: local scores below it are shown as a provisional hint.
	ProvisionalThreshold int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		Timeout:              DefaultTimeout,
		MinContentLength:     DefaultMinContentLength,
		ProvisionalThreshold: DefaultProvisionalThreshold,
	}
}

// contextState tracks the current request of one browser context.
type contextState struct {
	generation uint64
	inFlight   bool
	concluded  bool
	article    *domain.Article

	// present orders outbound messages. It is held across the currency
	// check and the publish, and taken before mu, never while holding it.
	present sync.Mutex
}

// Orchestrator coordinates analyses. Safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	local     LocalAnalyzer
	cache     ResultCache
	remote    RemoteSource
	presenter Presenter
	extractor Extractor
	telemetry *telemetry.Provider
	logger    infralogger.Logger
	now       func() time.Time

	mu       sync.Mutex
	contexts map[string]*contextState

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExtractor enables SubmitHTML.
func WithExtractor(e Extractor) Option {
	return func(o *Orchestrator) {
		o.extractor = e
	}
}

// WithTelemetry records analysis metrics.
func WithTelemetry(tp *telemetry.Provider) Option {
	return func(o *Orchestrator) {
		o.telemetry = tp
	}
}

// WithClock replaces time.Now for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. Zero config fields take their defaults.
func New(
	cfg Config,
	local LocalAnalyzer,
	cache ResultCache,
	remote RemoteSource,
	presenter Presenter,
	logger infralogger.Logger,
	opts ...Option,
) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = defaults.MinContentLength
	}
	if cfg.ProvisionalThreshold <= 0 {
		cfg.ProvisionalThreshold = defaults.ProvisionalThreshold
	}

	o := &Orchestrator{
		cfg:       cfg,
		local:     local,
		cache:     cache,
		remote:    remote,
		presenter: presenter,
		logger:    logger,
		now:       time.Now,
		contexts:  make(map[string]*contextState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// request is one admitted analysis.
type request struct {
	id         string
	contextID  string
	generation uint64
	article    domain.Article
	log        infralogger.Logger
}

// Analyze runs a full analysis of article for contextID and blocks until the
// outcome has been presented. The returned error is the failure that was
// shown, ErrAnalysisInProgress, or ErrSuperseded.
func (o *Orchestrator) Analyze(ctx context.Context, contextID string, article domain.Article) error {
	req, err := o.admit(ctx, contextID, article)
	if err != nil {
		return err
	}

	o.wg.Add(1)
	defer o.wg.Done()
	return o.run(ctx, req)
}

// Submit admits article like Analyze but runs the analysis in the
// background. Only admission failures are returned; the outcome is presented.
func (o *Orchestrator) Submit(ctx context.Context, contextID string, article domain.Article) error {
	req, err := o.admit(ctx, contextID, article)
	if err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.run(bg, req)
	}()
	return nil
}

// SubmitHTML extracts the article from html, then submits it like Submit.
// Extraction failures are returned.
func (o *Orchestrator) SubmitHTML(ctx context.Context, contextID, pageURL, html string) error {
	article, err := o.Extract(pageURL, html)
	if err != nil {
		return err
	}
	return o.Submit(ctx, contextID, article)
}

// Extract runs the configured extractor.
func (o *Orchestrator) Extract(pageURL, html string) (domain.Article, error) {
	if o.extractor == nil {
		return domain.Article{}, ErrNoExtractor
	}
	return o.extractor.Extract(pageURL, html)
}

// Retry submits the article of the last request for contextID again,
// without extracting it. It runs in the background like Submit.
func (o *Orchestrator) Retry(ctx context.Context, contextID string) error {
	article, ok := o.LastArticle(contextID)
	if !ok {
		return ErrNothingToRetry
	}
	return o.Submit(ctx, contextID, article)
}

// LastArticle returns the article of the last admitted request for contextID.
func (o *Orchestrator) LastArticle(contextID string) (domain.Article, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.contexts[contextID]
	if !ok || state.article == nil {
		return domain.Article{}, false
	}
	return *state.article, true
}

// Close supersedes the current request of contextID and hides the indicator.
// A running remote call is left to finish; its outcome is not shown.
func (o *Orchestrator) Close(ctx context.Context, contextID string) {
	lock := o.presentLock(contextID)
	lock.Lock()
	defer lock.Unlock()

	o.mu.Lock()
	state := o.stateLocked(contextID)
	state.generation++
	state.inFlight = false
	state.concluded = true
	o.mu.Unlock()

	if err := o.presenter.Hide(ctx, contextID); err != nil {
		o.logger.Warn("Failed to present hide",
			infralogger.ContextID(contextID),
			infralogger.Error(err),
		)
	}
}

// Wait blocks until background analyses and late remote outcomes are done.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// presentLock returns the mutex ordering outbound messages for contextID.
// States are never removed, so the mutex outlives the call.
func (o *Orchestrator) presentLock(contextID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &o.stateLocked(contextID).present
}

func (o *Orchestrator) stateLocked(contextID string) *contextState {
	state, ok := o.contexts[contextID]
	if !ok {
		state = &contextState{concluded: true}
		o.contexts[contextID] = state
	}
	return state
}

// admit applies the content and in-flight rules and claims the context.
func (o *Orchestrator) admit(ctx context.Context, contextID string, article domain.Article) (*request, error) {
	if err := article.Validate(); err != nil {
		return nil, err
	}

	log := o.logger.With(infralogger.ContextID(contextID), infralogger.URL(article.URL))

	if article.ContentLength() < o.cfg.MinContentLength {
		err := domain.NewContentTooShortError()
		log.Info("Rejected short article", infralogger.Int("content_length", article.ContentLength()))
		o.telemetry.RecordAnalysis(string(domain.KindContentTooShort))

		lock := o.presentLock(contextID)
		lock.Lock()
		o.showError(ctx, contextID, log, err)
		lock.Unlock()
		return nil, err
	}

	o.mu.Lock()
	state := o.stateLocked(contextID)
	if state.inFlight {
		o.mu.Unlock()
		log.Debug("Analysis already in progress")
		o.telemetry.RecordInFlightRejected()
		return nil, ErrAnalysisInProgress
	}
	state.generation++
	state.inFlight = true
	state.concluded = false
	stored := article
	state.article = &stored
	gen := state.generation
	o.mu.Unlock()

	id := uuid.NewString()
	return &request{
		id:         id,
		contextID:  contextID,
		generation: gen,
		article:    article,
		log:        log.With(infralogger.String("request_id", id)),
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, req *request) error {
	local := o.local.Analyze(req.article)
	req.log.Debug("Local analysis complete", infralogger.Int("score", local.Score))

	if local.Score < o.cfg.ProvisionalThreshold {
		if o.presentProvisional(ctx, req, local) {
			o.telemetry.RecordProvisionalHint()
		}
	}

	if entry, ok := o.cache.Get(ctx, req.article.URL, o.now()); ok {
		req.log.Info("Serving cached analysis", infralogger.Int("score", entry.Result.Score))
		o.telemetry.RecordAnalysis(telemetry.OutcomeCached)
		return o.presentFinal(ctx, req, entry.Result)
	}

	client, err := o.remote.Current()
	if err != nil {
		return o.fail(ctx, req, err)
	}

	result, err := o.callRemote(ctx, req, client)
	if err != nil {
		return o.fail(ctx, req, err)
	}

	o.cache.Put(ctx, req.article.URL, result, o.now())
	o.telemetry.RecordAnalysis(telemetry.OutcomeRemote)
	req.log.Info("Remote analysis complete",
		infralogger.Int("score", result.Score),
		infralogger.String("verdict", string(result.Verdict)),
	)
	return o.presentFinal(ctx, req, result)
}

type remoteOutcome struct {
	result domain.AnalysisResult
	err    error
}

// callRemote runs the client in its own goroutine bounded by the configured
// timeout. When the bound wins, the late outcome is drained and dropped.
func (o *Orchestrator) callRemote(
	ctx context.Context,
	req *request,
	client credentials.RemoteAnalyzer,
) (domain.AnalysisResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	start := time.Now()

	done := make(chan remoteOutcome, 1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		result, err := client.Analyze(callCtx, req.article)
		done <- remoteOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		cancel()
		o.telemetry.ObserveRemote(outcomeLabel(out.err), time.Since(start))
		if out.err != nil {
			return domain.AnalysisResult{}, out.err
		}
		return out.result.Normalized(), nil

	case <-callCtx.Done():
		ctxErr := callCtx.Err()
		o.wg.Add(1)
		go o.dropLate(req, done, cancel)

		if !errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.AnalysisResult{}, ctxErr
		}
		o.telemetry.RecordTimeout()
		o.telemetry.ObserveRemote(string(domain.KindTimeout), time.Since(start))
		req.log.Warn("Remote analysis timed out", infralogger.Duration("timeout", o.cfg.Timeout))
		return domain.AnalysisResult{}, domain.NewTimeoutError(ctxErr)
	}
}

func (o *Orchestrator) dropLate(req *request, done <-chan remoteOutcome, cancel context.CancelFunc) {
	defer o.wg.Done()
	defer cancel()

	out := <-done
	o.telemetry.RecordLateResultDropped()
	if out.err != nil {
		req.log.Info("Discarded late remote failure", infralogger.Error(out.err))
		return
	}
	req.log.Info("Discarded late remote result", infralogger.Int("score", out.result.Score))
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		return string(kind)
	}
	return "error"
}

// fail presents err as the request's final outcome.
func (o *Orchestrator) fail(ctx context.Context, req *request, err error) error {
	if errors.Is(err, context.Canceled) {
		o.conclude(req)
		req.log.Info("Analysis cancelled")
		return err
	}

	req.log.Warn("Analysis failed",
		infralogger.String("kind", string(domain.KindOf(err))),
		infralogger.Error(err),
	)
	o.telemetry.RecordAnalysis(outcomeLabel(err))

	lock := o.presentLock(req.contextID)
	lock.Lock()
	defer lock.Unlock()

	if !o.conclude(req) {
		return ErrSuperseded
	}
	o.showError(ctx, req.contextID, req.log, err)
	return err
}

func (o *Orchestrator) showError(ctx context.Context, contextID string, log infralogger.Logger, err error) {
	msg := domain.ShowErrorMessage{
		Action:    domain.ActionShowError,
		Error:     domain.UserMessage(err),
		Retryable: domain.IsRetryable(err),
	}
	if presentErr := o.presenter.ShowError(ctx, contextID, msg); presentErr != nil {
		log.Warn("Failed to present error", infralogger.Error(presentErr))
	}
}

func (o *Orchestrator) presentFinal(ctx context.Context, req *request, result domain.AnalysisResult) error {
	lock := o.presentLock(req.contextID)
	lock.Lock()
	defer lock.Unlock()

	if !o.conclude(req) {
		req.log.Debug("Final result superseded, not shown")
		return ErrSuperseded
	}

	msg := domain.ShowResultMessage{Action: domain.ActionShowResult, Result: result}
	if !result.IsCredible() {
		msg.Highlights = highlight.Indices(req.article.Content, result.Reasons)
	}
	if err := o.presenter.ShowResult(ctx, req.contextID, msg); err != nil {
		req.log.Warn("Failed to present result", infralogger.Error(err))
	}
	return nil
}

// presentProvisional shows a local hint unless the request already concluded.
// The hint is published under the context's presentation lock, so a final
// result, error or hide for the context can only come after it.
func (o *Orchestrator) presentProvisional(ctx context.Context, req *request, result domain.AnalysisResult) bool {
	lock := o.presentLock(req.contextID)
	lock.Lock()
	defer lock.Unlock()

	if !o.isCurrent(req) {
		return false
	}

	msg := domain.ShowResultMessage{Action: domain.ActionShowResult, Result: result, Provisional: true}
	if err := o.presenter.ShowResult(ctx, req.contextID, msg); err != nil {
		req.log.Warn("Failed to present provisional result", infralogger.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) isCurrent(req *request) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := o.contexts[req.contextID]
	return state != nil && state.generation == req.generation && !state.concluded
}

// conclude marks req finished. It reports false when req was superseded or
// already concluded, in which case nothing may be shown for it.
func (o *Orchestrator) conclude(req *request) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := o.contexts[req.contextID]
	if state == nil || state.generation != req.generation || state.concluded {
		return false
	}
	state.concluded = true
	state.inFlight = false
	return true
}
