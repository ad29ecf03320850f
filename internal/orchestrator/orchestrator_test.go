package orchestrator_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/veritas/internal/cache"
	"github.com/jonesrussell/north-cloud/veritas/internal/credentials"
	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	"github.com/jonesrussell/north-cloud/veritas/internal/extractor"
	"github.com/jonesrussell/north-cloud/veritas/internal/heuristic"
	"github.com/jonesrussell/north-cloud/veritas/internal/orchestrator"
	infraerrors "github.com/jonesrussell/north-cloud/veritas/infrastructure/errors"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

const (
	testContextID = "tab-1"
	testURL       = "https://example.com/a"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingPresenter keeps every outbound message in order.
type recordingPresenter struct {
	mu   sync.Mutex
	msgs []any
}

func (p *recordingPresenter) ShowResult(_ context.Context, _ string, msg domain.ShowResultMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPresenter) ShowError(_ context.Context, _ string, msg domain.ShowErrorMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPresenter) Hide(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, domain.HideMessage{Action: domain.ActionHide})
	return nil
}

func (p *recordingPresenter) messages() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.msgs...)
}

func (p *recordingPresenter) last() any {
	msgs := p.messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// fixedLocal returns the same local result for every article.
type fixedLocal struct {
	score int
}

func (f fixedLocal) Analyze(domain.Article) domain.AnalysisResult {
	return domain.AnalysisResult{
		Score:      f.score,
		Confidence: 0.8,
		Verdict:    domain.VerdictFor(f.score),
		Reasons:    []string{"local"},
	}
}

// remoteFunc adapts a function to credentials.RemoteAnalyzer.
type remoteFunc func(ctx context.Context, article domain.Article) (domain.AnalysisResult, error)

func (f remoteFunc) Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error) {
	return f(ctx, article)
}

// countingRemote counts calls and returns a fixed outcome.
type countingRemote struct {
	mu     sync.Mutex
	calls  int
	result domain.AnalysisResult
	err    error
}

func (c *countingRemote) Analyze(context.Context, domain.Article) (domain.AnalysisResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.result, c.err
}

func (c *countingRemote) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// staticSource hands out one client or a configuration error.
type staticSource struct {
	client credentials.RemoteAnalyzer
}

func (s staticSource) Current() (credentials.RemoteAnalyzer, error) {
	if s.client == nil {
		return nil, domain.NewConfigurationError()
	}
	return s.client, nil
}

type harness struct {
	orch      *orchestrator.Orchestrator
	cache     *cache.ResultCache
	presenter *recordingPresenter
}

func newHarness(t *testing.T, cfg orchestrator.Config, local orchestrator.LocalAnalyzer, client credentials.RemoteAnalyzer) *harness {
	t.Helper()

	log := infralogger.NewNop()
	rc := cache.NewResultCache(cache.NewMemoryStore(), time.Hour, log, nil)
	p := &recordingPresenter{}
	o := orchestrator.New(cfg, local, rc, staticSource{client: client}, p, log,
		orchestrator.WithClock(func() time.Time { return testNow }),
		orchestrator.WithExtractor(extractor.New()),
	)
	t.Cleanup(o.Wait)

	return &harness{orch: o, cache: rc, presenter: p}
}

func longArticle() domain.Article {
	return domain.Article{
		URL:     testURL,
		Title:   "Council approves budget",
		Content: strings.Repeat("The council met and approved the budget. ", 20),
	}
}

func credibleResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		Score:      85,
		Confidence: 0.5,
		Verdict:    domain.VerdictCredible,
		Reasons:    []string{"well sourced"},
		Sources:    []string{},
	}
}

func TestAnalyze_ContentTooShort(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	article := longArticle()
	article.Content = strings.Repeat("x", 299)

	err := h.orch.Analyze(context.Background(), testContextID, article)
	require.Error(t, err)
	assert.Equal(t, domain.KindContentTooShort, domain.KindOf(err))
	assert.Equal(t, 0, remote.callCount())

	msgs := h.presenter.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ShowErrorMessage{
		Action:    domain.ActionShowError,
		Error:     domain.MsgContentTooShort,
		Retryable: false,
	}, msgs[0])
}

func TestAnalyze_ContentLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	article := longArticle()
	article.Content = strings.Repeat("é", 300)

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, article))
	assert.Equal(t, 1, remote.callCount())
}

func TestAnalyze_RemoteSuccessCachesAndPresents(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))

	msgs := h.presenter.messages()
	require.Len(t, msgs, 1, "no provisional hint for a high local score")
	final, ok := msgs[0].(domain.ShowResultMessage)
	require.True(t, ok)
	assert.False(t, final.Provisional)
	assert.Equal(t, credibleResult(), final.Result)
	assert.Empty(t, final.Highlights)

	entry, hit := h.cache.Get(context.Background(), testURL, testNow)
	require.True(t, hit)
	assert.Equal(t, credibleResult(), entry.Result)
	assert.True(t, entry.Timestamp.Equal(testNow))
}

func TestAnalyze_ProvisionalHintPrecedesFinal(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 30}, remote)

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))

	msgs := h.presenter.messages()
	require.Len(t, msgs, 2)

	hint, ok := msgs[0].(domain.ShowResultMessage)
	require.True(t, ok)
	assert.True(t, hint.Provisional)
	assert.Equal(t, 30, hint.Result.Score)

	final, ok := msgs[1].(domain.ShowResultMessage)
	require.True(t, ok)
	assert.False(t, final.Provisional)
	assert.Equal(t, 85, final.Result.Score)
}

func TestAnalyze_LocalScoreAtThresholdIsNotShown(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 50}, remote)

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))
	assert.Len(t, h.presenter.messages(), 1)
}

func TestAnalyze_WithHeuristicAnalyzer(t *testing.T) {
	t.Parallel()

	local := heuristic.NewAnalyzer(infralogger.NewNop(), heuristic.WithRandomSource(heuristic.FixedSource(0)))
	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, local, remote)

	article := domain.Article{
		URL:     testURL,
		Title:   "BREAKING: Shocking news",
		Content: strings.Repeat("x", 400),
	}
	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, article))

	// Local score 65 is above the hint threshold, so only the remote result shows.
	msgs := h.presenter.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 85, msgs[0].(domain.ShowResultMessage).Result.Score)
}

func TestAnalyze_FreshCacheSkipsRemote(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	cached := domain.AnalysisResult{
		Score:      20,
		Confidence: 0.9,
		Verdict:    domain.VerdictUnreliable,
		Reasons:    []string{"budget"},
		Sources:    []string{},
	}
	h.cache.Put(context.Background(), testURL, cached, testNow.Add(-30*time.Minute))

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))
	assert.Equal(t, 0, remote.callCount())

	final, ok := h.presenter.last().(domain.ShowResultMessage)
	require.True(t, ok)
	assert.Equal(t, cached, final.Result)
	assert.NotEmpty(t, final.Highlights, "non-credible results carry highlighted sentences")
}

func TestAnalyze_StaleCacheCallsRemote(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	stale := credibleResult()
	stale.Score = 10
	h.cache.Put(context.Background(), testURL, stale, testNow.Add(-2*time.Hour))

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))
	assert.Equal(t, 1, remote.callCount())

	final := h.presenter.last().(domain.ShowResultMessage)
	assert.Equal(t, 85, final.Result.Score)

	entry, hit := h.cache.Get(context.Background(), testURL, testNow)
	require.True(t, hit)
	assert.Equal(t, 85, entry.Result.Score)
}

func TestAnalyze_SecondRequestServedFromCache(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))
	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))

	assert.Equal(t, 1, remote.callCount())
	assert.Len(t, h.presenter.messages(), 2)
}

func TestAnalyze_MissingKey(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, nil)

	err := h.orch.Analyze(context.Background(), testContextID, longArticle())
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))

	msg, ok := h.presenter.last().(domain.ShowErrorMessage)
	require.True(t, ok)
	assert.Equal(t, domain.MsgConfiguration, msg.Error)
	assert.False(t, msg.Retryable)
}

func TestAnalyze_UnauthorizedIsNotCached(t *testing.T) {
	t.Parallel()

	httpErr := &infraerrors.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}
	remote := &countingRemote{err: domain.NewAPIError(httpErr.StatusText(), httpErr)}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	err := h.orch.Analyze(context.Background(), testContextID, longArticle())
	assert.Equal(t, domain.KindAPI, domain.KindOf(err))

	msg, ok := h.presenter.last().(domain.ShowErrorMessage)
	require.True(t, ok)
	assert.Contains(t, msg.Error, "Check your API key and connection")
	assert.True(t, msg.Retryable)

	_, hit := h.cache.Get(context.Background(), testURL, testNow)
	assert.False(t, hit)
}

func TestAnalyze_TimeoutDiscardsLateResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	returned := make(chan struct{})
	remote := remoteFunc(func(context.Context, domain.Article) (domain.AnalysisResult, error) {
		defer close(returned)
		<-release
		return credibleResult(), nil
	})
	h := newHarness(t, orchestrator.Config{Timeout: 20 * time.Millisecond}, fixedLocal{score: 100}, remote)

	err := h.orch.Analyze(context.Background(), testContextID, longArticle())
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))

	close(release)
	<-returned
	h.orch.Wait()

	msgs := h.presenter.messages()
	require.Len(t, msgs, 1, "late result must not be presented")
	assert.Equal(t, domain.ShowErrorMessage{
		Action:    domain.ActionShowError,
		Error:     domain.MsgTimeout,
		Retryable: true,
	}, msgs[0])

	_, hit := h.cache.Get(context.Background(), testURL, testNow)
	assert.False(t, hit, "late result must not be cached")
}

func TestAnalyze_InFlightRejected(t *testing.T) {
	t.Parallel()

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	remote := remoteFunc(func(context.Context, domain.Article) (domain.AnalysisResult, error) {
		once.Do(func() { close(started) })
		<-release
		return credibleResult(), nil
	})
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	require.NoError(t, h.orch.Submit(context.Background(), testContextID, longArticle()))
	<-started

	err := h.orch.Analyze(context.Background(), testContextID, longArticle())
	require.ErrorIs(t, err, orchestrator.ErrAnalysisInProgress)

	// Other contexts are independent.
	other := longArticle()
	other.URL = "https://example.com/b"
	require.NoError(t, h.orch.Submit(context.Background(), "tab-2", other))

	close(release)
	h.orch.Wait()

	assert.Len(t, h.presenter.messages(), 2)
}

func TestRetry_ReusesStoredArticle(t *testing.T) {
	t.Parallel()

	var seen []string
	var mu sync.Mutex
	remote := remoteFunc(func(_ context.Context, article domain.Article) (domain.AnalysisResult, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, article.URL)
		if len(seen) == 1 {
			return domain.AnalysisResult{}, domain.NewTransportError(errors.New("connection refused"))
		}
		return credibleResult(), nil
	})
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	err := h.orch.Analyze(context.Background(), testContextID, longArticle())
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))

	require.NoError(t, h.orch.Retry(context.Background(), testContextID))
	h.orch.Wait()

	mu.Lock()
	assert.Equal(t, []string{testURL, testURL}, seen)
	mu.Unlock()

	final, ok := h.presenter.last().(domain.ShowResultMessage)
	require.True(t, ok)
	assert.Equal(t, 85, final.Result.Score)
}

func TestRetry_NothingStored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, &countingRemote{})
	err := h.orch.Retry(context.Background(), "unknown")
	require.ErrorIs(t, err, orchestrator.ErrNothingToRetry)
}

func TestClose_HidesAndSupersedes(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	remote := remoteFunc(func(context.Context, domain.Article) (domain.AnalysisResult, error) {
		close(started)
		<-release
		return credibleResult(), nil
	})
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	require.NoError(t, h.orch.Submit(context.Background(), testContextID, longArticle()))
	<-started

	h.orch.Close(context.Background(), testContextID)
	close(release)
	h.orch.Wait()

	msgs := h.presenter.messages()
	require.Len(t, msgs, 1, "superseded result must not be shown")
	assert.Equal(t, domain.HideMessage{Action: domain.ActionHide}, msgs[0])

	// The in-flight flag is cleared, so a new request is admitted.
	require.NoError(t, h.orch.Analyze(context.Background(), testContextID, longArticle()))
}

func TestSubmitHTML_ExtractsFirst(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	html := "<html><head><title>T</title></head><body><article>" +
		strings.Repeat("Budget approved after long debate. ", 12) +
		"</article></body></html>"

	require.NoError(t, h.orch.SubmitHTML(context.Background(), testContextID, testURL, html))
	h.orch.Wait()
	assert.Equal(t, 1, remote.callCount())

	article, ok := h.orch.LastArticle(testContextID)
	require.True(t, ok)
	assert.Equal(t, "T", article.Title)
}

func TestSubmitHTML_ExtractionFailure(t *testing.T) {
	t.Parallel()

	remote := &countingRemote{result: credibleResult()}
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	err := h.orch.SubmitHTML(context.Background(), testContextID, "", "<html></html>")
	require.Error(t, err)
	assert.Zero(t, remote.callCount())
	assert.Empty(t, h.presenter.messages())
}

// gatedPresenter blocks inside the first provisional ShowResult until gate
// is closed.
type gatedPresenter struct {
	recordingPresenter
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (p *gatedPresenter) ShowResult(ctx context.Context, contextID string, msg domain.ShowResultMessage) error {
	if msg.Provisional {
		p.once.Do(func() {
			close(p.entered)
			<-p.gate
		})
	}
	return p.recordingPresenter.ShowResult(ctx, contextID, msg)
}

func TestClose_WaitsForProvisionalHint(t *testing.T) {
	t.Parallel()

	remoteRelease := make(chan struct{})
	remote := remoteFunc(func(context.Context, domain.Article) (domain.AnalysisResult, error) {
		<-remoteRelease
		return credibleResult(), nil
	})

	log := infralogger.NewNop()
	p := &gatedPresenter{entered: make(chan struct{}), gate: make(chan struct{})}
	o := orchestrator.New(orchestrator.Config{}, fixedLocal{score: 30},
		cache.NewResultCache(cache.NewMemoryStore(), time.Hour, log, nil),
		staticSource{client: remote}, p, log,
		orchestrator.WithClock(func() time.Time { return testNow }),
	)

	require.NoError(t, o.Submit(context.Background(), testContextID, longArticle()))
	<-p.entered

	closed := make(chan struct{})
	go func() {
		o.Close(context.Background(), testContextID)
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while the provisional hint was still being published")
	case <-time.After(50 * time.Millisecond):
	}

	close(p.gate)
	<-closed
	close(remoteRelease)
	o.Wait()

	msgs := p.messages()
	require.Len(t, msgs, 2, "the superseded final result is not shown")
	hint, ok := msgs[0].(domain.ShowResultMessage)
	require.True(t, ok)
	assert.True(t, hint.Provisional)
	assert.Equal(t, domain.HideMessage{Action: domain.ActionHide}, msgs[1])
}

func TestAnalyze_WaitCoversSynchronousRun(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	remote := remoteFunc(func(context.Context, domain.Article) (domain.AnalysisResult, error) {
		close(started)
		<-release
		return credibleResult(), nil
	})
	h := newHarness(t, orchestrator.Config{}, fixedLocal{score: 100}, remote)

	analyzed := make(chan error, 1)
	go func() {
		analyzed <- h.orch.Analyze(context.Background(), testContextID, longArticle())
	}()
	<-started

	waited := make(chan struct{})
	go func() {
		h.orch.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while Analyze was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-analyzed)
	<-waited
	assert.Len(t, h.presenter.messages(), 1)
}
