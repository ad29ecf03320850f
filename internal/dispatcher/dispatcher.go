// Package dispatcher routes inbound control messages from the extension to
// the orchestrator and the settings store.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/veritas/internal/credentials"
	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	"github.com/jonesrussell/north-cloud/veritas/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/veritas/internal/settings"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

const errUnknownAction = "unknown action"

// ErrMissingArticle is returned for an analyze message without content.
var ErrMissingArticle = errors.New("article or html and url required")

// Analyzer is the part of the orchestrator the dispatcher drives.
type Analyzer interface {
	Submit(ctx context.Context, contextID string, article domain.Article) error
	SubmitHTML(ctx context.Context, contextID, pageURL, html string) error
	Retry(ctx context.Context, contextID string) error
	Extract(pageURL, html string) (domain.Article, error)
	Close(ctx context.Context, contextID string)
}

// KeyUpdater rebuilds the remote client for a new API key.
type KeyUpdater interface {
	Update(apiKey string)
}

// Dispatcher handles inbound messages. Analyses run in the background; the
// response only acknowledges acceptance.
type Dispatcher struct {
	analyzer         Analyzer
	settings         settings.Store
	keys             KeyUpdater
	keyPrefix        string
	minContentLength int
	logger           infralogger.Logger
}

// New creates a dispatcher. keyPrefix is the required API key prefix and
// minContentLength the auto-analyze content minimum.
func New(
	analyzer Analyzer,
	store settings.Store,
	keys KeyUpdater,
	keyPrefix string,
	minContentLength int,
	logger infralogger.Logger,
) *Dispatcher {
	if minContentLength <= 0 {
		minContentLength = orchestrator.DefaultMinContentLength
	}
	return &Dispatcher{
		analyzer:         analyzer,
		settings:         store,
		keys:             keys,
		keyPrefix:        keyPrefix,
		minContentLength: minContentLength,
		logger:           logger,
	}
}

// Start applies the stored API key and keeps the remote client in sync with
// settings changes until ctx ends.
func (d *Dispatcher) Start(ctx context.Context) error {
	current, err := d.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	d.keys.Update(current.APIKey)

	changes, err := d.settings.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}

	go func() {
		for s := range changes {
			d.logger.Info("Settings changed",
				infralogger.String("api_key", credentials.MaskKey(s.APIKey)),
				infralogger.Bool("auto_analyze", s.AutoAnalyze),
			)
			d.keys.Update(s.APIKey)
		}
	}()

	return nil
}

// Handle processes one inbound message for contextID.
func (d *Dispatcher) Handle(ctx context.Context, contextID string, msg domain.InboundMessage) domain.Response {
	log := infralogger.FromContextOr(ctx, d.logger).With(
		infralogger.ContextID(contextID),
		infralogger.String("action", msg.Action),
	)

	switch msg.Action {
	case domain.ActionAnalyze:
		return d.analyze(ctx, contextID, msg, log)
	case domain.ActionRetry:
		return d.retry(ctx, contextID, log)
	case domain.ActionPageLoaded:
		return d.pageLoaded(ctx, contextID, msg, log)
	case domain.ActionUpdateAPIKey:
		return d.updateAPIKey(ctx, msg.APIKey, log)
	case domain.ActionCloseIndicator:
		d.analyzer.Close(ctx, contextID)
		return domain.OK()
	default:
		log.Debug("Unknown action")
		return domain.Fail(errUnknownAction)
	}
}

func (d *Dispatcher) analyze(
	ctx context.Context,
	contextID string,
	msg domain.InboundMessage,
	log infralogger.Logger,
) domain.Response {
	switch {
	case msg.Article != nil:
		if err := msg.Article.Validate(); err != nil {
			log.Debug("Rejected analyze message", infralogger.Error(err))
			return domain.Fail(err.Error())
		}
		return d.accepted(d.analyzer.Submit(ctx, contextID, *msg.Article), log)
	case msg.HTML != "" && msg.URL != "":
		return d.accepted(d.analyzer.SubmitHTML(ctx, contextID, msg.URL, msg.HTML), log)
	default:
		return domain.Fail(ErrMissingArticle.Error())
	}
}

func (d *Dispatcher) retry(ctx context.Context, contextID string, log infralogger.Logger) domain.Response {
	return d.accepted(d.analyzer.Retry(ctx, contextID), log)
}

// pageLoaded starts an analysis only when auto-analyze is on and the page
// has substantial content. Skipping is not a failure.
func (d *Dispatcher) pageLoaded(
	ctx context.Context,
	contextID string,
	msg domain.InboundMessage,
	log infralogger.Logger,
) domain.Response {
	current, err := d.settings.Load(ctx)
	if err != nil {
		log.Warn("Failed to load settings, using defaults", infralogger.Error(err))
		current = settings.Defaults()
	}
	if !current.AutoAnalyze {
		log.Debug("Auto-analyze disabled")
		return domain.OK()
	}

	article, err := d.articleFrom(msg)
	if err != nil {
		return domain.Fail(err.Error())
	}
	if article.ContentLength() <= d.minContentLength {
		log.Debug("Page content too short for auto-analyze",
			infralogger.Int("content_length", article.ContentLength()),
		)
		return domain.OK()
	}

	if err = d.analyzer.Submit(ctx, contextID, article); err != nil &&
		!errors.Is(err, orchestrator.ErrAnalysisInProgress) {
		return domain.Fail(domain.UserMessage(err))
	}
	return domain.OK()
}

// accepted maps the outcome of handing a request to the analyzer.
func (d *Dispatcher) accepted(err error, log infralogger.Logger) domain.Response {
	switch {
	case err == nil:
		return domain.OK()
	case errors.Is(err, orchestrator.ErrAnalysisInProgress), errors.Is(err, orchestrator.ErrNothingToRetry):
		return domain.Fail(err.Error())
	case domain.KindOf(err) != domain.KindUnknown:
		return domain.Fail(domain.UserMessage(err))
	default:
		log.Warn("Failed to start analysis", infralogger.Error(err))
		return domain.Fail(err.Error())
	}
}

func (d *Dispatcher) articleFrom(msg domain.InboundMessage) (domain.Article, error) {
	if msg.Article != nil {
		if err := msg.Article.Validate(); err != nil {
			return domain.Article{}, err
		}
		return *msg.Article, nil
	}
	if msg.HTML != "" && msg.URL != "" {
		return d.analyzer.Extract(msg.URL, msg.HTML)
	}
	return domain.Article{}, ErrMissingArticle
}

func (d *Dispatcher) updateAPIKey(ctx context.Context, apiKey string, log infralogger.Logger) domain.Response {
	apiKey = strings.TrimSpace(apiKey)
	if err := credentials.ValidateKey(apiKey, d.keyPrefix); err != nil {
		log.Info("Rejected API key", infralogger.Error(err))
		return domain.Fail(err.Error())
	}

	current, err := d.Settings(ctx)
	if err != nil {
		log.Error("Failed to load settings", infralogger.Error(err))
		return domain.Fail(err.Error())
	}

	current.APIKey = apiKey
	if err = d.UpdateSettings(ctx, current); err != nil {
		return domain.Fail(err.Error())
	}
	return domain.OK()
}

// Settings returns the stored settings.
func (d *Dispatcher) Settings(ctx context.Context) (settings.Settings, error) {
	return d.settings.Load(ctx)
}

// UpdateSettings validates and saves next, then rebuilds the remote client.
// An empty API key clears the credential.
func (d *Dispatcher) UpdateSettings(ctx context.Context, next settings.Settings) error {
	next.APIKey = strings.TrimSpace(next.APIKey)
	if next.APIKey != "" {
		if err := credentials.ValidateKey(next.APIKey, d.keyPrefix); err != nil {
			return err
		}
	}

	if err := d.settings.Save(ctx, next); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	d.keys.Update(next.APIKey)

	d.logger.Info("Settings saved",
		infralogger.String("api_key", credentials.MaskKey(next.APIKey)),
		infralogger.Bool("auto_analyze", next.AutoAnalyze),
	)
	return nil
}
