// Package presenter delivers outbound presentation messages to browser
// contexts over the SSE broker.
package presenter

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/sse"
)

// SSE publishes each message as an event addressed to its browser context.
type SSE struct {
	publisher sse.Publisher
	logger    infralogger.Logger
}

// NewSSE creates a presenter on publisher.
func NewSSE(publisher sse.Publisher, logger infralogger.Logger) *SSE {
	return &SSE{publisher: publisher, logger: logger}
}

// ShowResult publishes a showResult event.
func (p *SSE) ShowResult(ctx context.Context, contextID string, msg domain.ShowResultMessage) error {
	msg.Action = domain.ActionShowResult
	return p.publish(ctx, contextID, sse.EventTypeShowResult, msg)
}

// ShowError publishes a showError event.
func (p *SSE) ShowError(ctx context.Context, contextID string, msg domain.ShowErrorMessage) error {
	msg.Action = domain.ActionShowError
	return p.publish(ctx, contextID, sse.EventTypeShowError, msg)
}

// Hide publishes a hide event.
func (p *SSE) Hide(ctx context.Context, contextID string) error {
	return p.publish(ctx, contextID, sse.EventTypeHide, domain.HideMessage{Action: domain.ActionHide})
}

func (p *SSE) publish(ctx context.Context, contextID, eventType string, data any) error {
	event := sse.Event{
		Type:  eventType,
		ID:    uuid.NewString(),
		Data:  data,
		Topic: contextID,
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	p.logger.Debug("Presented message",
		infralogger.ContextID(contextID),
		infralogger.String("event_type", eventType),
		infralogger.String("event_id", event.ID),
	)
	return nil
}
