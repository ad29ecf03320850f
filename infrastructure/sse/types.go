// Package sse provides Server-Sent Events infrastructure for pushing
// presentation messages to browser contexts.
package sse

import (
	"context"
	"errors"
)

// ErrTooManyClients is returned by Subscribe when the broker is full.
var ErrTooManyClients = errors.New("too many SSE clients")

// Event represents a Server-Sent Event.
// Format: event: <Type>\nid: <ID>\ndata: <JSON payload>\n\n
type Event struct {
	// Type is the event type (e.g. "showResult", "hide").
	Type string `json:"type"`
	// Data is the JSON payload (must be JSON-serializable).
	Data any `json:"data"`
	// ID is an optional event ID for client-side tracking.
	ID string `json:"id,omitempty"`
	// Retry tells the client how long to wait before reconnecting (milliseconds).
	Retry int `json:"retry,omitempty"`
	// Topic routes the event to subscribers of one browser context.
	// Empty means broadcast. Never written to the wire.
	Topic string `json:"-"`
}

// Publisher sends events to the broker.
type Publisher interface {
	// Publish queues an event for delivery.
	// Returns error if the publish buffer is full or ctx is done.
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the broker.
type Subscriber interface {
	// Subscribe returns a channel that receives events and a cleanup func.
	// The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func(), error)
}

// Broker manages SSE connections and event distribution.
type Broker interface {
	Publisher
	Subscriber
	// Start begins processing events (non-blocking).
	Start(ctx context.Context) error
	// Stop gracefully shuts down the broker.
	Stop() error
	// ClientCount returns the number of connected clients.
	ClientCount() int
}

// EventFilter determines if an event should be sent to a client.
type EventFilter func(event Event) bool

// ClientOptions configures a single SSE client connection.
type ClientOptions struct {
	Filter     EventFilter
	BufferSize int
	// ContextID labels the stream in logs when it follows one browser context.
	ContextID string
}

// Presentation event types understood by the content script.
const (
	EventTypeShowResult = "showResult"
	EventTypeShowError  = "showError"
	EventTypeHide       = "hide"
)

// Internal event types.
const (
	eventTypeConnected = "connected"
)
