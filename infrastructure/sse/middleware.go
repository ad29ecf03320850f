package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// SSE header constants.
const (
	headerContentType              = "Content-Type"
	headerCacheControl             = "Cache-Control"
	headerConnection               = "Connection"
	headerXAccelBuffering          = "X-Accel-Buffering"
	headerAccessControlAllowOrigin = "Access-Control-Allow-Origin"

	sseContentType = "text/event-stream"
)

// ContextHandler streams only the events addressed to the browser context
// named by the given path parameter.
func ContextHandler(broker Broker, logger infralogger.Logger, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		contextID := c.Param(param)
		if contextID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": param + " is required"})
			return
		}
		serve(c, broker, logger.With(infralogger.ContextID(contextID)), []ClientOption{WithContextFilter(contextID)})
	}
}

func serve(c *gin.Context, broker Broker, logger infralogger.Logger, opts []ClientOption) {
	eventChan, cleanup, err := broker.Subscribe(c.Request.Context(), opts...)
	if err != nil {
		logger.Warn("SSE subscription rejected", infralogger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
		return
	}
	defer cleanup()

	setSSEHeaders(c.Writer)
	c.Writer.Flush()

	if writeErr := sendConnectionEvent(c.Writer); writeErr != nil {
		logger.Error("Failed to write connection event", infralogger.Error(writeErr))
		return
	}

	logger.Debug("SSE client connected",
		infralogger.String("remote_addr", c.ClientIP()),
	)

	streamEvents(c, eventChan, heartbeatInterval(broker), logger)
}

// heartbeatInterval uses the broker's configured interval when it exposes one.
func heartbeatInterval(broker Broker) time.Duration {
	if hb, ok := broker.(interface{ HeartbeatInterval() time.Duration }); ok && hb.HeartbeatInterval() > 0 {
		return hb.HeartbeatInterval()
	}
	return DefaultHeartbeatInterval
}

// setSSEHeaders sets the standard SSE headers on a Gin response writer.
func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set(headerContentType, sseContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
	w.Header().Set(headerAccessControlAllowOrigin, "*")
}

// sendConnectionEvent sends the initial connection event.
func sendConnectionEvent(w gin.ResponseWriter) error {
	connectedEvent := Event{
		Type: eventTypeConnected,
		Data: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"message":   "SSE connection established",
		},
	}
	return writeEvent(w, connectedEvent)
}

// streamEvents handles the main event streaming loop.
func streamEvents(c *gin.Context, eventChan <-chan Event, heartbeat time.Duration, logger infralogger.Logger) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !handleEventReceived(c.Writer, event, ok, logger) {
				return
			}
		case <-ticker.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				logger.Debug("SSE heartbeat failed (client disconnected)")
				return
			}
		case <-c.Request.Context().Done():
			logger.Debug("SSE client request context cancelled")
			return
		}
	}
}

// handleEventReceived processes a received event and returns false if streaming should stop.
func handleEventReceived(w gin.ResponseWriter, event Event, ok bool, logger infralogger.Logger) bool {
	if !ok {
		logger.Debug("SSE event channel closed")
		return false
	}

	if err := writeEvent(w, event); err != nil {
		logger.Debug("SSE write failed (client likely disconnected)",
			infralogger.Error(err),
			infralogger.String("event_type", event.Type),
		)
		return false
	}

	return true
}

// encodeEvent writes event in text/event-stream framing.
func encodeEvent(w io.Writer, event Event) error {
	if event.Type != "" {
		if _, writeErr := fmt.Fprintf(w, "event: %s\n", event.Type); writeErr != nil {
			return fmt.Errorf("write event type: %w", writeErr)
		}
	}

	if event.ID != "" {
		if _, writeErr := fmt.Fprintf(w, "id: %s\n", event.ID); writeErr != nil {
			return fmt.Errorf("write event id: %w", writeErr)
		}
	}

	if event.Retry > 0 {
		if _, writeErr := fmt.Fprintf(w, "retry: %d\n", event.Retry); writeErr != nil {
			return fmt.Errorf("write retry: %w", writeErr)
		}
	}

	dataJSON, marshalErr := json.Marshal(event.Data)
	if marshalErr != nil {
		return fmt.Errorf("marshal event data: %w", marshalErr)
	}

	if _, writeErr := fmt.Fprintf(w, "data: %s\n\n", dataJSON); writeErr != nil {
		return fmt.Errorf("write event data: %w", writeErr)
	}

	return nil
}

// writeEvent writes an SSE event to the response writer.
func writeEvent(w gin.ResponseWriter, event Event) error {
	if err := encodeEvent(w, event); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// writeHeartbeat writes an SSE comment to keep the connection alive.
func writeHeartbeat(w gin.ResponseWriter) error {
	if _, writeErr := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); writeErr != nil {
		return fmt.Errorf("write heartbeat: %w", writeErr)
	}
	w.Flush()
	return nil
}
