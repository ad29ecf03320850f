package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/veritas/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// ContextIDParam is the route parameter naming the browser context.
const ContextIDParam = "context_id"

// maxContextIDLength bounds the browser context identifier.
const maxContextIDLength = 128

// MessageDispatcher handles one inbound control message.
type MessageDispatcher interface {
	Handle(ctx context.Context, contextID string, msg domain.InboundMessage) domain.Response
}

// MessageHandler accepts control messages from the extension.
type MessageHandler struct {
	dispatcher MessageDispatcher
	logger     infralogger.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(dispatcher MessageDispatcher, log infralogger.Logger) *MessageHandler {
	return &MessageHandler{dispatcher: dispatcher, logger: log}
}

// HandleMessage dispatches the posted message. A refused message answers
// 422 with the same response body the extension expects.
func (h *MessageHandler) HandleMessage(c *gin.Context) {
	contextID := strings.TrimSpace(c.Param(ContextIDParam))
	if contextID == "" || len(contextID) > maxContextIDLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid context id"})
		return
	}

	var msg domain.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message: " + err.Error()})
		return
	}

	resp := h.dispatcher.Handle(c.Request.Context(), contextID, msg)
	if !resp.Success {
		infralogger.FromContextOr(c.Request.Context(), h.logger).Debug("Message refused",
			infralogger.ContextID(contextID),
			infralogger.String("action", msg.Action),
			infralogger.String("reason", resp.Error),
		)
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}
