package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/veritas/internal/credentials"
	"github.com/jonesrussell/north-cloud/veritas/internal/settings"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// SettingsService reads and writes the extension settings.
type SettingsService interface {
	Settings(ctx context.Context) (settings.Settings, error)
	UpdateSettings(ctx context.Context, next settings.Settings) error
}

// settingsView is the settings as shown to the popup. The key is masked.
type settingsView struct {
	APIKey      string `json:"apiKey"`
	Configured  bool   `json:"configured"`
	AutoAnalyze bool   `json:"autoAnalyze"`
}

// settingsUpdate is a partial update; absent fields keep their value.
type settingsUpdate struct {
	APIKey      *string `json:"apiKey"`
	AutoAnalyze *bool   `json:"autoAnalyze"`
}

// SettingsHandler serves the popup's settings page.
type SettingsHandler struct {
	service SettingsService
	logger  infralogger.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(service SettingsService, log infralogger.Logger) *SettingsHandler {
	return &SettingsHandler{service: service, logger: log}
}

// GetSettings returns the current settings.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	current, err := h.service.Settings(c.Request.Context())
	if err != nil {
		infralogger.FromContextOr(c.Request.Context(), h.logger).Error("Failed to load settings", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, viewOf(current))
}

// UpdateSettings applies a partial settings update.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req settingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	current, err := h.service.Settings(ctx)
	if err != nil {
		infralogger.FromContextOr(c.Request.Context(), h.logger).Error("Failed to load settings", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}

	if req.APIKey != nil {
		current.APIKey = *req.APIKey
	}
	if req.AutoAnalyze != nil {
		current.AutoAnalyze = *req.AutoAnalyze
	}

	if err = h.service.UpdateSettings(ctx, current); err != nil {
		if errors.Is(err, credentials.ErrEmptyKey) || errors.Is(err, credentials.ErrInvalidKeyPrefix) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		infralogger.FromContextOr(c.Request.Context(), h.logger).Error("Failed to save settings", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, viewOf(current))
}

func viewOf(s settings.Settings) settingsView {
	return settingsView{
		APIKey:      credentials.MaskKey(s.APIKey),
		Configured:  s.APIKey != "",
		AutoAnalyze: s.AutoAnalyze,
	}
}
