package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/database"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/logger"
)

// SettingsStore persists settings changed through the API.
type SettingsStore interface {
	SaveAutoplay(ctx context.Context, s database.AutoplaySettings) error
	SaveFeed(ctx context.Context, s feed.Settings) error
	RecentFeedings(ctx context.Context, limit int) ([]database.FeedRecord, error)
}

type AutoplayHandler struct {
	engine *autoplay.Engine
	store  SettingsStore
}

func NewAutoplayHandler(engine *autoplay.Engine, store SettingsStore) *AutoplayHandler {
	return &AutoplayHandler{engine: engine, store: store}
}

// AutoplaySettingsRequest changes engine settings. Omitted fields are kept.
type AutoplaySettingsRequest struct {
	DelaySeconds *float64 `json:"delay_seconds"`
	DriveSpeed   *int     `json:"drive_speed"`
}

// GetStatus handles GET /v1/autoplay/status
func (h *AutoplayHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// UpdateSettings handles POST /v1/autoplay/settings
func (h *AutoplayHandler) UpdateSettings(c *gin.Context) {
	var req AutoplaySettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Check both fields before applying either so a bad request changes nothing.
	if req.DelaySeconds != nil && *req.DelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": autoplay.ErrInvalidDelay.Error()})
		return
	}
	if req.DriveSpeed != nil && (*req.DriveSpeed < 0 || *req.DriveSpeed > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": autoplay.ErrInvalidSpeed.Error()})
		return
	}

	if req.DelaySeconds != nil {
		d := time.Duration(*req.DelaySeconds * float64(time.Second))
		if err := h.engine.SetDebounceDelay(d); err != nil {
			writeEngineError(c, err)
			return
		}
	}
	if req.DriveSpeed != nil {
		if err := h.engine.SetDriveSpeed(*req.DriveSpeed); err != nil {
			writeEngineError(c, err)
			return
		}
	}

	st := h.engine.Status()
	saved := database.AutoplaySettings{DelaySeconds: st.DebounceDelaySeconds, DriveSpeed: st.DriveSpeed}
	if err := h.store.SaveAutoplay(c.Request.Context(), saved); err != nil {
		logger.Errorf("[api] save autoplay settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}

	logger.Infof("[api] autoplay settings: delay=%.1fs speed=%d", saved.DelaySeconds, saved.DriveSpeed)
	c.JSON(http.StatusOK, st)
}

func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, autoplay.ErrInvalidDelay), errors.Is(err, autoplay.ErrInvalidSpeed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, autoplay.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
