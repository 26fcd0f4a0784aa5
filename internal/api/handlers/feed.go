package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/logger"
)

type FeedHandler struct {
	scheduler *feed.Scheduler
	store     SettingsStore
}

func NewFeedHandler(scheduler *feed.Scheduler, store SettingsStore) *FeedHandler {
	return &FeedHandler{scheduler: scheduler, store: store}
}

// GetSettings handles GET /v1/feed/settings
func (h *FeedHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Settings())
}

// UpdateSettings handles POST /v1/feed/settings
func (h *FeedHandler) UpdateSettings(c *gin.Context) {
	var patch feed.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next, err := patch.Apply(h.scheduler.Settings())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SaveFeed(c.Request.Context(), next); err != nil {
		logger.Errorf("[api] save feed settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}
	if err := h.scheduler.SetSettings(next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("[api] feed settings: mode=%s interval=%dm amount=%d", next.Mode, next.Interval, next.Amount)
	c.JSON(http.StatusOK, gin.H{"status": "success", "settings": next})
}

type FeedNowRequest struct {
	Amount *int `json:"amount"`
}

// FeedNow handles POST /v1/feed/now
func (h *FeedHandler) FeedNow(c *gin.Context) {
	var req FeedNowRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}

	err := h.scheduler.FeedNow(c.Request.Context(), amount)
	switch {
	case errors.Is(err, feed.ErrInvalidAmount), errors.Is(err, feed.ErrAutoMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "amount": amount})
	}
}

// StartScheduler handles POST /v1/feed/scheduler/start
func (h *FeedHandler) StartScheduler(c *gin.Context) {
	h.scheduler.Start()
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// StopScheduler handles POST /v1/feed/scheduler/stop
func (h *FeedHandler) StopScheduler(c *gin.Context) {
	h.scheduler.Stop()
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// History handles GET /v1/feed/history
func (h *FeedHandler) History(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	items, err := h.store.RecentFeedings(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feedings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
