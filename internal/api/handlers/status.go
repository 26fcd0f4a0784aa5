package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/mqttbus"
)

// Banner is served at GET /.
const Banner = "petbot control server"

// BusStats reports MQTT connection health and per-topic publish counts.
type BusStats interface {
	Stats() mqttbus.Stats
}

type StatusHandler struct {
	engine    *autoplay.Engine
	scheduler *feed.Scheduler
	bus       BusStats
}

// NewStatusHandler builds the handler. bus may be nil when MQTT is disabled.
func NewStatusHandler(engine *autoplay.Engine, scheduler *feed.Scheduler, bus BusStats) *StatusHandler {
	return &StatusHandler{engine: engine, scheduler: scheduler, bus: bus}
}

// StatusResponse is the combined robot status.
type StatusResponse struct {
	Autoplay autoplay.Status `json:"autoplay"`
	Feed     feed.Status     `json:"feed"`
	MQTT     *mqttbus.Stats  `json:"mqtt,omitempty"`
}

// Root handles GET /
func (h *StatusHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, Banner)
}

// GetStatus handles GET /v1/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	resp := StatusResponse{
		Autoplay: h.engine.Status(),
		Feed:     h.scheduler.Status(),
	}
	if h.bus != nil {
		stats := h.bus.Stats()
		resp.MQTT = &stats
	}
	c.JSON(http.StatusOK, resp)
}
