// Package api assembles the HTTP surface: REST settings and status under
// /v1 and the /ws control channel.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/konkon3660/graduationP/internal/api/handlers"
	"github.com/konkon3660/graduationP/internal/api/middleware"
	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/crypto"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/websocket"
)

// Deps are the services the routes call into.
type Deps struct {
	Engine  *autoplay.Engine
	Feed    *feed.Scheduler
	Store   handlers.SettingsStore
	Control *websocket.Server
	// Bus adds MQTT stats to /v1/status when non-nil.
	Bus handlers.BusStats
	// JWT enables bearer auth on /v1 and /ws when non-nil.
	JWT            *crypto.JWTManager
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: !containsWildcard(origins),
	}))
	router.Use(middleware.RequestLogger())

	statusHandler := handlers.NewStatusHandler(d.Engine, d.Feed, d.Bus)
	autoplayHandler := handlers.NewAutoplayHandler(d.Engine, d.Store)
	feedHandler := handlers.NewFeedHandler(d.Feed, d.Store)

	// Root endpoint - plain text for reachability checks
	router.GET("/", statusHandler.Root)

	auth := middleware.AuthMiddleware(d.JWT)

	v1 := router.Group("/v1")
	v1.Use(auth)
	{
		v1.GET("/status", statusHandler.GetStatus)

		v1.GET("/autoplay/status", autoplayHandler.GetStatus)
		v1.POST("/autoplay/settings", autoplayHandler.UpdateSettings)

		v1.GET("/feed/settings", feedHandler.GetSettings)
		v1.POST("/feed/settings", feedHandler.UpdateSettings)
		v1.POST("/feed/now", feedHandler.FeedNow)
		v1.GET("/feed/history", feedHandler.History)
		v1.POST("/feed/scheduler/start", feedHandler.StartScheduler)
		v1.POST("/feed/scheduler/stop", feedHandler.StopScheduler)
	}

	if d.Control != nil {
		router.GET("/ws", auth, d.Control.HandleWebSocket)
	}
	return router
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
