package router

import (
	"pawgram/internal/rest"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupTimelineRoutes(api *echo.Group, handler *rest.TimelineHandler) {
	timeline := api.Group("/timeline")
	timeline.GET("/:user_id", handler.GetTimeline)

	api.POST("/model/reload", handler.Reload)
}

func SetupFeatureRoutes(api *echo.Group, handler *rest.FeatureHandler) {
	posts := api.Group("/posts")
	posts.POST("/features", handler.UpsertFeatures)
}

func SetupSystemRoutes(e *echo.Echo, handler *rest.HealthHandler) {
	e.GET("/health", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
