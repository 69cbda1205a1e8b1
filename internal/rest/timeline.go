package rest

import (
	"context"
	"net/http"
	"pawgram/domain"
	"pawgram/pkg/metrics"
	"time"

	"github.com/AMFarhan21/fres"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	TimelineHandler struct {
		timelineService TimelineService
	}

	TimelineService interface {
		Timeline(ctx context.Context, userID uuid.UUID) ([]domain.TimelinePost, error)
		Reload(ctx context.Context) error
	}

	ResponseError struct {
		Message string `json:"message"`
	}
)

func NewTimelineHandler(svc TimelineService) *TimelineHandler {
	return &TimelineHandler{
		timelineService: svc,
	}
}

// GET /api/v1/timeline/:user_id
func (h *TimelineHandler) GetTimeline(c echo.Context) error {
	start := time.Now()

	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid user id"})
	}

	posts, err := h.timelineService.Timeline(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	metrics.TimelineRequests.Inc()
	metrics.TimelineLatency.Observe(time.Since(start).Seconds())

	return c.JSON(http.StatusOK, fres.Response.StatusOK(posts))
}

// POST /api/v1/model/reload
func (h *TimelineHandler) Reload(c echo.Context) error {
	if err := h.timelineService.Reload(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	metrics.ModelReloads.Inc()

	return c.JSON(http.StatusOK, fres.Response.StatusOK("model reloaded"))
}
