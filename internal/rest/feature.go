package rest

import (
	"context"
	"net/http"
	"pawgram/business/feature"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	FeatureHandler struct {
		validate       *validator.Validate
		featureService FeatureService
	}

	FeatureService interface {
		ApplyBatch(ctx context.Context, updates []feature.Update) (feature.Result, error)
	}

	FeatureItem struct {
		PostID       string    `json:"post_id" validate:"required,uuid"`
		ImageFeature []float64 `json:"image_feature" validate:"required"`
		TextFeature  []float64 `json:"text_feature" validate:"required"`
	}

	FeatureBatchRequest struct {
		Items []FeatureItem `json:"items" validate:"required,min=1,dive"`
	}
)

func NewFeatureHandler(svc FeatureService) *FeatureHandler {
	return &FeatureHandler{
		validate:       validator.New(),
		featureService: svc,
	}
}

// POST /api/v1/posts/features
func (h *FeatureHandler) UpsertFeatures(c echo.Context) error {
	var req FeatureBatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	updates := make([]feature.Update, 0, len(req.Items))
	for _, item := range req.Items {
		postID, err := uuid.Parse(item.PostID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid post id: " + item.PostID})
		}
		updates = append(updates, feature.Update{
			PostID:       postID,
			ImageFeature: item.ImageFeature,
			TextFeature:  item.TextFeature,
		})
	}

	res, err := h.featureService.ApplyBatch(c.Request().Context(), updates)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(res))
}
