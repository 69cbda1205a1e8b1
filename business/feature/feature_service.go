package feature

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"pawgram/pkg/logger"
)

// PostFeatureRepository writes one post's content vectors in its own
// transaction.
type PostFeatureRepository interface {
	UpdateFeatures(ctx context.Context, postID uuid.UUID, image, text []float64) error
}

// Update is one post's extracted vectors coming from the embedding
// pipeline.
type Update struct {
	PostID       uuid.UUID
	ImageFeature []float64
	TextFeature  []float64
}

// Result reports how a batch went: failures are per-post, the rest of
// the batch is persisted regardless.
type Result struct {
	Applied int      `json:"applied"`
	Failed  []string `json:"failed,omitempty"`
}

type Service struct {
	repo       PostFeatureRepository
	featureDim int
}

func NewService(repo PostFeatureRepository, featureDim int) *Service {
	return &Service{repo: repo, featureDim: featureDim}
}

// ApplyBatch persists each update independently. A post that fails
// validation or its write is recorded and skipped; it never aborts the
// batch.
func (s *Service) ApplyBatch(ctx context.Context, updates []Update) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context error: %w", err)
	}

	var res Result
	for _, u := range updates {
		if err := s.apply(ctx, u); err != nil {
			logger.Error("feature update failed", "post_id", u.PostID, "error", err)
			res.Failed = append(res.Failed, u.PostID.String())
			continue
		}
		res.Applied++
	}

	return res, nil
}

func (s *Service) apply(ctx context.Context, u Update) error {
	if len(u.ImageFeature) != s.featureDim {
		return fmt.Errorf("image feature has dim %d, want %d", len(u.ImageFeature), s.featureDim)
	}
	if len(u.TextFeature) != s.featureDim {
		return fmt.Errorf("text feature has dim %d, want %d", len(u.TextFeature), s.featureDim)
	}

	return s.repo.UpdateFeatures(ctx, u.PostID, u.ImageFeature, u.TextFeature)
}
