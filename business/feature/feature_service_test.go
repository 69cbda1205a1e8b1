package feature

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeatureRepo struct {
	written map[uuid.UUID][]float64
	failOn  uuid.UUID
}

func (r *stubFeatureRepo) UpdateFeatures(ctx context.Context, postID uuid.UUID, image, text []float64) error {
	if postID == r.failOn {
		return errors.New("write failed")
	}
	if r.written == nil {
		r.written = map[uuid.UUID][]float64{}
	}
	r.written[postID] = image
	return nil
}

func vec(dim int) []float64 {
	return make([]float64, dim)
}

func TestApplyBatchPersistsEachUpdate(t *testing.T) {
	repo := &stubFeatureRepo{}
	svc := NewService(repo, 8)

	updates := []Update{
		{PostID: uuid.New(), ImageFeature: vec(8), TextFeature: vec(8)},
		{PostID: uuid.New(), ImageFeature: vec(8), TextFeature: vec(8)},
	}
	res, err := svc.ApplyBatch(context.Background(), updates)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, res.Failed)
	assert.Len(t, repo.written, 2)
}

func TestApplyBatchFailureDoesNotAbortBatch(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()
	repo := &stubFeatureRepo{failOn: bad}
	svc := NewService(repo, 8)

	res, err := svc.ApplyBatch(context.Background(), []Update{
		{PostID: bad, ImageFeature: vec(8), TextFeature: vec(8)},
		{PostID: good, ImageFeature: vec(8), TextFeature: vec(8)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, []string{bad.String()}, res.Failed)
	assert.Contains(t, repo.written, good)
}

func TestApplyBatchRejectsWrongDimensions(t *testing.T) {
	repo := &stubFeatureRepo{}
	svc := NewService(repo, 8)

	short := uuid.New()
	res, err := svc.ApplyBatch(context.Background(), []Update{
		{PostID: short, ImageFeature: vec(4), TextFeature: vec(8)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, []string{short.String()}, res.Failed)
	assert.Empty(t, repo.written)
}
