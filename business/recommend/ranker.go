package recommend

import (
	"fmt"
	"sort"

	"pawgram/domain"
)

// Scorer is the piece of the model the serving policy needs.
type Scorer interface {
	ScoreOne(user, item int, image, text []float64) (float64, error)
	KnowsUser(userIndex int) bool
}

// Ranker applies the serving policy: model scores for users the trained
// model knows, a popularity proxy for everyone else.
type Ranker struct {
	model Scorer
}

// NewRanker wraps a trained scorer for serving.
func NewRanker(model Scorer) *Ranker {
	return &Ranker{model: model}
}

// KnowsUser reports whether the dense user index falls inside the
// trained embedding table.
func (r *Ranker) KnowsUser(userIndex int) bool {
	return r.model.KnowsUser(userIndex)
}

// RankExisting scores every candidate through the model, drops scores
// at or below ExistingUserThreshold and sorts by (score, post id)
// descending.
func (r *Ranker) RankExisting(userIndex int, candidates []domain.CandidatePost) ([]domain.TimelinePost, error) {
	type row struct {
		post domain.TimelinePost
		id   int
	}
	kept := make([]row, 0, len(candidates))
	for _, c := range candidates {
		score, err := r.model.ScoreOne(userIndex, c.PostID, c.ImageFeature, c.TextFeature)
		if err != nil {
			return nil, fmt.Errorf("score post %d for user %d: %w", c.PostID, userIndex, err)
		}
		if score <= ExistingUserThreshold {
			continue
		}
		kept = append(kept, row{post: toTimelinePost(c, score), id: c.PostID})
	}
	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].post.Score != kept[b].post.Score {
			return kept[a].post.Score > kept[b].post.Score
		}
		return kept[a].id > kept[b].id
	})

	out := make([]domain.TimelinePost, len(kept))
	for i, k := range kept {
		out[i] = k.post
	}
	return out, nil
}

// RankNew keeps candidates whose popularity proxy exceeds
// NewUserThreshold and sorts by (created_at, post id) descending. The
// proxy becomes the reported score.
func (r *Ranker) RankNew(candidates []domain.CandidatePost) []domain.TimelinePost {
	type row struct {
		post domain.TimelinePost
		id   int
	}
	kept := make([]row, 0, len(candidates))
	for _, c := range candidates {
		if c.Proxy <= NewUserThreshold {
			continue
		}
		kept = append(kept, row{post: toTimelinePost(c, c.Proxy), id: c.PostID})
	}
	sort.SliceStable(kept, func(a, b int) bool {
		if !kept[a].post.CreatedAt.Equal(kept[b].post.CreatedAt) {
			return kept[a].post.CreatedAt.After(kept[b].post.CreatedAt)
		}
		return kept[a].id > kept[b].id
	})

	out := make([]domain.TimelinePost, len(kept))
	for i, k := range kept {
		out[i] = k.post
	}
	return out
}

func toTimelinePost(c domain.CandidatePost, score float64) domain.TimelinePost {
	return domain.TimelinePost{
		ID:        c.PostUUID,
		Caption:   c.Caption,
		ImageKey:  c.ImageKey,
		CreatedAt: c.CreatedAt,
		Score:     score,
		User:      c.Author,
		Comments:  c.Comments,
		Likes:     c.Likes,
		DailyTask: c.DailyTask,
	}
}
