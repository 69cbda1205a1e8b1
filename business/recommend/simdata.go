package recommend

import (
	"math/rand"
	"time"

	"pawgram/domain"
)

// GenerateSimInteractions fabricates an interaction log for pipeline
// validation: every user gets a handful of distinct items with random
// timestamps, every item a fixed random content vector. The output is
// valid sample-builder input for the configured universe.
func GenerateSimInteractions(cfg Config, rng *rand.Rand) []domain.Interaction {
	itemImage := make([][]float64, cfg.NumItems)
	itemText := make([][]float64, cfg.NumItems)
	for i := 0; i < cfg.NumItems; i++ {
		itemImage[i] = randomVector(rng, cfg.ImageFeatureDim)
		itemText[i] = randomVector(rng, cfg.TextFeatureDim)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var interactions []domain.Interaction
	for u := 0; u < cfg.NumUsers; u++ {
		count := 2 + rng.Intn(5)
		if count > cfg.NumItems {
			count = cfg.NumItems
		}
		for _, idx := range rng.Perm(cfg.NumItems)[:count] {
			interactions = append(interactions, domain.Interaction{
				UserID:       u,
				PostID:       idx,
				Rating:       1,
				CreatedAt:    base.Add(time.Duration(rng.Intn(90*24)) * time.Hour),
				ImageFeature: itemImage[idx],
				TextFeature:  itemText[idx],
			})
		}
	}

	return interactions
}

func randomVector(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}
