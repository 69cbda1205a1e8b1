package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"pawgram/domain"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InteractionRepository struct {
	DB *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) *InteractionRepository {
	return &InteractionRepository{DB: db}
}

type interactionRow struct {
	UserID       int            `gorm:"column:user_id"`
	PostID       int            `gorm:"column:post_id"`
	Rating       float64        `gorm:"column:rating"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	ImageFeature datatypes.JSON `gorm:"column:image_feature"`
	TextFeature  datatypes.JSON `gorm:"column:text_feature"`
}

// ratingUnionSQL assembles the implicit-feedback table: authoring,
// liking or commenting on a post each count as one interaction. Only
// posts that already carry both content vectors are usable for training.
const ratingUnionSQL = `
SELECT u."index" AS user_id,
       p."index" AS post_id,
       1.0       AS rating,
       src.created_at,
       p.image_feature,
       p.text_feature
FROM (
    SELECT user_id, id AS post_id, created_at FROM posts
    UNION ALL
    SELECT user_id, post_id, created_at FROM likes
    UNION ALL
    SELECT user_id, post_id, created_at FROM comments
) src
JOIN users u ON u.id = src.user_id
JOIN posts p ON p.id = src.post_id
WHERE p.image_feature IS NOT NULL
  AND p.text_feature IS NOT NULL
ORDER BY src.created_at ASC
`

// FetchAll returns every usable interaction with the post's content
// vectors attached, oldest first.
func (r *InteractionRepository) FetchAll(ctx context.Context) ([]domain.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []interactionRow
	if err := r.DB.WithContext(ctx).Raw(ratingUnionSQL).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}

	interactions := make([]domain.Interaction, 0, len(rows))
	for _, row := range rows {
		var image, text []float64
		if err := json.Unmarshal(row.ImageFeature, &image); err != nil {
			return nil, fmt.Errorf("failed to unmarshal image_feature for post %d: %w", row.PostID, err)
		}
		if err := json.Unmarshal(row.TextFeature, &text); err != nil {
			return nil, fmt.Errorf("failed to unmarshal text_feature for post %d: %w", row.PostID, err)
		}
		interactions = append(interactions, domain.Interaction{
			UserID:       row.UserID,
			PostID:       row.PostID,
			Rating:       row.Rating,
			CreatedAt:    row.CreatedAt,
			ImageFeature: image,
			TextFeature:  text,
		})
	}

	return interactions, nil
}

// Counts returns the dense user and item universe sizes, so the trainer
// can inject them into the model config.
func (r *InteractionRepository) Counts(ctx context.Context) (numUsers, numItems int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, fmt.Errorf("context error: %w", err)
	}

	var maxUser, maxItem int
	if err := r.DB.WithContext(ctx).Raw(`SELECT COALESCE(MAX("index"), -1) FROM users`).Scan(&maxUser).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	if err := r.DB.WithContext(ctx).Raw(`SELECT COALESCE(MAX("index"), -1) FROM posts`).Scan(&maxItem).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	return maxUser + 1, maxItem + 1, nil
}
