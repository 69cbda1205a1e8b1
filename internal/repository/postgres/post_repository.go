package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"pawgram/domain"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PostRepository struct {
	DB *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{DB: db}
}

type candidateRow struct {
	PostID       int            `gorm:"column:post_id"`
	PostUUID     uuid.UUID      `gorm:"column:post_uuid"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	Caption      string         `gorm:"column:caption"`
	ImageKey     string         `gorm:"column:image_key"`
	ImageFeature datatypes.JSON `gorm:"column:image_feature"`
	TextFeature  datatypes.JSON `gorm:"column:text_feature"`
	Proxy        float64        `gorm:"column:proxy"`

	AuthorID           uuid.UUID `gorm:"column:author_id"`
	AuthorName         string    `gorm:"column:author_name"`
	AuthorEmail        string    `gorm:"column:author_email"`
	AuthorBio          string    `gorm:"column:author_bio"`
	AuthorIconImageKey *string   `gorm:"column:author_icon_image_key"`
}

const existingCandidateSQL = `
SELECT p."index"  AS post_id,
       p.id       AS post_uuid,
       p.created_at,
       p.caption,
       p.image_key,
       p.image_feature,
       p.text_feature,
       0          AS proxy,
       u.id             AS author_id,
       u.name           AS author_name,
       u.email          AS author_email,
       u.bio            AS author_bio,
       u.icon_image_key AS author_icon_image_key
FROM posts p
JOIN users u ON u.id = p.user_id
WHERE p.image_feature IS NOT NULL
  AND p.text_feature IS NOT NULL
ORDER BY p.created_at DESC
LIMIT ?
`

// newCandidateSQL adds the popularity proxy: distinct likes plus
// distinct comments. Posts without content vectors are still valid
// cold-start candidates, the proxy needs no model input.
const newCandidateSQL = `
SELECT p."index"  AS post_id,
       p.id       AS post_uuid,
       p.created_at,
       p.caption,
       p.image_key,
       p.image_feature,
       p.text_feature,
       COUNT(DISTINCT l.id) + COUNT(DISTINCT c.id) AS proxy,
       u.id             AS author_id,
       u.name           AS author_name,
       u.email          AS author_email,
       u.bio            AS author_bio,
       u.icon_image_key AS author_icon_image_key
FROM posts p
JOIN users u ON u.id = p.user_id
LEFT JOIN likes l    ON l.post_id = p.id
LEFT JOIN comments c ON c.post_id = p.id
GROUP BY p."index", p.id, p.created_at, p.caption, p.image_key,
         p.image_feature, p.text_feature,
         u.id, u.name, u.email, u.bio, u.icon_image_key
ORDER BY p.created_at DESC
LIMIT ?
`

// CandidatesForExistingUser returns the freshest posts that carry both
// content vectors, with engagement payloads attached.
func (r *PostRepository) CandidatesForExistingUser(ctx context.Context, limit int) ([]domain.CandidatePost, error) {
	return r.candidates(ctx, existingCandidateSQL, limit, true)
}

// CandidatesForNewUser returns the freshest posts with the popularity
// proxy precomputed. Content vectors may be absent here.
func (r *PostRepository) CandidatesForNewUser(ctx context.Context, limit int) ([]domain.CandidatePost, error) {
	return r.candidates(ctx, newCandidateSQL, limit, false)
}

func (r *PostRepository) candidates(ctx context.Context, query string, limit int, decodeFeatures bool) ([]domain.CandidatePost, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []candidateRow
	if err := r.DB.WithContext(ctx).Raw(query, limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}

	candidates := make([]domain.CandidatePost, 0, len(rows))
	postUUIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		c := domain.CandidatePost{
			PostID:    row.PostID,
			PostUUID:  row.PostUUID,
			CreatedAt: row.CreatedAt,
			Caption:   row.Caption,
			ImageKey:  row.ImageKey,
			Proxy:     row.Proxy,
			Author: domain.PostAuthor{
				ID:           row.AuthorID,
				Name:         row.AuthorName,
				Email:        row.AuthorEmail,
				Bio:          row.AuthorBio,
				IconImageKey: row.AuthorIconImageKey,
			},
		}
		if decodeFeatures {
			if err := json.Unmarshal(row.ImageFeature, &c.ImageFeature); err != nil {
				return nil, fmt.Errorf("failed to unmarshal image_feature for post %d: %w", row.PostID, err)
			}
			if err := json.Unmarshal(row.TextFeature, &c.TextFeature); err != nil {
				return nil, fmt.Errorf("failed to unmarshal text_feature for post %d: %w", row.PostID, err)
			}
		}
		candidates = append(candidates, c)
		postUUIDs = append(postUUIDs, row.PostUUID)
	}

	if err := r.attachEngagement(ctx, candidates, postUUIDs); err != nil {
		return nil, err
	}

	return candidates, nil
}

type commentRow struct {
	ID        uuid.UUID `gorm:"column:id"`
	PostID    uuid.UUID `gorm:"column:post_id"`
	Content   string    `gorm:"column:content"`
	CreatedAt time.Time `gorm:"column:created_at"`

	UserID           uuid.UUID `gorm:"column:user_id"`
	UserName         string    `gorm:"column:user_name"`
	UserEmail        string    `gorm:"column:user_email"`
	UserBio          string    `gorm:"column:user_bio"`
	UserIconImageKey *string   `gorm:"column:user_icon_image_key"`
}

type likeRow struct {
	ID        uuid.UUID `gorm:"column:id"`
	PostID    uuid.UUID `gorm:"column:post_id"`
	CreatedAt time.Time `gorm:"column:created_at"`

	UserID           uuid.UUID `gorm:"column:user_id"`
	UserName         string    `gorm:"column:user_name"`
	UserEmail        string    `gorm:"column:user_email"`
	UserBio          string    `gorm:"column:user_bio"`
	UserIconImageKey *string   `gorm:"column:user_icon_image_key"`
}

type dailyTaskRow struct {
	ID        uuid.UUID `gorm:"column:id"`
	PostID    uuid.UUID `gorm:"column:post_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
	Type      string    `gorm:"column:type"`
}

// attachEngagement joins comments, likes and the optional daily task
// for the candidate set in three batch queries.
func (r *PostRepository) attachEngagement(ctx context.Context, candidates []domain.CandidatePost, postUUIDs []uuid.UUID) error {
	if len(postUUIDs) == 0 {
		return nil
	}

	byUUID := make(map[uuid.UUID]*domain.CandidatePost, len(candidates))
	for i := range candidates {
		byUUID[candidates[i].PostUUID] = &candidates[i]
	}

	var comments []commentRow
	err := r.DB.WithContext(ctx).Raw(`
SELECT c.id, c.post_id, c.content, c.created_at,
       u.id AS user_id, u.name AS user_name, u.email AS user_email,
       u.bio AS user_bio, u.icon_image_key AS user_icon_image_key
FROM comments c
JOIN users u ON u.id = c.user_id
WHERE c.post_id IN ?
ORDER BY c.created_at ASC`, postUUIDs).Scan(&comments).Error
	if err != nil {
		return fmt.Errorf("failed to query comments: %w", err)
	}
	for _, row := range comments {
		if c, ok := byUUID[row.PostID]; ok {
			c.Comments = append(c.Comments, domain.CommentResponse{
				ID:        row.ID,
				Content:   row.Content,
				CreatedAt: row.CreatedAt,
				User: domain.PostAuthor{
					ID:           row.UserID,
					Name:         row.UserName,
					Email:        row.UserEmail,
					Bio:          row.UserBio,
					IconImageKey: row.UserIconImageKey,
				},
			})
		}
	}

	var likes []likeRow
	err = r.DB.WithContext(ctx).Raw(`
SELECT l.id, l.post_id, l.created_at,
       u.id AS user_id, u.name AS user_name, u.email AS user_email,
       u.bio AS user_bio, u.icon_image_key AS user_icon_image_key
FROM likes l
JOIN users u ON u.id = l.user_id
WHERE l.post_id IN ?
ORDER BY l.created_at ASC`, postUUIDs).Scan(&likes).Error
	if err != nil {
		return fmt.Errorf("failed to query likes: %w", err)
	}
	for _, row := range likes {
		if c, ok := byUUID[row.PostID]; ok {
			c.Likes = append(c.Likes, domain.LikeResponse{
				ID:        row.ID,
				CreatedAt: row.CreatedAt,
				User: domain.PostAuthor{
					ID:           row.UserID,
					Name:         row.UserName,
					Email:        row.UserEmail,
					Bio:          row.UserBio,
					IconImageKey: row.UserIconImageKey,
				},
			})
		}
	}

	var tasks []dailyTaskRow
	err = r.DB.WithContext(ctx).Raw(`
SELECT id, post_id, created_at, type
FROM daily_tasks
WHERE post_id IN ?`, postUUIDs).Scan(&tasks).Error
	if err != nil {
		return fmt.Errorf("failed to query daily tasks: %w", err)
	}
	for _, row := range tasks {
		if c, ok := byUUID[row.PostID]; ok {
			c.DailyTask = &domain.DailyTaskResponse{
				ID:        row.ID,
				CreatedAt: row.CreatedAt,
				Type:      row.Type,
			}
		}
	}

	return nil
}

// UpdateFeatures writes both content vectors of one post inside its own
// transaction, so one bad post never poisons the rest of a batch.
func (r *PostRepository) UpdateFeatures(ctx context.Context, postID uuid.UUID, image, text []float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	imageJSON, err := json.Marshal(image)
	if err != nil {
		return fmt.Errorf("failed to marshal image feature: %w", err)
	}
	textJSON, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("failed to marshal text feature: %w", err)
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Post{}).Where("id = ?", postID).Updates(map[string]interface{}{
			"image_feature": datatypes.JSON(imageJSON),
			"text_feature":  datatypes.JSON(textJSON),
		})
		if result.Error != nil {
			return fmt.Errorf("failed to update features for post %s: %w", postID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("post %s not found", postID)
		}
		return nil
	})
}
