package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Post is the posts table row. Index is the dense model id; ID is the
// public identity. Feature columns hold the precomputed 768-dim image
// and text embedding vectors as JSON arrays; they are null until the
// embedding extractor has processed the post.
type Post struct {
	ID           uuid.UUID      `gorm:"column:id;primaryKey" json:"id"`
	Index        int            `gorm:"column:index" json:"index"`
	Caption      string         `gorm:"column:caption" json:"caption"`
	ImageKey     string         `gorm:"column:image_key" json:"image_key"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"created_at"`
	ImageFeature datatypes.JSON `gorm:"column:image_feature" json:"image_feature"`
	TextFeature  datatypes.JSON `gorm:"column:text_feature" json:"text_feature"`
}

func (Post) TableName() string {
	return "posts"
}

// PostAuthor is the author subset of the users table embedded in
// timeline responses.
type PostAuthor struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Bio          string    `json:"bio"`
	IconImageKey *string   `json:"icon_image_key"`
}

type CommentResponse struct {
	ID        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	User      PostAuthor `json:"user"`
}

type LikeResponse struct {
	ID        uuid.UUID  `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	User      PostAuthor `json:"user"`
}

type DailyTaskResponse struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Type      string    `json:"type"`
}

// CandidatePost is one row of the candidate query: a post with its
// content features, author and engagement payload. Proxy carries the
// popularity surrogate (likes + comments) and is only populated by the
// new-user query.
type CandidatePost struct {
	PostID       int                `json:"post_id"`
	PostUUID     uuid.UUID          `json:"post_uuid"`
	CreatedAt    time.Time          `json:"created_at"`
	ImageFeature []float64          `json:"image_feature"`
	TextFeature  []float64          `json:"text_feature"`
	Caption      string             `json:"caption"`
	ImageKey     string             `json:"image_key"`
	Proxy        float64            `json:"proxy"`
	Author       PostAuthor         `json:"author"`
	Comments     []CommentResponse  `json:"comments"`
	Likes        []LikeResponse     `json:"likes"`
	DailyTask    *DailyTaskResponse `json:"daily_task"`
}

// TimelinePost is a kept candidate with its decision score, as returned
// to the client.
type TimelinePost struct {
	ID        uuid.UUID          `json:"id"`
	Caption   string             `json:"caption"`
	ImageKey  string             `json:"image_key"`
	CreatedAt time.Time          `json:"created_at"`
	Score     float64            `json:"score"`
	User      PostAuthor         `json:"user"`
	Comments  []CommentResponse  `json:"comments"`
	Likes     []LikeResponse     `json:"likes"`
	DailyTask *DailyTaskResponse `json:"daily_task"`
}
