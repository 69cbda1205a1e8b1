package domain

import "time"

// Interaction is one implicit-feedback row: a user authored, liked or
// commented on a post. Rating carries the raw signal magnitude; the
// sample builder binarizes it before training.
type Interaction struct {
	UserID       int       `gorm:"column:user_id" json:"user_id"`
	PostID       int       `gorm:"column:post_id" json:"post_id"`
	Rating       float64   `gorm:"column:rating" json:"rating"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	ImageFeature []float64 `gorm:"-" json:"image_feature"`
	TextFeature  []float64 `gorm:"-" json:"text_feature"`
}
