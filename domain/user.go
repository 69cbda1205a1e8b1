package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the users table subset the ranking service reads. Index is
// the dense id the model embeds; users created after the last training
// run have an index beyond the model's user count and are served the
// cold-start branch.
type User struct {
	ID           uuid.UUID `gorm:"column:id;primaryKey" json:"id"`
	Index        int       `gorm:"column:index" json:"index"`
	Name         string    `gorm:"column:name" json:"name"`
	Email        string    `gorm:"column:email" json:"email"`
	Bio          string    `gorm:"column:bio" json:"bio"`
	IconImageKey *string   `gorm:"column:icon_image_key" json:"icon_image_key"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
