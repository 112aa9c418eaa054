package models

import "time"

// Zone is a community that groups points.
type Zone struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	CreatorID   int       `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateZoneRequest struct {
	Name        string `json:"name" binding:"required,min=3,max=50,alphanum"`
	Description string `json:"description" binding:"max=500"`
}
