package models

import "time"

type Comment struct {
	ID              int       `gorm:"primaryKey" json:"id"`
	Body            string    `gorm:"not null" json:"body"`
	AuthorID        int       `json:"author_id"`
	Author          string    `json:"author"`
	PointID         int       `gorm:"index" json:"point_id"`
	ParentCommentID *int      `json:"parent_comment_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateCommentRequest struct {
	Body            string `json:"body" binding:"required"`
	ParentCommentID *int   `json:"parent_comment_id,omitempty"`
}
