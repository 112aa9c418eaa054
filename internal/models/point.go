package models

import "time"

// Point is a post inside a zone.
type Point struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Content   string    `json:"content"`
	ZoneID    int       `gorm:"index" json:"zone_id"`
	Zone      Zone      `gorm:"foreignKey:ZoneID" json:"-"`
	AuthorID  int       `gorm:"index" json:"author_id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreatePointRequest struct {
	Title   string `json:"title" binding:"required,max=300"`
	Content string `json:"content"`
	Zone    string `json:"zone" binding:"required"`
}

type UpdatePointRequest struct {
	Title   string `json:"title" binding:"max=300"`
	Content string `json:"content"`
}
