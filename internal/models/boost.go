package models

import "time"

// Boost tracks one member's vote on a point or comment. SubjectID is the
// namespaced key ("point:12", "comment:7"); the unique index keeps a single
// row per member and subject.
type Boost struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SubjectID string    `gorm:"not null;uniqueIndex:idx_boosts_subject_voter;index:idx_boosts_subject_direction" json:"subject_id"`
	VoterID   string    `gorm:"not null;uniqueIndex:idx_boosts_subject_voter" json:"voter_id"`
	Direction string    `gorm:"not null;type:varchar(8);index:idx_boosts_subject_direction" json:"direction"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BoostRequest struct {
	Direction string `json:"direction" binding:"required"`
}
