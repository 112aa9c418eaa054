package models

import "time"

const (
	RoleOwner  = "owner"
	RoleMember = "member"

	StatusInvited = "invited"
	StatusActive  = "active"
)

// Membership links a member to a zone. An invitation is a membership that
// hasn't been accepted yet.
type Membership struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	ZoneID    int       `gorm:"not null;uniqueIndex:idx_memberships_zone_member" json:"zone_id"`
	Zone      Zone      `gorm:"foreignKey:ZoneID" json:"-"`
	MemberID  int       `gorm:"not null;uniqueIndex:idx_memberships_zone_member;index" json:"member_id"`
	Username  string    `json:"username"`
	Role      string    `gorm:"not null" json:"role"`
	Status    string    `gorm:"not null;index" json:"status"`
	InvitedBy *int      `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type InviteRequest struct {
	MemberID int `json:"member_id" binding:"required,gt=0"`
}
