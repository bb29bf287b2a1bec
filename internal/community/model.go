package community

import "time"

// Role is a member's standing inside one community.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCoadmin Role = "coadmin"
	RoleMember  Role = "member"
)

// Community is a group that shares listings and is joined by code.
type Community struct {
	ID          string    `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	Name        string    `gorm:"column:name;size:255;not null" json:"name"`
	Location    string    `gorm:"column:location;size:255;not null;default:''" json:"location"`
	Description string    `gorm:"column:description;type:text;not null" json:"description"`
	Code        string    `gorm:"column:code;size:16;not null;uniqueIndex" json:"code"`
	CreatedBy   string    `gorm:"column:created_by;size:190;not null" json:"created_by"`
	MemberCount int       `gorm:"column:member_count;not null;default:0" json:"member_count"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Community) TableName() string {
	return "communities"
}

// Membership binds one user to one community with a role.
type Membership struct {
	CommunityID string    `gorm:"column:community_id;primaryKey;size:64;not null" json:"community_id"`
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null;index" json:"user_id"`
	DisplayName string    `gorm:"column:display_name;size:320;not null;default:''" json:"display_name"`
	Role        Role      `gorm:"column:role;size:16;not null" json:"role"`
	JoinedAt    time.Time `gorm:"column:joined_at;not null" json:"joined_at"`
}

func (Membership) TableName() string {
	return "community_memberships"
}

// Ban keeps a removed user from rejoining by code.
type Ban struct {
	CommunityID string    `gorm:"column:community_id;primaryKey;size:64;not null"`
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	BannedBy    string    `gorm:"column:banned_by;size:190;not null"`
	BannedAt    time.Time `gorm:"column:banned_at;not null"`
}

func (Ban) TableName() string {
	return "community_bans"
}

// CreateCommunityInput carries the founder-supplied fields.
type CreateCommunityInput struct {
	Name        string
	Location    string
	Description string
}

// UserCommunity is a community together with the viewer's role in it.
type UserCommunity struct {
	Community
	Role Role `json:"role"`
}
