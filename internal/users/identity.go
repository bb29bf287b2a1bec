package users

import (
	"strings"
	"time"
)

// Actor is the authenticated user performing an operation. The core trusts it
// without further verification.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile records the last known display details of a user.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	DisplayName string    `gorm:"column:display_name;size:320;not null;default:''"`
	Email       string    `gorm:"column:email;size:320;not null;default:''"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// Actor converts the profile into the identity handed to domain services.
func (p Profile) Actor() Actor {
	name := p.DisplayName
	if name == "" {
		name = p.Email
	}
	if name == "" {
		name = p.UserID
	}
	return Actor{ID: p.UserID, Name: name}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
