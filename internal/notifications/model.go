package notifications

import "time"

// Kind groups inbox entries for display.
type Kind string

const (
	KindBarter    Kind = "barter"
	KindCommunity Kind = "community"
	KindSystem    Kind = "system"
)

// Notification is one inbox entry owned by a single user.
type Notification struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Kind      Kind      `gorm:"column:kind;size:32;not null" json:"kind"`
	SubjectID string    `gorm:"column:subject_id;size:190;not null;default:''" json:"subject_id,omitempty"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`
	Read      bool      `gorm:"column:is_read;not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// Notice is emitted by domain services on state transitions. A notice with an
// empty Message is delivered as a realtime event only.
type Notice struct {
	Recipients []string
	Kind       Kind
	EventType  string
	SubjectID  string
	Message    string
}
