package listings

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
)

// Category distinguishes goods from services.
type Category string

const (
	CategoryProduct Category = "product"
	CategoryService Category = "service"
)

var (
	ErrListingNotFound  = apperrors.NotFound("listings: listing not found")
	ErrNotListingOwner  = apperrors.Unauthorized("listings: only the owner may modify this listing")
	ErrNotMember        = apperrors.InsufficientPermission("listings: owner is not a member of the community")
	ErrInvalidTitle     = apperrors.InvalidArgument("listings: title is required")
	ErrInvalidCategory  = apperrors.InvalidArgument("listings: category must be product or service")
	ErrInvalidValue     = apperrors.InvalidArgument("listings: estimated value must not be negative")
	ErrInvalidCommunity = apperrors.InvalidArgument("listings: community id is required")
)

// ParseCategory normalizes raw input into a Category.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryProduct:
		return CategoryProduct, nil
	case CategoryService:
		return CategoryService, nil
	default:
		return "", ErrInvalidCategory
	}
}

// Listing is an offer of goods or services posted to one community.
type Listing struct {
	ID             string     `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	CommunityID    string     `gorm:"column:community_id;size:64;not null;index:idx_listings_community_owner,priority:1" json:"community_id"`
	OwnerID        string     `gorm:"column:owner_id;size:190;not null;index:idx_listings_community_owner,priority:2" json:"owner_id"`
	OwnerName      string     `gorm:"column:owner_name;size:320;not null;default:''" json:"owner_name"`
	Title          string     `gorm:"column:title;size:255;not null" json:"title"`
	Description    string     `gorm:"column:description;type:text;not null" json:"description"`
	Category       Category   `gorm:"column:category;size:32;not null" json:"category"`
	EstimatedValue float64    `gorm:"column:estimated_value;not null;default:0" json:"estimated_value"`
	Availability   string     `gorm:"column:availability;size:255;not null;default:''" json:"availability"`
	Active         bool       `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	RetiredAt      *time.Time `gorm:"column:retired_at" json:"retired_at,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Listing) TableName() string {
	return "listings"
}

// CreateInput carries the caller-supplied listing fields.
type CreateInput struct {
	CommunityID    string
	Title          string
	Description    string
	Category       string
	EstimatedValue float64
	Availability   string
}
