package barter

import (
	"strings"
	"time"
)

// Status is the position of a request in the negotiation lattice.
type Status string

const (
	StatusPending       Status = "pending"
	StatusOwnerAccepted Status = "owner_accepted"
	StatusBothAccepted  Status = "both_accepted"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// OfferType describes what the requester is offering.
type OfferType string

const (
	OfferTypeProduct OfferType = "product"
	OfferTypeService OfferType = "service"
)

// ParseOfferType normalizes raw input into an OfferType.
func ParseOfferType(raw string) (OfferType, error) {
	switch OfferType(strings.ToLower(strings.TrimSpace(raw))) {
	case OfferTypeProduct:
		return OfferTypeProduct, nil
	case OfferTypeService:
		return OfferTypeService, nil
	default:
		return "", ErrInvalidOfferType
	}
}

// Role is the side a participant plays in one request.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleRequester Role = "requester"
)

// ListingSnapshot is the listing as it existed when the offer was made. It is
// never refreshed.
type ListingSnapshot struct {
	ID             string  `gorm:"column:id;size:64;not null"`
	Title          string  `gorm:"column:title;size:255;not null;default:''"`
	Description    string  `gorm:"column:description;type:text;not null"`
	Category       string  `gorm:"column:category;size:32;not null;default:''"`
	EstimatedValue float64 `gorm:"column:estimated_value;not null;default:0"`
}

// Request is one proposed trade between a requester and a listing owner.
//
// OwnerConfirmed/RequesterConfirmed record successful code verification.
// OwnerAcknowledged/RequesterAcknowledged record the lighter "accept in chat"
// step and never influence completion.
type Request struct {
	ID                        string          `gorm:"column:id;primaryKey;size:64;not null"`
	ListingID                 string          `gorm:"column:listing_id;size:64;not null;index"`
	RequesterID               string          `gorm:"column:requester_id;size:190;not null;index:idx_barter_requests_requester_created,priority:1"`
	RequesterName             string          `gorm:"column:requester_name;size:320;not null;default:''"`
	OwnerID                   string          `gorm:"column:owner_id;size:190;not null;index:idx_barter_requests_owner_created,priority:1"`
	OwnerName                 string          `gorm:"column:owner_name;size:320;not null;default:''"`
	OfferDescription          string          `gorm:"column:offer_description;type:text;not null"`
	OfferValue                float64         `gorm:"column:offer_value;not null;default:0"`
	OfferType                 OfferType       `gorm:"column:offer_type;size:32;not null"`
	Status                    Status          `gorm:"column:status;size:32;not null;index"`
	OwnerConfirmationCode     string          `gorm:"column:owner_confirmation_code;size:16;not null;default:''"`
	RequesterConfirmationCode string          `gorm:"column:requester_confirmation_code;size:16;not null;default:''"`
	OwnerAcknowledged         bool            `gorm:"column:owner_acknowledged;not null;default:false"`
	RequesterAcknowledged     bool            `gorm:"column:requester_acknowledged;not null;default:false"`
	OwnerConfirmed            bool            `gorm:"column:owner_confirmed;not null;default:false"`
	RequesterConfirmed        bool            `gorm:"column:requester_confirmed;not null;default:false"`
	Version                   int64           `gorm:"column:version;not null;default:1"`
	CreatedAt                 time.Time       `gorm:"column:created_at;not null;index:idx_barter_requests_requester_created,priority:2;index:idx_barter_requests_owner_created,priority:2"`
	UpdatedAt                 time.Time       `gorm:"column:updated_at;not null"`
	Listing                   ListingSnapshot `gorm:"embedded;embeddedPrefix:listing_"`
}

// TableName provides the explicit table binding for GORM.
func (Request) TableName() string {
	return "barter_requests"
}

// RoleOf returns the role userID plays in the request.
func (r Request) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == r.OwnerID:
		return RoleOwner, true
	case userID == r.RequesterID:
		return RoleRequester, true
	default:
		return "", false
	}
}

// Counterparty returns the user id on the other side of role.
func (r Request) Counterparty(role Role) string {
	if role == RoleOwner {
		return r.RequesterID
	}
	return r.OwnerID
}

// Participants returns both user ids.
func (r Request) Participants() []string {
	return []string{r.OwnerID, r.RequesterID}
}

// CodeFor returns the code minted for role. Each party relays its own code to
// the counterparty, who submits it.
func (r Request) CodeFor(role Role) string {
	if role == RoleOwner {
		return r.OwnerConfirmationCode
	}
	return r.RequesterConfirmationCode
}

// HasCodes reports whether confirmation codes have been minted.
func (r Request) HasCodes() bool {
	return r.OwnerConfirmationCode != "" && r.RequesterConfirmationCode != ""
}

// CreateRequestInput carries the requester's offer.
type CreateRequestInput struct {
	ListingID        string
	OfferDescription string
	OfferValue       float64
	OfferType        string
}
