package barter

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists barter requests. UpdateRequest is a compare-and-swap on
// Version and returns ErrStaleRequest when another writer got there first.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error
	CreateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	UpdateRequest(ctx context.Context, req *Request, expectedVersion int64) error
	ListByRequester(ctx context.Context, userID string) ([]Request, error)
	ListByOwner(ctx context.Context, userID string) ([]Request, error)
	RetireListing(ctx context.Context, listingID string, at time.Time) error
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func (r *GormRepository) CreateRequest(ctx context.Context, req *Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *GormRepository) GetRequest(ctx context.Context, id string) (*Request, error) {
	var req Request
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *GormRepository) UpdateRequest(ctx context.Context, req *Request, expectedVersion int64) error {
	result := r.db.WithContext(ctx).
		Model(&Request{}).
		Where("id = ? AND version = ?", req.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":                      string(req.Status),
			"owner_confirmation_code":     req.OwnerConfirmationCode,
			"requester_confirmation_code": req.RequesterConfirmationCode,
			"owner_acknowledged":          req.OwnerAcknowledged,
			"requester_acknowledged":      req.RequesterAcknowledged,
			"owner_confirmed":             req.OwnerConfirmed,
			"requester_confirmed":         req.RequesterConfirmed,
			"version":                     req.Version,
			"updated_at":                  req.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&Request{}).Where("id = ?", req.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRequestNotFound
	}
	return ErrStaleRequest
}

func (r *GormRepository) ListByRequester(ctx context.Context, userID string) ([]Request, error) {
	var result []Request
	err := r.db.WithContext(ctx).
		Where("requester_id = ?", userID).
		Order("created_at DESC").
		Find(&result).Error
	return result, err
}

func (r *GormRepository) ListByOwner(ctx context.Context, userID string) ([]Request, error) {
	var result []Request
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Find(&result).Error
	return result, err
}

// RetireListing deactivates the listing on the same handle, so inside a
// Transaction it commits or rolls back together with the request update. A
// listing deleted since the offer was made counts as retired. A listing that
// another barter already retired yields ErrListingInactive, so one listing is
// traded at most once.
func (r *GormRepository) RetireListing(ctx context.Context, listingID string, at time.Time) error {
	var listing listings.Listing
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", listingID).
		Take(&listing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return err
	case !listing.Active:
		return ErrListingInactive
	}
	return listings.NewGormRepository(r.db).Retire(ctx, listingID, at)
}
