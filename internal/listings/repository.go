package listings

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository persists listings.
type Repository interface {
	Create(ctx context.Context, listing *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	ListActive(ctx context.Context, communityID string) ([]Listing, error)
	Retire(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByOwnerInCommunity(ctx context.Context, communityID, ownerID string) (int64, error)
}

// GormRepository implements Repository over any gorm handle, including an open
// transaction, so other packages can cascade listing changes atomically.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, listing *Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *GormRepository) Get(ctx context.Context, id string) (*Listing, error) {
	var listing Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *GormRepository) ListActive(ctx context.Context, communityID string) ([]Listing, error) {
	var result []Listing
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND active = ?", communityID, true).
		Order("created_at DESC").
		Find(&result).Error
	return result, err
}

// Retire deactivates the listing; retiring an already retired listing is a no-op.
func (r *GormRepository) Retire(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Listing{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":     false,
			"retired_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&Listing{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Listing{}).Error
}

func (r *GormRepository) DeleteByOwnerInCommunity(ctx context.Context, communityID, ownerID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("community_id = ? AND owner_id = ? AND active = ?", communityID, ownerID, true).
		Delete(&Listing{})
	return result.RowsAffected, result.Error
}
