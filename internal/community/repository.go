package community

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error
	CreateCommunity(ctx context.Context, community *Community) error
	GetCommunity(ctx context.Context, id string) (*Community, error)
	FindByCode(ctx context.Context, code string) (*Community, error)
	IsCodeTaken(ctx context.Context, code string) (bool, error)
	GetMembership(ctx context.Context, communityID, userID string) (*Membership, error)
	AddMembership(ctx context.Context, membership *Membership) error
	UpdateRole(ctx context.Context, communityID, userID string, role Role) error
	DeleteMembership(ctx context.Context, communityID, userID string) error
	ListMembers(ctx context.Context, communityID string) ([]Membership, error)
	ListForUser(ctx context.Context, userID string) ([]UserCommunity, error)
	AddBan(ctx context.Context, ban *Ban) error
	IsBanned(ctx context.Context, communityID, userID string) (bool, error)
	RefreshMemberCount(ctx context.Context, communityID string) (int, error)
	DeleteListings(ctx context.Context, communityID, ownerID string) (int64, error)
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

func (r *GormRepository) CreateCommunity(ctx context.Context, community *Community) error {
	return r.db.WithContext(ctx).Create(community).Error
}

func (r *GormRepository) GetCommunity(ctx context.Context, id string) (*Community, error) {
	var community Community
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&community).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

// FindByCode expects an already normalized code; codes are stored uppercase.
func (r *GormRepository) FindByCode(ctx context.Context, code string) (*Community, error) {
	var community Community
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&community).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommunityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (r *GormRepository) IsCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Community{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *GormRepository) GetMembership(ctx context.Context, communityID, userID string) (*Membership, error) {
	var membership Membership
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *GormRepository) AddMembership(ctx context.Context, membership *Membership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *GormRepository) UpdateRole(ctx context.Context, communityID, userID string, role Role) error {
	result := r.db.WithContext(ctx).
		Model(&Membership{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Update("role", string(role))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotAMember
	}
	return nil
}

func (r *GormRepository) DeleteMembership(ctx context.Context, communityID, userID string) error {
	return r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&Membership{}).Error
}

func (r *GormRepository) ListMembers(ctx context.Context, communityID string) ([]Membership, error) {
	var members []Membership
	err := r.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

func (r *GormRepository) ListForUser(ctx context.Context, userID string) ([]UserCommunity, error) {
	var result []UserCommunity
	err := r.db.WithContext(ctx).
		Table("communities").
		Select("communities.*, community_memberships.role AS role").
		Joins("JOIN community_memberships ON community_memberships.community_id = communities.id").
		Where("community_memberships.user_id = ?", userID).
		Order("communities.name ASC").
		Scan(&result).Error
	return result, err
}

// AddBan is idempotent: banning twice keeps the first record.
func (r *GormRepository) AddBan(ctx context.Context, ban *Ban) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ban).Error
}

func (r *GormRepository) IsBanned(ctx context.Context, communityID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Ban{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error
	return count > 0, err
}

// RefreshMemberCount recounts memberships and stores the result.
func (r *GormRepository) RefreshMemberCount(ctx context.Context, communityID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Membership{}).Where("community_id = ?", communityID).Count(&count).Error; err != nil {
		return 0, err
	}
	err := r.db.WithContext(ctx).
		Model(&Community{}).
		Where("id = ?", communityID).
		Update("member_count", count).Error
	return int(count), err
}

// DeleteListings removes the owner's active listings in the community on the
// same handle, so it joins the caller's transaction.
func (r *GormRepository) DeleteListings(ctx context.Context, communityID, ownerID string) (int64, error) {
	return listings.NewGormRepository(r.db).DeleteByOwnerInCommunity(ctx, communityID, ownerID)
}
