package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUnknownUser indicates no profile has been recorded for the id.
	ErrUnknownUser = errors.New("users: unknown user")
)

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service turns session claims into actors and keeps display names current.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// ResolveActor returns the actor for the provided session claims, recording a
// profile the first time a user is seen and refreshing changed details.
func (s *Service) ResolveActor(ctx context.Context, claims auth.SessionClaims) (Actor, error) {
	userID := normalize(claims.UserID)
	if userID == "" {
		userID = normalize(claims.Subject)
	}
	if userID == "" {
		return Actor{}, ErrInvalidIdentity
	}
	displayName := normalize(claims.UserDisplayName)
	email := normalize(claims.UserEmail)

	if cached, ok := s.cache.Load(userID); ok {
		if actor, ok := cached.(Actor); ok && (displayName == "" || displayName == actor.Name) {
			return actor, nil
		}
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:      userID,
			DisplayName: displayName,
			Email:       email,
			LastSeenAt:  s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return Actor{}, err
		}
	} else if err != nil {
		return Actor{}, err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if displayName != "" && displayName != profile.DisplayName {
			updates["display_name"] = displayName
			profile.DisplayName = displayName
		}
		if email != "" && email != profile.Email {
			updates["email"] = email
			profile.Email = email
		}
		_ = s.db.WithContext(ctx).
			Model(&Profile{}).
			Where("user_id = ?", userID).
			Updates(updates).
			Error
	}

	actor := profile.Actor()
	s.cache.Store(userID, actor)
	return actor, nil
}

// Lookup returns the actor recorded for userID.
func (s *Service) Lookup(ctx context.Context, userID string) (Actor, error) {
	if cached, ok := s.cache.Load(userID); ok {
		if actor, ok := cached.(Actor); ok {
			return actor, nil
		}
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Actor{}, ErrUnknownUser
	}
	if err != nil {
		return Actor{}, err
	}
	actor := profile.Actor()
	s.cache.Store(userID, actor)
	return actor, nil
}

// DisplayNames maps each known user id to its display name; unknown ids are
// omitted.
func (s *Service) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var profiles []Profile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		result[profile.UserID] = profile.Actor().Name
	}
	return result, nil
}
