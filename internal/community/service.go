package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/codes"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCodeAttempts = 10

// Notifier receives membership notices after commit.
type Notifier interface {
	Notify(ctx context.Context, notice notifications.Notice) error
}

type ServiceConfig struct {
	Repository   Repository
	Notifier     Notifier
	Codes        codes.Generator
	CodeAttempts int
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Service guards community membership: who may join, who may remove whom and
// who may change roles.
type Service struct {
	repo         Repository
	notifier     Notifier
	codes        codes.Generator
	codeAttempts int
	clock        func() time.Time
	logger       *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}
	generator := cfg.Codes
	if generator == nil {
		random, err := codes.NewRandom(codes.DefaultLength)
		if err != nil {
			return nil, newServiceError(opServiceNew, "invalid_code_generator", err)
		}
		generator = random
	}
	attempts := cfg.CodeAttempts
	if attempts <= 0 {
		attempts = defaultCodeAttempts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:         cfg.Repository,
		notifier:     cfg.Notifier,
		codes:        generator,
		codeAttempts: attempts,
		clock:        clock,
		logger:       logger,
	}, nil
}

// CreateCommunity founds a community with actor as its admin.
func (s *Service) CreateCommunity(ctx context.Context, actor users.Actor, input CreateCommunityInput) (*Community, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, newServiceError(opCreate, "invalid_name", ErrInvalidName)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, newServiceError(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()

	var created *Community
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		code, err := s.generateUniqueCode(ctx, tx)
		if err != nil {
			return err
		}
		community := &Community{
			ID:          id.String(),
			Name:        name,
			Location:    strings.TrimSpace(input.Location),
			Description: strings.TrimSpace(input.Description),
			Code:        code,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
		}
		if err := tx.CreateCommunity(ctx, community); err != nil {
			return err
		}
		if err := tx.AddMembership(ctx, &Membership{
			CommunityID: community.ID,
			UserID:      actor.ID,
			DisplayName: actor.Name,
			Role:        RoleAdmin,
			JoinedAt:    now,
		}); err != nil {
			return err
		}
		count, err := tx.RefreshMemberCount(ctx, community.ID)
		if err != nil {
			return err
		}
		community.MemberCount = count
		created = community
		return nil
	})
	if err != nil {
		return nil, s.fail(opCreate, err, zap.String("user_id", actor.ID))
	}
	return created, nil
}

// JoinByCode adds actor as a member of the community the code points to.
func (s *Service) JoinByCode(ctx context.Context, actor users.Actor, code string) (*Community, error) {
	normalized := codes.Normalize(code)
	if normalized == "" {
		return nil, newServiceError(opJoinByCode, "invalid_code", ErrInvalidCode)
	}

	var joined *Community
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		community, err := tx.FindByCode(ctx, normalized)
		if err != nil {
			return err
		}
		banned, err := tx.IsBanned(ctx, community.ID, actor.ID)
		if err != nil {
			return err
		}
		if banned {
			return ErrAlreadyBanned
		}
		_, err = tx.GetMembership(ctx, community.ID, actor.ID)
		switch {
		case err == nil:
			return ErrAlreadyMember
		case !errors.Is(err, ErrNotAMember):
			return err
		}
		if err := tx.AddMembership(ctx, &Membership{
			CommunityID: community.ID,
			UserID:      actor.ID,
			DisplayName: actor.Name,
			Role:        RoleMember,
			JoinedAt:    s.clock().UTC(),
		}); err != nil {
			return err
		}
		count, err := tx.RefreshMemberCount(ctx, community.ID)
		if err != nil {
			return err
		}
		community.MemberCount = count
		joined = community
		return nil
	})
	if err != nil {
		return nil, s.fail(opJoinByCode, err, zap.String("user_id", actor.ID))
	}
	s.notify(ctx, opJoinByCode, notifications.Notice{
		Recipients: []string{joined.CreatedBy},
		Kind:       notifications.KindCommunity,
		EventType:  realtime.EventCommunityChanged,
		SubjectID:  joined.ID,
		Message:    fmt.Sprintf("%s joined %q", displayName(actor), joined.Name),
	})
	return joined, nil
}

// RemoveMember removes and bans target, dropping their active listings in the
// community in the same transaction.
func (s *Service) RemoveMember(ctx context.Context, communityID, targetUserID, actingUserID string) error {
	var community *Community
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		acting, target, err := loadPair(ctx, tx, communityID, targetUserID, actingUserID)
		if err != nil {
			return err
		}
		if err := canRemove(*acting, *target); err != nil {
			return err
		}
		if err := tx.DeleteMembership(ctx, communityID, targetUserID); err != nil {
			return err
		}
		if err := tx.AddBan(ctx, &Ban{
			CommunityID: communityID,
			UserID:      targetUserID,
			BannedBy:    actingUserID,
			BannedAt:    s.clock().UTC(),
		}); err != nil {
			return err
		}
		if _, err := tx.DeleteListings(ctx, communityID, targetUserID); err != nil {
			return err
		}
		if _, err := tx.RefreshMemberCount(ctx, communityID); err != nil {
			return err
		}
		community, err = tx.GetCommunity(ctx, communityID)
		return err
	})
	if err != nil {
		return s.fail(opRemoveMember, err,
			zap.String("community_id", communityID),
			zap.String("target_user_id", targetUserID))
	}
	s.notify(ctx, opRemoveMember, notifications.Notice{
		Recipients: []string{targetUserID},
		Kind:       notifications.KindCommunity,
		EventType:  realtime.EventCommunityChanged,
		SubjectID:  communityID,
		Message:    fmt.Sprintf("You were removed from %q", community.Name),
	})
	return nil
}

func (s *Service) PromoteToCoadmin(ctx context.Context, communityID, targetUserID, actingUserID string) error {
	return s.changeRole(ctx, opPromote, communityID, targetUserID, actingUserID, canPromote, RoleCoadmin)
}

func (s *Service) DemoteCoadmin(ctx context.Context, communityID, targetUserID, actingUserID string) error {
	return s.changeRole(ctx, opDemote, communityID, targetUserID, actingUserID, canDemote, RoleMember)
}

func (s *Service) changeRole(ctx context.Context, operation, communityID, targetUserID, actingUserID string, allowed func(acting, target Membership) error, role Role) error {
	var community *Community
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		acting, target, err := loadPair(ctx, tx, communityID, targetUserID, actingUserID)
		if err != nil {
			return err
		}
		if err := allowed(*acting, *target); err != nil {
			return err
		}
		if err := tx.UpdateRole(ctx, communityID, targetUserID, role); err != nil {
			return err
		}
		community, err = tx.GetCommunity(ctx, communityID)
		return err
	})
	if err != nil {
		return s.fail(operation, err,
			zap.String("community_id", communityID),
			zap.String("target_user_id", targetUserID))
	}
	message := fmt.Sprintf("You are now a co-admin of %q", community.Name)
	if role == RoleMember {
		message = fmt.Sprintf("You are no longer a co-admin of %q", community.Name)
	}
	s.notify(ctx, operation, notifications.Notice{
		Recipients: []string{targetUserID},
		Kind:       notifications.KindCommunity,
		EventType:  realtime.EventCommunityChanged,
		SubjectID:  communityID,
		Message:    message,
	})
	return nil
}

// ListUserCommunities returns every community the user belongs to with their role.
func (s *Service) ListUserCommunities(ctx context.Context, userID string) ([]UserCommunity, error) {
	result, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, s.fail(opListForUser, err, zap.String("user_id", userID))
	}
	return result, nil
}

// ListMembers is visible to members only.
func (s *Service) ListMembers(ctx context.Context, communityID, viewerID string) ([]Membership, error) {
	if _, err := s.repo.GetMembership(ctx, communityID, viewerID); err != nil {
		return nil, s.fail(opListMembers, err, zap.String("community_id", communityID))
	}
	members, err := s.repo.ListMembers(ctx, communityID)
	if err != nil {
		return nil, s.fail(opListMembers, err, zap.String("community_id", communityID))
	}
	return members, nil
}

func (s *Service) GetCommunity(ctx context.Context, communityID string) (*Community, error) {
	community, err := s.repo.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, s.fail(opGetCommunity, err, zap.String("community_id", communityID))
	}
	return community, nil
}

// IsMember satisfies the membership checks of listings and barter.
func (s *Service) IsMember(ctx context.Context, communityID, userID string) (bool, error) {
	_, err := s.repo.GetMembership(ctx, communityID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotAMember):
		return false, nil
	default:
		return false, s.fail(opIsMember, err, zap.String("community_id", communityID))
	}
}

func (s *Service) generateUniqueCode(ctx context.Context, repo Repository) (string, error) {
	for i := 0; i < s.codeAttempts; i++ {
		code, err := s.codes.NewCode()
		if err != nil {
			return "", err
		}
		code = codes.Normalize(code)
		taken, err := repo.IsCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeGenerationFailed
}

func loadPair(ctx context.Context, tx Repository, communityID, targetUserID, actingUserID string) (*Membership, *Membership, error) {
	acting, err := tx.GetMembership(ctx, communityID, actingUserID)
	if err != nil {
		return nil, nil, err
	}
	target, err := tx.GetMembership(ctx, communityID, targetUserID)
	if err != nil {
		return nil, nil, err
	}
	return acting, target, nil
}

// fail wraps err with a service code. Domain refusals pass through quietly;
// anything else is logged.
func (s *Service) fail(operation string, err error, fields ...zap.Field) error {
	reason := reasonOf(err)
	if apperrors.KindOf(err) == apperrors.KindUnknown || errors.Is(err, ErrCodeGenerationFailed) {
		s.logError(operation, reason, err, fields...)
	}
	return newServiceError(operation, reason, err)
}

func (s *Service) notify(ctx context.Context, operation string, notice notifications.Notice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.logError(operation, "notify_failed", err, zap.String("community_id", notice.SubjectID))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("community service error", attrs...)
}

func displayName(actor users.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.ID
}
