package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	opCreate  = "listings.create"
	opList    = "listings.list_active"
	opResolve = "listings.resolve"
	opDelete  = "listings.delete"
)

var errMissingRepository = errors.New("listings: repository required")

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error { return e.err }

func (e *ServiceError) Code() string { return e.code }

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

// MembershipChecker reports whether a user belongs to a community.
type MembershipChecker interface {
	IsMember(ctx context.Context, communityID, userID string) (bool, error)
}

type ServiceConfig struct {
	Repository Repository
	Members    MembershipChecker
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service is the listing collaborator: CRUD for members plus lookup for the
// barter engine. Retirement happens inside the barter transaction.
type Service struct {
	repo    Repository
	members MembershipChecker
	clock   func() time.Time
	logger  *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errMissingRepository
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
		repo:    cfg.Repository,
		members: cfg.Members,
		clock:   clock,
		logger:  logger,
	}, nil
}

func (s *Service) Create(ctx context.Context, owner users.Actor, input CreateInput) (*Listing, error) {
	communityID := strings.TrimSpace(input.CommunityID)
	if communityID == "" {
		return nil, newServiceError(opCreate, "invalid_community", ErrInvalidCommunity)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, newServiceError(opCreate, "invalid_title", ErrInvalidTitle)
	}
	category, err := ParseCategory(input.Category)
	if err != nil {
		return nil, newServiceError(opCreate, "invalid_category", err)
	}
	if input.EstimatedValue < 0 {
		return nil, newServiceError(opCreate, "invalid_value", ErrInvalidValue)
	}
	if err := s.requireMember(ctx, opCreate, communityID, owner.ID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, newServiceError(opCreate, "id_generation_failed", err)
	}
	listing := &Listing{
		ID:             id.String(),
		CommunityID:    communityID,
		OwnerID:        owner.ID,
		OwnerName:      owner.Name,
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Category:       category,
		EstimatedValue: input.EstimatedValue,
		Availability:   strings.TrimSpace(input.Availability),
		Active:         true,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("community_id", communityID))
		return nil, newServiceError(opCreate, "insert_failed", err)
	}
	return listing, nil
}

// ListActive returns the active listings of a community to one of its members.
func (s *Service) ListActive(ctx context.Context, viewerID, communityID string) ([]Listing, error) {
	if err := s.requireMember(ctx, opList, communityID, viewerID); err != nil {
		return nil, err
	}
	result, err := s.repo.ListActive(ctx, communityID)
	if err != nil {
		return nil, newServiceError(opList, "query_failed", err)
	}
	return result, nil
}

// ResolveListing returns the listing for barter negotiation, including retired
// ones so callers can distinguish inactive from missing.
func (s *Service) ResolveListing(ctx context.Context, id string) (*Listing, error) {
	listing, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, newServiceError(opResolve, reasonFor(err), err)
	}
	return listing, nil
}

// Delete removes a listing on behalf of its owner.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	listing, err := s.repo.Get(ctx, id)
	if err != nil {
		return newServiceError(opDelete, reasonFor(err), err)
	}
	if listing.OwnerID != actorID {
		return newServiceError(opDelete, "not_owner", ErrNotListingOwner)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("listing_id", id))
		return newServiceError(opDelete, "delete_failed", err)
	}
	return nil
}

func (s *Service) requireMember(ctx context.Context, operation, communityID, userID string) error {
	if s.members == nil {
		return nil
	}
	ok, err := s.members.IsMember(ctx, communityID, userID)
	if err != nil {
		return newServiceError(operation, "membership_lookup_failed", err)
	}
	if !ok {
		return newServiceError(operation, "not_member", ErrNotMember)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("listings service error", attrs...)
}

func reasonFor(err error) string {
	if errors.Is(err, ErrListingNotFound) {
		return "not_found"
	}
	return "query_failed"
}
