package barter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/codes"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

var errRetireListing = errors.New("barter: retire listing failed")

// ListingResolver looks up the listing an offer targets.
type ListingResolver interface {
	ResolveListing(ctx context.Context, id string) (*listings.Listing, error)
}

// MembershipChecker reports whether a user belongs to a community.
type MembershipChecker interface {
	IsMember(ctx context.Context, communityID, userID string) (bool, error)
}

// Notifier receives state-change notices after commit.
type Notifier interface {
	Notify(ctx context.Context, notice notifications.Notice) error
}

type ServiceConfig struct {
	Repository  Repository
	Listings    ListingResolver
	Members     MembershipChecker
	Notifier    Notifier
	Codes       codes.Generator
	IDProvider  IDProvider
	Clock       func() time.Time
	Logger      *zap.Logger
	MaxAttempts int
}

// Service drives barter requests through the negotiation lattice. Every
// mutation is a read-apply-CAS cycle retried on version conflicts.
type Service struct {
	repo        Repository
	listings    ListingResolver
	members     MembershipChecker
	notifier    Notifier
	codes       codes.Generator
	idProvider  IDProvider
	clock       func() time.Time
	logger      *zap.Logger
	maxAttempts int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}
	if cfg.Listings == nil {
		return nil, newServiceError(opServiceNew, "missing_listings", errMissingListings)
	}

	codeGenerator := cfg.Codes
	if codeGenerator == nil {
		generator, err := codes.NewRandom(codes.DefaultLength)
		if err != nil {
			return nil, newServiceError(opServiceNew, "invalid_code_generator", err)
		}
		codeGenerator = generator
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		repo:        cfg.Repository,
		listings:    cfg.Listings,
		members:     cfg.Members,
		notifier:    cfg.Notifier,
		codes:       codeGenerator,
		idProvider:  idProvider,
		clock:       clock,
		logger:      logger,
		maxAttempts: maxAttempts,
	}, nil
}

// CreateRequest records a new pending offer against an active listing.
func (s *Service) CreateRequest(ctx context.Context, actor users.Actor, input CreateRequestInput) (*Request, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return nil, newServiceError(opCreateRequest, reasonUnauthorized, ErrNotParticipant)
	}
	description := strings.TrimSpace(input.OfferDescription)
	if description == "" {
		return nil, newServiceError(opCreateRequest, reasonInvalidArgument, ErrInvalidOfferDescription)
	}
	if input.OfferValue < 0 || math.IsNaN(input.OfferValue) || math.IsInf(input.OfferValue, 0) {
		return nil, newServiceError(opCreateRequest, reasonInvalidArgument, ErrInvalidOfferValue)
	}
	offerType, err := ParseOfferType(input.OfferType)
	if err != nil {
		return nil, newServiceError(opCreateRequest, reasonInvalidArgument, err)
	}

	listingID := strings.TrimSpace(input.ListingID)
	if listingID == "" {
		return nil, newServiceError(opCreateRequest, reasonNotFound, ErrListingNotFound)
	}
	listing, err := s.listings.ResolveListing(ctx, listingID)
	switch {
	case errors.Is(err, listings.ErrListingNotFound):
		return nil, newServiceError(opCreateRequest, reasonNotFound, ErrListingNotFound)
	case err != nil:
		s.logError(opCreateRequest, reasonQueryFailed, err, zap.String("listing_id", listingID))
		return nil, newServiceError(opCreateRequest, reasonQueryFailed, err)
	}
	if !listing.Active {
		return nil, newServiceError(opCreateRequest, reasonInvalidState, ErrListingInactive)
	}
	if listing.OwnerID == actor.ID {
		return nil, newServiceError(opCreateRequest, reasonInvalidArgument, ErrSelfBarter)
	}
	if s.members != nil {
		member, err := s.members.IsMember(ctx, listing.CommunityID, actor.ID)
		if err != nil {
			s.logError(opCreateRequest, "membership_lookup_failed", err, zap.String("community_id", listing.CommunityID))
			return nil, newServiceError(opCreateRequest, "membership_lookup_failed", err)
		}
		if !member {
			return nil, newServiceError(opCreateRequest, reasonUnauthorized, ErrNotCommunityMember)
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, newServiceError(opCreateRequest, reasonIDGeneration, err)
	}
	now := s.clock().UTC()
	req := &Request{
		ID:               id,
		ListingID:        listing.ID,
		RequesterID:      actor.ID,
		RequesterName:    actor.Name,
		OwnerID:          listing.OwnerID,
		OwnerName:        listing.OwnerName,
		OfferDescription: description,
		OfferValue:       input.OfferValue,
		OfferType:        offerType,
		Status:           StatusPending,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		Listing: ListingSnapshot{
			ID:             listing.ID,
			Title:          listing.Title,
			Description:    listing.Description,
			Category:       string(listing.Category),
			EstimatedValue: listing.EstimatedValue,
		},
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		s.logError(opCreateRequest, "insert_failed", err, zap.String("listing_id", listing.ID))
		return nil, newServiceError(opCreateRequest, "insert_failed", err)
	}

	s.notify(ctx, opCreateRequest, barterNotice(req, []string{req.OwnerID},
		fmt.Sprintf("New barter offer for %q from %s", req.Listing.Title, displayName(actor))))
	s.notify(ctx, opCreateRequest, barterNotice(req, []string{req.RequesterID}, ""))
	return req, nil
}

// RespondToRequest lets the owner accept or decline. Accepting mints both
// confirmation codes and requires the listing to still be active.
func (s *Service) RespondToRequest(ctx context.Context, actor users.Actor, requestID string, accept bool) (*Request, error) {
	if accept {
		if err := s.checkListingBeforeAccept(ctx, actor, strings.TrimSpace(requestID)); err != nil {
			return nil, err
		}
	}
	return s.run(ctx, opRespond, actor, requestID, func(req *Request, role Role) (effect, error) {
		return applyResponse(req, role, accept, s.codes)
	})
}

// RequesterAcknowledge moves an owner-accepted request to both_accepted.
func (s *Service) RequesterAcknowledge(ctx context.Context, actor users.Actor, requestID string) (*Request, error) {
	return s.run(ctx, opAcknowledge, actor, requestID, applyAcknowledge)
}

// MarkPartyConfirmed records that the acting party accepted the trade in chat.
func (s *Service) MarkPartyConfirmed(ctx context.Context, actor users.Actor, requestID string) (*Request, error) {
	return s.run(ctx, opMarkPartyConfirmed, actor, requestID, applyPartyConfirmed)
}

// CompleteBarter verifies the code the actor received from the counterparty.
// The second successful verification completes the request and retires the
// listing atomically.
func (s *Service) CompleteBarter(ctx context.Context, actor users.Actor, requestID, code string) (*Request, error) {
	return s.run(ctx, opCompleteBarter, actor, requestID, func(req *Request, role Role) (effect, error) {
		return applyCompletion(req, role, code)
	})
}

// DeclineBarter cancels a request that has not reached both_accepted.
func (s *Service) DeclineBarter(ctx context.Context, actor users.Actor, requestID string) (*Request, error) {
	return s.run(ctx, opDeclineBarter, actor, requestID, applyDecline)
}

func (s *Service) GetRequest(ctx context.Context, actor users.Actor, requestID string) (*Request, error) {
	req, err := s.repo.GetRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return nil, s.fail(opGetRequest, err, requestID)
	}
	if _, ok := req.RoleOf(actor.ID); !ok {
		return nil, newServiceError(opGetRequest, reasonUnauthorized, ErrNotParticipant)
	}
	return req, nil
}

// ListForRequester returns offers the user sent, newest first.
func (s *Service) ListForRequester(ctx context.Context, userID string) ([]Request, error) {
	result, err := s.repo.ListByRequester(ctx, userID)
	if err != nil {
		s.logError(opListForRequester, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, newServiceError(opListForRequester, reasonQueryFailed, err)
	}
	return result, nil
}

// ListForOwner returns offers the user received, newest first.
func (s *Service) ListForOwner(ctx context.Context, userID string) ([]Request, error) {
	result, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		s.logError(opListForOwner, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, newServiceError(opListForOwner, reasonQueryFailed, err)
	}
	return result, nil
}

type mutation func(req *Request, role Role) (effect, error)

func (s *Service) run(ctx context.Context, operation string, actor users.Actor, requestID string, apply mutation) (*Request, error) {
	req, applied, err := s.mutate(ctx, operation, actor, strings.TrimSpace(requestID), apply)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, operation, req, applied, actor)
	return req, nil
}

func (s *Service) mutate(ctx context.Context, operation string, actor users.Actor, requestID string, apply mutation) (*Request, effect, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var (
			result  *Request
			applied effect
		)
		err := s.repo.Transaction(ctx, func(tx Repository) error {
			current, err := tx.GetRequest(ctx, requestID)
			if err != nil {
				return err
			}
			role, ok := current.RoleOf(actor.ID)
			if !ok {
				return ErrNotParticipant
			}

			next := *current
			applied, err = apply(&next, role)
			if err != nil {
				return err
			}
			if applied == effectNone {
				result = current
				return nil
			}

			now := s.clock().UTC()
			next.Version = current.Version + 1
			next.UpdatedAt = now
			if err := tx.UpdateRequest(ctx, &next, current.Version); err != nil {
				return err
			}
			if applied == effectCompleted {
				err := tx.RetireListing(ctx, next.ListingID, now)
				switch {
				case errors.Is(err, ErrListingInactive):
					return err
				case err != nil:
					return fmt.Errorf("%w: %w", errRetireListing, err)
				}
			}
			result = &next
			return nil
		})
		if err == nil {
			return result, applied, nil
		}
		if errors.Is(err, ErrStaleRequest) {
			s.logger.Debug("barter request changed concurrently",
				zap.String("operation", operation),
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt))
			continue
		}
		return nil, effectNone, s.fail(operation, err, requestID)
	}
	s.logError(operation, reasonConflict, ErrConcurrentModification,
		zap.String("request_id", requestID),
		zap.Int("attempts", s.maxAttempts))
	return nil, effectNone, newServiceError(operation, reasonConflict, ErrConcurrentModification)
}

// checkListingBeforeAccept refuses to accept a pending offer whose listing was
// retired or deleted since it was made. It runs outside the transaction; the
// retirement inside completion catches anything that slips past.
func (s *Service) checkListingBeforeAccept(ctx context.Context, actor users.Actor, requestID string) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		// The transaction reports missing requests itself.
		return nil
	}
	if role, ok := req.RoleOf(actor.ID); !ok || role != RoleOwner || req.Status != StatusPending {
		return nil
	}
	listing, err := s.listings.ResolveListing(ctx, req.ListingID)
	switch {
	case errors.Is(err, listings.ErrListingNotFound):
	case err != nil:
		s.logError(opRespond, reasonQueryFailed, err, zap.String("listing_id", req.ListingID))
		return newServiceError(opRespond, reasonQueryFailed, err)
	case listing.Active:
		return nil
	}
	return newServiceError(opRespond, reasonInvalidState, ErrListingInactive)
}

// fail wraps err; infrastructure failures are logged, domain refusals are not.
func (s *Service) fail(operation string, err error, requestID string) error {
	switch {
	case errors.Is(err, errRetireListing):
		s.logError(operation, reasonRetireFailed, err, zap.String("request_id", requestID))
		return newServiceError(operation, reasonRetireFailed, err)
	case errors.Is(err, errCodeGeneration):
		s.logError(operation, reasonCodeGeneration, err, zap.String("request_id", requestID))
		return newServiceError(operation, reasonCodeGeneration, err)
	case apperrors.KindOf(err) == apperrors.KindUnknown:
		s.logError(operation, reasonUpdateFailed, err, zap.String("request_id", requestID))
		return newServiceError(operation, reasonUpdateFailed, err)
	default:
		return newServiceError(operation, reasonOf(err), err)
	}
}

func (s *Service) announce(ctx context.Context, operation string, req *Request, applied effect, actor users.Actor) {
	title := req.Listing.Title
	var (
		message   string
		addressed []string
	)
	switch applied {
	case effectNone:
		return
	case effectAccepted:
		message = fmt.Sprintf("Your barter request for %q was accepted!", title)
		addressed = []string{req.RequesterID}
	case effectDeclined:
		message = fmt.Sprintf("Your barter request for %q was declined.", title)
		addressed = []string{req.RequesterID}
	case effectWithdrawn:
		message = fmt.Sprintf("%s withdrew the barter request for %q.", displayName(actor), title)
		addressed = []string{req.OwnerID}
	case effectBothAccepted:
		message = fmt.Sprintf("Both parties accepted the barter for %q. Chat is now unlocked!", title)
		addressed = req.Participants()
	case effectCompleted:
		message = fmt.Sprintf("Barter for %q is completed!", title)
		addressed = req.Participants()
	}

	if message != "" {
		s.notify(ctx, operation, barterNotice(req, addressed, message))
	}
	if rest := without(req.Participants(), addressed); len(rest) > 0 {
		s.notify(ctx, operation, barterNotice(req, rest, ""))
	}
}

func (s *Service) notify(ctx context.Context, operation string, notice notifications.Notice) {
	if s.notifier == nil || len(notice.Recipients) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.logError(operation, "notify_failed", err, zap.String("request_id", notice.SubjectID))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("barter service error", attrs...)
}

func barterNotice(req *Request, recipients []string, message string) notifications.Notice {
	return notifications.Notice{
		Recipients: recipients,
		Kind:       notifications.KindBarter,
		EventType:  realtime.EventBarterChanged,
		SubjectID:  req.ID,
		Message:    message,
	}
}

func without(all, excluded []string) []string {
	var rest []string
	for _, candidate := range all {
		skip := false
		for _, other := range excluded {
			if candidate == other {
				skip = true
				break
			}
		}
		if !skip {
			rest = append(rest, candidate)
		}
	}
	return rest
}

func displayName(actor users.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.ID
}
