package barter

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
)

var (
	ErrRequestNotFound         = apperrors.NotFound("barter: request not found")
	ErrListingNotFound         = apperrors.NotFound("barter: listing not found")
	ErrListingInactive         = apperrors.InvalidState("barter: listing is no longer active")
	ErrSelfBarter              = apperrors.InvalidArgument("barter: cannot request your own listing")
	ErrNotCommunityMember      = apperrors.InsufficientPermission("barter: requester is not a member of the listing's community")
	ErrNotOwner                = apperrors.Unauthorized("barter: only the listing owner may respond")
	ErrNotRequester            = apperrors.Unauthorized("barter: only the requester may acknowledge")
	ErrNotParticipant          = apperrors.Unauthorized("barter: actor is not a party to this request")
	ErrInvalidTransition       = apperrors.InvalidState("barter: operation not allowed in current status")
	ErrInvalidConfirmationCode = apperrors.New(apperrors.KindInvalidConfirmationCode, "barter: invalid confirmation code")
	ErrConcurrentModification  = apperrors.Conflict("barter: request changed concurrently, retry")
	ErrStaleRequest            = apperrors.Conflict("barter: stale request version")
	ErrInvalidOfferDescription = apperrors.InvalidArgument("barter: offer description is required")
	ErrInvalidOfferValue       = apperrors.InvalidArgument("barter: offer value must not be negative")
	ErrInvalidOfferType        = apperrors.InvalidArgument("barter: offer type must be product or service")

	errMissingRepository = errors.New("barter: repository required")
	errMissingListings   = errors.New("barter: listing resolver required")
)

const (
	opServiceNew          = "barter.service.new"
	opCreateRequest       = "barter.create_request"
	opRespond             = "barter.respond"
	opAcknowledge         = "barter.requester_acknowledge"
	opMarkPartyConfirmed  = "barter.mark_party_confirmed"
	opCompleteBarter      = "barter.complete"
	opDeclineBarter       = "barter.decline"
	opGetRequest          = "barter.get_request"
	opListForRequester    = "barter.list_for_requester"
	opListForOwner        = "barter.list_for_owner"
	reasonNotFound        = "not_found"
	reasonQueryFailed     = "query_failed"
	reasonUpdateFailed    = "update_failed"
	reasonUnauthorized    = "unauthorized"
	reasonInvalidState    = "invalid_state"
	reasonInvalidCode     = "invalid_confirmation_code"
	reasonConflict        = "concurrent_modification"
	reasonRetireFailed    = "retire_listing_failed"
	reasonCodeGeneration  = "code_generation_failed"
	reasonIDGeneration    = "id_generation_failed"
	reasonInvalidArgument = "invalid_argument"
)

// ServiceError carries a stable "<operation>.<reason>" code and the cause.
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

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

// reasonOf picks a reason for domain errors returned from transition logic.
func reasonOf(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return reasonNotFound
	case apperrors.KindUnauthorized, apperrors.KindInsufficientPermission:
		return reasonUnauthorized
	case apperrors.KindInvalidState:
		return reasonInvalidState
	case apperrors.KindInvalidConfirmationCode:
		return reasonInvalidCode
	case apperrors.KindConflict:
		return reasonConflict
	case apperrors.KindInvalidArgument:
		return reasonInvalidArgument
	default:
		return reasonUpdateFailed
	}
}
