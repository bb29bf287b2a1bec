package community

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
)

var (
	ErrCommunityNotFound      = apperrors.NotFound("community: community not found")
	ErrNotAMember             = apperrors.NotFound("community: user is not a member")
	ErrAlreadyMember          = apperrors.AlreadyExists("community: user is already a member")
	ErrAlreadyBanned          = apperrors.AlreadyExists("community: user is banned from this community")
	ErrAlreadyCoadmin         = apperrors.AlreadyExists("community: user is already a co-admin")
	ErrNotACoadmin            = apperrors.InvalidState("community: user is not a co-admin")
	ErrCannotModifyAdmin      = apperrors.InsufficientPermission("community: the admin's role cannot be changed")
	ErrInsufficientPermission = apperrors.InsufficientPermission("community: insufficient permission")
	ErrInvalidName            = apperrors.InvalidArgument("community: name is required")
	ErrInvalidCode            = apperrors.InvalidArgument("community: join code is required")
	ErrCodeGenerationFailed   = apperrors.Internal("community: could not generate a unique join code")

	errMissingRepository = errors.New("community: repository required")
)

const (
	opServiceNew      = "community.service.new"
	opCreate          = "community.create"
	opJoinByCode      = "community.join_by_code"
	opRemoveMember    = "community.remove_member"
	opPromote         = "community.promote_to_coadmin"
	opDemote          = "community.demote_coadmin"
	opListForUser     = "community.list_for_user"
	opListMembers     = "community.list_members"
	opGetCommunity    = "community.get"
	opIsMember        = "community.is_member"
	reasonQueryFailed = "query_failed"
)

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

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrCommunityNotFound):
		return "community_not_found"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrAlreadyBanned):
		return "already_banned"
	case errors.Is(err, ErrAlreadyCoadmin):
		return "already_coadmin"
	case errors.Is(err, ErrNotACoadmin):
		return "not_a_coadmin"
	case errors.Is(err, ErrCannotModifyAdmin):
		return "cannot_modify_admin"
	case errors.Is(err, ErrInsufficientPermission):
		return "insufficient_permission"
	case errors.Is(err, ErrCodeGenerationFailed):
		return "code_generation_failed"
	default:
		return reasonQueryFailed
	}
}
