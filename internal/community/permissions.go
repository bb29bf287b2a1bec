package community

// canRemove decides whether acting may remove target from their community.
func canRemove(acting, target Membership) error {
	if acting.UserID == target.UserID {
		return ErrInsufficientPermission
	}
	switch acting.Role {
	case RoleAdmin:
		if target.Role != RoleAdmin {
			return nil
		}
	case RoleCoadmin:
		if target.Role == RoleMember {
			return nil
		}
	}
	return ErrInsufficientPermission
}

func canPromote(acting, target Membership) error {
	if acting.Role != RoleAdmin {
		return ErrInsufficientPermission
	}
	switch target.Role {
	case RoleAdmin:
		return ErrCannotModifyAdmin
	case RoleCoadmin:
		return ErrAlreadyCoadmin
	}
	return nil
}

func canDemote(acting, target Membership) error {
	if acting.Role != RoleAdmin {
		return ErrInsufficientPermission
	}
	if target.Role != RoleCoadmin {
		return ErrNotACoadmin
	}
	return nil
}
