package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func member(userID string, role Role) Membership {
	return Membership{CommunityID: "community-x", UserID: userID, Role: role}
}

func TestCanRemoveMatrix(t *testing.T) {
	testCases := []struct {
		name    string
		acting  Role
		target  Role
		wantErr error
	}{
		{name: "admin-removes-coadmin", acting: RoleAdmin, target: RoleCoadmin},
		{name: "admin-removes-member", acting: RoleAdmin, target: RoleMember},
		{name: "admin-removes-admin", acting: RoleAdmin, target: RoleAdmin, wantErr: ErrInsufficientPermission},
		{name: "coadmin-removes-member", acting: RoleCoadmin, target: RoleMember},
		{name: "coadmin-removes-coadmin", acting: RoleCoadmin, target: RoleCoadmin, wantErr: ErrInsufficientPermission},
		{name: "coadmin-removes-admin", acting: RoleCoadmin, target: RoleAdmin, wantErr: ErrInsufficientPermission},
		{name: "member-removes-member", acting: RoleMember, target: RoleMember, wantErr: ErrInsufficientPermission},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := canRemove(member("acting", testCase.acting), member("target", testCase.target))
			if testCase.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestCanRemoveRefusesSelf(t *testing.T) {
	admin := member("admin", RoleAdmin)
	assert.ErrorIs(t, canRemove(admin, admin), ErrInsufficientPermission)
	coadmin := member("coadmin", RoleCoadmin)
	assert.ErrorIs(t, canRemove(coadmin, coadmin), ErrInsufficientPermission)
}

func TestCanPromoteAndDemote(t *testing.T) {
	admin := member("admin", RoleAdmin)

	assert.NoError(t, canPromote(admin, member("m", RoleMember)))
	assert.ErrorIs(t, canPromote(admin, member("c", RoleCoadmin)), ErrAlreadyCoadmin)
	assert.ErrorIs(t, canPromote(admin, member("a", RoleAdmin)), ErrCannotModifyAdmin)
	assert.ErrorIs(t, canPromote(member("c", RoleCoadmin), member("m", RoleMember)), ErrInsufficientPermission)

	assert.NoError(t, canDemote(admin, member("c", RoleCoadmin)))
	assert.ErrorIs(t, canDemote(admin, member("m", RoleMember)), ErrNotACoadmin)
	assert.ErrorIs(t, canDemote(admin, member("a", RoleAdmin)), ErrNotACoadmin)
	assert.ErrorIs(t, canDemote(member("c", RoleCoadmin), member("c2", RoleCoadmin)), ErrInsufficientPermission)
}
