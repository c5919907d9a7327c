package user_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zkpermit/zkpermit-go/user"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, user.RoleEndUser.Valid())
	assert.True(t, user.RoleLicenseManager.Valid())
	assert.True(t, user.RoleResearchInstitutionManager.Valid())
	assert.False(t, user.Role("AUDITOR").Valid())
	assert.False(t, user.Role("").Valid())
}

func TestRoleFromLedger(t *testing.T) {
	role, ok := user.RoleFromLedger(user.LedgerRoleEndUser)
	assert.True(t, ok)
	assert.Equal(t, user.RoleEndUser, role)

	role, ok = user.RoleFromLedger(user.LedgerRoleLicenseManager)
	assert.True(t, ok)
	assert.Equal(t, user.RoleLicenseManager, role)

	role, ok = user.RoleFromLedger(user.LedgerRoleResearchInstitutionManager)
	assert.True(t, ok)
	assert.Equal(t, user.RoleResearchInstitutionManager, role)

	// 2 belongs to a role the mirror does not model.
	_, ok = user.RoleFromLedger(2)
	assert.False(t, ok)
	_, ok = user.RoleFromLedger(0)
	assert.False(t, ok)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xb49e15c4d78a1f3d82dd2a8600b2ad21f0490f0a",
		user.NormalizeAddress("0xB49E15C4d78A1F3D82dd2a8600b2AD21f0490F0A"))
}
