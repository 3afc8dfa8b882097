package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission_RoleTable(t *testing.T) {
	cases := []struct {
		role       Role
		permission Permission
		want       bool
	}{
		{RoleViewer, PermReadConfig, true},
		{RoleViewer, PermWriteConfig, false},
		{RoleViewer, PermManageModules, false},
		{RoleViewer, PermManageKeys, false},

		{RoleOperator, PermReadConfig, true},
		{RoleOperator, PermManageModules, true},
		{RoleOperator, PermWriteConfig, false},
		{RoleOperator, PermManageKeys, false},

		{RoleAdmin, PermReadConfig, true},
		{RoleAdmin, PermWriteConfig, true},
		{RoleAdmin, PermManageModules, true},
		{RoleAdmin, PermManageKeys, true},
		{RoleAdmin, PermManageCredentials, false},
		{RoleAdmin, PermAdminAll, false},

		{RoleOwner, PermReadConfig, true},
		{RoleOwner, PermWriteConfig, true},
		{RoleOwner, PermManageModules, true},
		{RoleOwner, PermManageKeys, true},
		{RoleOwner, PermManageCredentials, true},
		{RoleOwner, PermAdminAll, true},
	}

	for _, tc := range cases {
		got := HasPermission(tc.role, tc.permission)
		assert.Equalf(t, tc.want, got, "role=%s permission=%s", tc.role, tc.permission)
	}
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleViewer.Valid())
	assert.True(t, RoleOwner.Valid())
	assert.False(t, Role("superuser").Valid())
}
