package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRoleAuthorizer(t *testing.T) {
	t.Parallel()

	authz := NewRoleAuthorizer()
	ctx := context.Background()

	tests := []struct {
		role    domain.Role
		perm    domain.Permission
		granted bool
	}{
		{domain.RoleAdvisor, domain.PermissionRunJobs, true},
		{domain.RoleAdvisor, domain.PermissionDeleteAnyTask, true},
		{domain.RoleAdvisor, domain.PermissionApproveTask, true},
		{domain.RoleParent, domain.PermissionApproveTask, true},
		{domain.RoleParent, domain.PermissionRejectTask, true},
		{domain.RoleParent, domain.PermissionAwardPoints, true},
		{domain.RoleParent, domain.PermissionDeleteAnyTask, false},
		{domain.RoleParent, domain.PermissionRunJobs, false},
		{domain.RoleAdvisor, domain.PermissionSettleWeek, true},
		{domain.RoleParent, domain.PermissionSettleWeek, false},
		{domain.RoleMember, domain.PermissionCreateTask, true},
		{domain.RoleMember, domain.PermissionApproveTask, false},
		{domain.RoleMember, domain.PermissionReserveTask, false},
		{"unknown", domain.PermissionCreateTask, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			t.Parallel()
			actor := domain.Actor{ID: uuid.New(), Role: tt.role}
			assert.Equal(t, tt.granted, authz.Authorize(ctx, actor, tt.perm, nil))
		})
	}
}
