package auth

import (
	"context"

	"github.com/phrazzld/chorepoints/internal/domain"
)

// Authorizer decides whether an actor may perform a delegated operation.
// task is nil for operations that are not about a specific task.
type Authorizer interface {
	Authorize(ctx context.Context, actor domain.Actor, perm domain.Permission, task *domain.Task) bool
}

// RoleAuthorizer grants permissions by role. Advisors hold every permission,
// parents manage tasks and points, members may only create their own tasks.
type RoleAuthorizer struct {
	grants map[domain.Role]map[domain.Permission]bool
}

var _ Authorizer = (*RoleAuthorizer)(nil)

// NewRoleAuthorizer returns the default role table.
func NewRoleAuthorizer() *RoleAuthorizer {
	parent := permissionSet(
		domain.PermissionCreateTask,
		domain.PermissionEditAnyTask,
		domain.PermissionReserveTask,
		domain.PermissionApproveTask,
		domain.PermissionRejectTask,
		domain.PermissionAwardPoints,
	)
	advisor := permissionSet(domain.PermissionDeleteAnyTask, domain.PermissionRunJobs, domain.PermissionSettleWeek)
	for p := range parent {
		advisor[p] = true
	}

	return &RoleAuthorizer{grants: map[domain.Role]map[domain.Permission]bool{
		domain.RoleAdvisor: advisor,
		domain.RoleParent:  parent,
		domain.RoleMember:  permissionSet(domain.PermissionCreateTask),
	}}
}

// Authorize implements Authorizer.
func (a *RoleAuthorizer) Authorize(_ context.Context, actor domain.Actor, perm domain.Permission, _ *domain.Task) bool {
	return a.grants[actor.Role][perm]
}

func permissionSet(perms ...domain.Permission) map[domain.Permission]bool {
	set := make(map[domain.Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}
