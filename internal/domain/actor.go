package domain

import "github.com/google/uuid"

// Role is the coarse role an actor holds in a household or team.
// The lifecycle engine never inspects roles directly; only an Authorizer does.
type Role string

// Known roles, highest authority first.
const (
	RoleAdvisor Role = "advisor"
	RoleParent  Role = "parent"
	RoleMember  Role = "member"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdvisor, RoleParent, RoleMember:
		return true
	default:
		return false
	}
}

// Actor is an authenticated participant: a task creator, assignee or approver.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// Permission names an operation that is delegated to an Authorizer.
type Permission string

// Permissions checked by the services.
const (
	PermissionCreateTask    Permission = "create_task"
	PermissionEditAnyTask   Permission = "edit_any_task"
	PermissionReserveTask   Permission = "reserve_task"
	PermissionApproveTask   Permission = "approve_task"
	PermissionRejectTask    Permission = "reject_task"
	PermissionDeleteAnyTask Permission = "delete_any_task"
	PermissionAwardPoints   Permission = "award_points"
	PermissionRunJobs       Permission = "run_jobs"
	PermissionSettleWeek    Permission = "settle_week"
)
