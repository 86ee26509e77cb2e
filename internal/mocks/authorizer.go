package mocks

import (
	"context"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service/auth"
)

// MockAuthorizer implements auth.Authorizer for testing
type MockAuthorizer struct {
	// AuthorizeFn allows test cases to mock the Authorize behavior
	AuthorizeFn func(ctx context.Context, actor domain.Actor, perm domain.Permission, task *domain.Task) bool

	// Allow is returned when AuthorizeFn is not set
	Allow bool
}

var _ auth.Authorizer = (*MockAuthorizer)(nil)

// Authorize implements the auth.Authorizer interface
func (m *MockAuthorizer) Authorize(ctx context.Context, actor domain.Actor, perm domain.Permission, task *domain.Task) bool {
	if m.AuthorizeFn != nil {
		return m.AuthorizeFn(ctx, actor, perm, task)
	}
	return m.Allow
}
