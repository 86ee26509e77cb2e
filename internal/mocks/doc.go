// Package mocks provides centralized test doubles shared across packages.
//
// MemoryStore is an in-memory, transactional fake of the Postgres task and
// ledger stores. Its compare-and-swap writes and unique constraints behave
// like the SQL they stand in for, so service tests exercise the same conflict
// paths as production.
//
// The remaining mocks follow one convention: a function field per interface
// method, with default return values used when the function is not set.
//
// Usage:
//
//	import "github.com/phrazzld/chorepoints/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    jwtSvc := &mocks.MockJWTService{
//	        ValidateTokenFn: func(ctx context.Context, token string) (*auth.Claims, error) {
//	            return &auth.Claims{UserID: uuid.New(), Role: domain.RoleParent}, nil
//	        },
//	    }
//
//	    // Use the mock in your test...
//	}
package mocks
