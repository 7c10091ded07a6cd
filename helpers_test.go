package grantkit

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// newTestService creates a service on the in-memory catalog, bootstrapped
// with a "postgres" superuser that can log in.
func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	ctx := context.Background()
	svc := New(NewMemoryCatalog(), WithBcryptCost(bcrypt.MinCost))

	_, err := svc.Bootstrap(ctx, "postgres", RoleAttributes{
		Superuser: true,
		CanLogin:  true,
		Password:  "postgres",
	})
	require.NoError(t, err)
	return svc, ctx
}

// rootSession opens a session as the bootstrapped superuser.
func rootSession(t *testing.T, ctx context.Context, svc *Service) *Session {
	t.Helper()
	sess, err := svc.NewSession(ctx, "postgres", "")
	require.NoError(t, err)
	return sess
}

// mustCreateRole creates a role through the given session and fails the test
// on error.
func mustCreateRole(t *testing.T, ctx context.Context, svc *Service, sess *Session, name string, attrs RoleAttributes) *Role {
	t.Helper()
	role, err := svc.CreateRole(ctx, sess, name, attrs)
	require.NoError(t, err)
	return role
}

// mustGrantMembership makes member a member of role in the global scope.
func mustGrantMembership(t *testing.T, ctx context.Context, svc *Service, sess *Session, role, member string, opts MembershipOptions) {
	t.Helper()
	require.NoError(t, svc.GrantMembership(ctx, sess, role, member, opts, Global()))
}

// granteeFor resolves a role name to its Grantee.
func granteeFor(t *testing.T, ctx context.Context, svc *Service, name string) Grantee {
	t.Helper()
	role, err := svc.GetRole(ctx, name)
	require.NoError(t, err)
	return RoleGrantee(role.ID)
}

// sessionFor opens a global-scope session for a login role.
func sessionFor(t *testing.T, ctx context.Context, svc *Service, name string) *Session {
	t.Helper()
	sess, err := svc.NewSession(ctx, name, "")
	require.NoError(t, err)
	return sess
}

// requireDatabase skips the test unless TEST_DATABASE_URL is set. Integration
// tests against PostgreSQL are opt-in.
func requireDatabase(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database integration test")
	}
	return url
}
