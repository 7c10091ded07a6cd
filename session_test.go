package grantkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionRequiresLogin(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "group", RoleAttributes{})

	_, err := svc.NewSession(ctx, "group", "")
	require.Error(t, err)
	assert.True(t, IsNotAuthorized(err))

	_, err = svc.NewSession(ctx, "ghost", "")
	assert.True(t, IsRoleNotFound(err))
}

func TestNewSessionDefaults(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	alice := mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})

	sess, err := svc.NewSession(ctx, "alice", "appdb")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, sess.LoginRoleID())
	assert.Equal(t, "alice", sess.LoginRoleName())
	assert.Equal(t, alice.ID, sess.ActiveRoleID())
	assert.Equal(t, "alice", sess.ActiveRoleName())
	assert.Equal(t, "appdb", sess.DatabaseID())
	assert.Equal(t, Scope{DatabaseID: "appdb"}, sess.Scope())
}

func TestSetRoleEligibility(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	group := mustCreateRole(t, ctx, svc, root, "group", RoleAttributes{})
	top := mustCreateRole(t, ctx, svc, root, "top", RoleAttributes{})
	mustCreateRole(t, ctx, svc, root, "unrelated", RoleAttributes{})

	// alice -> group -> top, all with the set option. SET ROLE reaches
	// transitively through the chain.
	mustGrantMembership(t, ctx, svc, root, "group", "alice", DefaultMembershipOptions())
	mustGrantMembership(t, ctx, svc, root, "top", "group", DefaultMembershipOptions())

	sess := sessionFor(t, ctx, svc, "alice")
	require.NoError(t, svc.SetRole(ctx, sess, "group"))
	assert.Equal(t, group.ID, sess.ActiveRoleID())
	assert.Equal(t, "group", sess.ActiveRoleName())

	// The login role never changes; eligibility keeps being evaluated
	// against it, so no intermediate step back is needed.
	require.NoError(t, svc.SetRole(ctx, sess, "top"))
	assert.Equal(t, top.ID, sess.ActiveRoleID())
	assert.Equal(t, "alice", sess.LoginRoleName())

	err := svc.SetRole(ctx, sess, "unrelated")
	require.Error(t, err)
	assert.True(t, IsNotAuthorized(err))
	assert.Equal(t, top.ID, sess.ActiveRoleID(), "failed SET ROLE must not change the active role")

	err = svc.SetRole(ctx, sess, "ghost")
	assert.True(t, IsRoleNotFound(err))
}

func TestSetRoleIgnoresInheritOption(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	wheel := mustCreateRole(t, ctx, svc, root, "wheel", RoleAttributes{})

	// set=true, inherit=false: the role is switchable but not inherited.
	mustGrantMembership(t, ctx, svc, root, "wheel", "alice", MembershipOptions{Set: true})

	sess := sessionFor(t, ctx, svc, "alice")
	require.NoError(t, svc.SetRole(ctx, sess, "wheel"))
	assert.Equal(t, wheel.ID, sess.ActiveRoleID())
}

func TestSetRoleBlockedWithoutSetOption(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	mustCreateRole(t, ctx, svc, root, "wheel", RoleAttributes{})
	mustGrantMembership(t, ctx, svc, root, "wheel", "alice", MembershipOptions{Inherit: true})

	sess := sessionFor(t, ctx, svc, "alice")
	err := svc.SetRole(ctx, sess, "wheel")
	assert.True(t, IsNotAuthorized(err))
}

func TestSetRoleSuperuserBypass(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	island := mustCreateRole(t, ctx, svc, root, "island", RoleAttributes{})

	// No membership anywhere, yet the superuser login can assume it.
	require.NoError(t, svc.SetRole(ctx, root, "island"))
	assert.Equal(t, island.ID, root.ActiveRoleID())
	require.NoError(t, svc.SetRole(ctx, root, root.LoginRoleName()))
	assert.Equal(t, root.LoginRoleID(), root.ActiveRoleID())
}

func TestSetRoleToLoginNameResets(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	mustCreateRole(t, ctx, svc, root, "group", RoleAttributes{})
	mustGrantMembership(t, ctx, svc, root, "group", "alice", DefaultMembershipOptions())

	sess := sessionFor(t, ctx, svc, "alice")
	require.NoError(t, svc.SetRole(ctx, sess, "group"))
	require.NoError(t, svc.SetRole(ctx, sess, "alice"))
	assert.Equal(t, sess.LoginRoleID(), sess.ActiveRoleID())
}

func TestResetRoleAndSetRoleNone(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	mustCreateRole(t, ctx, svc, root, "group", RoleAttributes{})
	mustGrantMembership(t, ctx, svc, root, "group", "alice", DefaultMembershipOptions())

	sess := sessionFor(t, ctx, svc, "alice")

	require.NoError(t, svc.SetRole(ctx, sess, "group"))
	svc.ResetRole(sess)
	assert.Equal(t, "alice", sess.ActiveRoleName())

	require.NoError(t, svc.SetRole(ctx, sess, "group"))
	svc.SetRoleNone(sess)
	assert.Equal(t, "alice", sess.ActiveRoleName())

	// Both are safe on a nil session.
	svc.ResetRole(nil)
	svc.SetRoleNone(nil)
}

func TestSetRoleScopeProjection(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	mustCreateRole(t, ctx, svc, root, "dbrole", RoleAttributes{})
	require.NoError(t, svc.GrantMembership(ctx, root, "dbrole", "alice",
		DefaultMembershipOptions(), InDatabase("db1")))

	// The edge only exists in db1's projection.
	db1, err := svc.NewSession(ctx, "alice", "db1")
	require.NoError(t, err)
	require.NoError(t, svc.SetRole(ctx, db1, "dbrole"))

	db2, err := svc.NewSession(ctx, "alice", "db2")
	require.NoError(t, err)
	assert.True(t, IsNotAuthorized(svc.SetRole(ctx, db2, "dbrole")))

	cluster, err := svc.NewSession(ctx, "alice", "")
	require.NoError(t, err)
	assert.True(t, IsNotAuthorized(svc.SetRole(ctx, cluster, "dbrole")))
}

func TestSessionClosureCacheInvalidation(t *testing.T) {
	svc, ctx := newTestService(t)
	root := rootSession(t, ctx, svc)

	mustCreateRole(t, ctx, svc, root, "alice", RoleAttributes{CanLogin: true})
	mustCreateRole(t, ctx, svc, root, "readers", RoleAttributes{})

	obj := ObjectRef{Class: ClassTable, ID: "reports"}
	_, err := svc.GrantPrivilege(ctx, root, obj, []string{PrivilegeSelect},
		granteeFor(t, ctx, svc, "readers"), GrantOptions{})
	require.NoError(t, err)

	sess := sessionFor(t, ctx, svc, "alice")

	// Prime the cache: alice is not yet a member of readers.
	ok, err := svc.EffectivePrivilege(ctx, sess, obj, PrivilegeSelect)
	require.NoError(t, err)
	assert.False(t, ok)

	// The membership grant bumps the graph version; the stale cached
	// closure must not be served.
	mustGrantMembership(t, ctx, svc, root, "readers", "alice", DefaultMembershipOptions())

	ok, err = svc.EffectivePrivilege(ctx, sess, obj, PrivilegeSelect)
	require.NoError(t, err)
	assert.True(t, ok)

	// And symmetrically after a revoke.
	require.NoError(t, svc.RevokeMembership(ctx, root, "readers", "alice",
		RevokeMembershipOptions{}, Global()))
	ok, err = svc.EffectivePrivilege(ctx, sess, obj, PrivilegeSelect)
	require.NoError(t, err)
	assert.False(t, ok)
}
