// Package grantkit is an authorization engine built around a graph of roles,
// delegable role memberships and privilege grants on objects.
//
// GrantKit answers two questions with strict, auditable semantics: "does role
// X currently hold privilege P on object O?" and "may role X grant or revoke
// P, or membership in a role, on behalf of someone else?". The model follows
// the classic database catalog shape: roles with static attributes, a
// directed membership graph with per-edge admin/inherit/set options, and
// additive privilege grants that remember who granted them.
//
// # Core Concepts
//
// Role: an authorization principal. A role may be a login user, a group, or
// both. Roles carry static attributes (login, superuser, create-role,
// connection limit, credential, per-role configuration overrides).
//
// Membership edge: role -> member, recorded with the grantor that issued it
// and three independent options:
//
//   - admin: the member may grant/revoke membership in the role to others
//   - inherit: the member uses the role's privileges automatically
//   - set: the member may switch its active identity to the role
//
// Edges are scope-qualified: cluster-wide (Global) or local to one database.
// The graph is kept cycle-free per scope projection.
//
// Privilege grant: (object, privilege, grantee, grantor, grant option).
// Grants from different grantors are additive; one sufficient unrevoked grant
// is enough. The PUBLIC pseudo-grantee reaches every role, including roles
// created later. Every grant made under someone else's grant option records
// that parent, so revocation can cascade along the exact delegation chain.
//
// Session: an explicit value {login role, active role, database} threaded
// through every call. SET ROLE switches the active role and with it the
// entire effective privilege set.
//
// # Basic Usage
//
//	// 1. Pick a catalog (storage backend).
//	cat := grantkit.NewMemoryCatalog()
//	// or: db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	//     cat := grantkit.NewSQLCatalog(db)
//
//	// 2. Create the service and bootstrap the first superuser.
//	svc := grantkit.New(cat)
//	svc.Bootstrap(ctx, "postgres", grantkit.RoleAttributes{
//	    Superuser: true,
//	    CanLogin:  true,
//	})
//
//	// 3. Open a session and run commands through it.
//	sess, _ := svc.NewSession(ctx, "postgres", "db1")
//	joe, _ := svc.CreateRole(ctx, sess, "joe", grantkit.RoleAttributes{CanLogin: true})
//	svc.CreateRole(ctx, sess, "admin", grantkit.RoleAttributes{})
//	svc.GrantMembership(ctx, sess, "admin", "joe",
//	    grantkit.DefaultMembershipOptions(), grantkit.Global())
//
//	obj := grantkit.ObjectRef{Class: grantkit.ClassTable, ID: "t1"}
//	svc.GrantPrivilege(ctx, sess, obj, []string{grantkit.PrivilegeSelect},
//	    grantkit.RoleGrantee(joe.ID), grantkit.GrantOptions{})
//
//	// 4. Authorize operations.
//	joeSess, _ := svc.NewSession(ctx, "joe", "db1")
//	ok, _ := svc.EffectivePrivilege(ctx, joeSess, obj, grantkit.PrivilegeSelect)
//
// # Delegation and Revocation
//
// A grantor needs the privilege with grant option (held directly, through the
// inheritance closure, or via PUBLIC), or must be a superuser or the object's
// owner. Grants made under a grant option record the enabling grant as their
// parent; revoking the parent under RESTRICT fails naming the dependents,
// under CASCADE removes the whole chain atomically. The same right reached
// through an unrelated grantor survives a cascade.
//
// # Storage
//
// The engine issues no I/O of its own: all state lives behind the Catalog
// interface (point reads/writes plus keyed scans, transactional via RunInTx).
// SQLCatalog stores rows in PostgreSQL through dbkit/bun; MemoryCatalog keeps
// everything in process with snapshot-swap transactions and is handy for
// tests and embedded use.
//
// # Audit Log
//
// Every mutating command appends an audit row: actor, action, target role or
// object, privilege, scope, previous and new state, plus request metadata
// (IP, user agent, request ID) taken from the context.
package grantkit
