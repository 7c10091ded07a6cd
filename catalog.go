package grantkit

import (
	"context"
)

// Catalog is the backing-store contract the engine runs against: durable,
// transactional row access keyed by entity type and primary key, with the
// range scans the graph and grant queries need. The engine issues no raw file
// or network I/O itself; everything goes through a Catalog.
//
// Lookup methods return (nil, nil) when no row matches, except RoleByID and
// RoleByName which return ErrRoleNotFound so callers can surface it directly.
//
// Mutating methods must only be called on the Catalog handed to a RunInTx
// callback; the engine routes every multi-row command through RunInTx so that
// either the full set of row operations commits or none do.
type Catalog interface {
	// Roles.
	InsertRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID string) error
	RoleByID(ctx context.Context, roleID string) (*Role, error)
	RoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	// Membership edges. EdgesByMember and EdgesByRole return the scope
	// projection: global edges plus, for a database scope, that database's
	// edges. EdgesMatching matches the given scope exactly.
	InsertEdge(ctx context.Context, edge *MembershipEdge) error
	UpdateEdge(ctx context.Context, edge *MembershipEdge) error
	DeleteEdge(ctx context.Context, edgeID string) error
	FindEdge(ctx context.Context, roleID, memberID, grantorID, databaseID string) (*MembershipEdge, error)
	EdgesByMember(ctx context.Context, memberID string, scope Scope) ([]MembershipEdge, error)
	EdgesByRole(ctx context.Context, roleID string, scope Scope) ([]MembershipEdge, error)
	EdgesMatching(ctx context.Context, roleID, memberID string, scope Scope) ([]MembershipEdge, error)
	EdgesTouching(ctx context.Context, roleID string) ([]MembershipEdge, error)
	EdgesByParent(ctx context.Context, parentEdgeID string) ([]MembershipEdge, error)

	// Privilege grants.
	InsertGrant(ctx context.Context, grant *PrivilegeGrant) error
	UpdateGrant(ctx context.Context, grant *PrivilegeGrant) error
	DeleteGrant(ctx context.Context, grantID string) error
	FindGrant(ctx context.Context, obj ObjectRef, privilege, column, granteeID, grantorID string) (*PrivilegeGrant, error)
	GrantsOnObject(ctx context.Context, obj ObjectRef) ([]PrivilegeGrant, error)
	GrantsTouchingRole(ctx context.Context, roleID string) ([]PrivilegeGrant, error)
	GrantsByParent(ctx context.Context, parentGrantID string) ([]PrivilegeGrant, error)

	// Audit log.
	AppendAudit(ctx context.Context, entry *AuthAuditLog) error
	AuditLog(ctx context.Context, filter AuditLogFilter) ([]AuthAuditLog, error)

	// RunInTx executes fn atomically. All access inside fn must go through
	// the Catalog passed to it. Nested calls join the enclosing transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Catalog) error) error
}

// OwnershipRegistry is the object-ownership collaborator. GrantKit consults
// it for owner-implicit grant options and for the owned-object dependency
// check on DROP ROLE; it never mutates non-role objects itself.
type OwnershipRegistry interface {
	// ObjectsOwnedBy returns the objects owned by a role.
	ObjectsOwnedBy(ctx context.Context, roleID string) ([]ObjectRef, error)

	// ObjectOwner returns the owning role of an object, or "" if unknown.
	ObjectOwner(ctx context.Context, obj ObjectRef) (string, error)

	// ReassignOwnership moves every object owned by from to to.
	ReassignOwnership(ctx context.Context, fromRoleID, toRoleID string, scope Scope) error

	// DropOwnedObjects drops every object owned by the role.
	DropOwnedObjects(ctx context.Context, roleID string, scope Scope) error
}

// nullOwnership is the default collaborator: no objects, no owners.
type nullOwnership struct{}

func (nullOwnership) ObjectsOwnedBy(ctx context.Context, roleID string) ([]ObjectRef, error) {
	return nil, nil
}

func (nullOwnership) ObjectOwner(ctx context.Context, obj ObjectRef) (string, error) {
	return "", nil
}

func (nullOwnership) ReassignOwnership(ctx context.Context, fromRoleID, toRoleID string, scope Scope) error {
	return nil
}

func (nullOwnership) DropOwnedObjects(ctx context.Context, roleID string, scope Scope) error {
	return nil
}
