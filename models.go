package grantkit

import (
	"time"

	"github.com/uptrace/bun"
)

// PublicID is the grantee identifier of the PUBLIC pseudo-role. PUBLIC
// represents every role, including roles created after the grant was made.
// It is never a row in the role table and never a graph node.
const PublicID = "public"

// BootstrapID is the grantor identifier recorded on rows issued by the
// system itself: bootstrap grants and the automatic grant-back edge created
// when a create-role holder creates a new role. Rows with this grantor can
// only be altered or removed by a superuser.
const BootstrapID = "sys:bootstrap"

// Scope qualifies a membership edge or an operation as cluster-wide or local
// to a single database. The zero value is the global scope.
type Scope struct {
	DatabaseID string
}

// Global returns the cluster-wide scope.
func Global() Scope {
	return Scope{}
}

// InDatabase returns a scope local to the given database.
func InDatabase(databaseID string) Scope {
	return Scope{DatabaseID: databaseID}
}

// IsGlobal reports whether this is the cluster-wide scope.
func (s Scope) IsGlobal() bool {
	return s.DatabaseID == ""
}

// String returns a string representation of the scope.
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "database:" + s.DatabaseID
}

// Grantee is the target of a privilege grant: a named role or PUBLIC.
type Grantee struct {
	roleID string
}

// RoleGrantee returns a grantee naming a specific role.
func RoleGrantee(roleID string) Grantee {
	return Grantee{roleID: roleID}
}

// Public returns the PUBLIC pseudo-grantee.
func Public() Grantee {
	return Grantee{roleID: PublicID}
}

// IsPublic reports whether the grantee is PUBLIC.
func (g Grantee) IsPublic() bool {
	return g.roleID == PublicID
}

// RoleID returns the role identifier, or PublicID for PUBLIC.
func (g Grantee) RoleID() string {
	return g.roleID
}

// String returns a string representation of the grantee.
func (g Grantee) String() string {
	if g.IsPublic() {
		return "PUBLIC"
	}
	return g.roleID
}

// Object classes known to the default registry.
const (
	ClassTable    = "table"
	ClassColumn   = "column"
	ClassDatabase = "database"
	ClassSchema   = "schema"
	ClassFunction = "function"
	ClassSequence = "sequence"
)

// Privilege kinds. PrivilegeAll is a pseudo-kind expanded by the class
// registry to every kind valid for the object class.
const (
	PrivilegeSelect     = "SELECT"
	PrivilegeInsert     = "INSERT"
	PrivilegeUpdate     = "UPDATE"
	PrivilegeDelete     = "DELETE"
	PrivilegeTruncate   = "TRUNCATE"
	PrivilegeReferences = "REFERENCES"
	PrivilegeTrigger    = "TRIGGER"
	PrivilegeCreate     = "CREATE"
	PrivilegeConnect    = "CONNECT"
	PrivilegeTemporary  = "TEMPORARY"
	PrivilegeExecute    = "EXECUTE"
	PrivilegeUsage      = "USAGE"
	PrivilegeAll        = "ALL"
)

// ObjectRef identifies an object a privilege can be granted on.
type ObjectRef struct {
	Class string // object class, e.g. ClassTable
	ID    string // object identifier within the class
}

// String returns a string representation of the object reference.
func (o ObjectRef) String() string {
	return o.Class + ":" + o.ID
}

// Role is a row in the role directory.
type Role struct {
	bun.BaseModel `bun:"table:auth_roles,alias:ar"`

	ID   string `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name string `bun:"name,notnull,unique"`

	CanLogin    bool `bun:"can_login,notnull"`
	Superuser   bool `bun:"superuser,notnull"`
	CreateDB    bool `bun:"create_db,notnull"`
	CreateRole  bool `bun:"create_role,notnull"`
	Replication bool `bun:"replication,notnull"`
	BypassRLS   bool `bun:"bypass_rls,notnull"`

	// ConnLimit caps concurrent connections; -1 means unlimited.
	ConnLimit int `bun:"conn_limit,notnull,default:-1"`

	// Credential is the bcrypt hash of the role's password, empty if none.
	Credential string `bun:"credential"`

	// Config holds per-role configuration overrides (setting -> value).
	Config map[string]string `bun:"config,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// MembershipEdge is a delegable membership relationship: MemberID is a member
// of RoleID. The same (role, member, grantor) triple may exist cluster-wide
// and independently in one or more databases; the rows are additive.
type MembershipEdge struct {
	bun.BaseModel `bun:"table:role_members,alias:rm"`

	ID        string `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	RoleID    string `bun:"role_id,notnull"`
	MemberID  string `bun:"member_id,notnull"`
	GrantorID string `bun:"grantor_id,notnull"`

	AdminOption   bool `bun:"admin_option,notnull"`
	InheritOption bool `bun:"inherit_option,notnull"`
	SetOption     bool `bun:"set_option,notnull"`

	// DatabaseID scopes the edge to one database; empty means cluster-wide.
	DatabaseID string `bun:"database_id,notnull,default:''"`

	// ParentEdgeID references the admin-option edge that authorized the
	// grantor to create this edge. Empty for superuser and bootstrap rows.
	ParentEdgeID string `bun:"parent_edge_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Scope returns the scope the edge belongs to.
func (e *MembershipEdge) Scope() Scope {
	return Scope{DatabaseID: e.DatabaseID}
}

// PrivilegeGrant is one grant of a privilege on an object. Grants with the
// same (object, privilege, column, grantee) but different grantors coexist;
// the grantee's effective right is the OR across them.
type PrivilegeGrant struct {
	bun.BaseModel `bun:"table:privilege_grants,alias:pg"`

	ID          string `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ObjectClass string `bun:"object_class,notnull"`
	ObjectID    string `bun:"object_id,notnull"`
	Privilege   string `bun:"privilege,notnull"`

	// Column narrows the grant to a single column; empty covers the object.
	Column string `bun:"column_name,notnull,default:''"`

	GranteeID string `bun:"grantee_id,notnull"` // role ID or PublicID
	GrantorID string `bun:"grantor_id,notnull"` // role ID or BootstrapID

	WithGrantOption bool `bun:"with_grant_option,notnull"`

	// ParentGrantID references the grant that supplied the grantor's grant
	// option. Empty for superuser, owner and bootstrap rows.
	ParentGrantID string `bun:"parent_grant_id"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Object returns the object the grant applies to.
func (g *PrivilegeGrant) Object() ObjectRef {
	return ObjectRef{Class: g.ObjectClass, ID: g.ObjectID}
}

// MembershipOptions are the three independent capabilities carried by a
// membership edge.
type MembershipOptions struct {
	Admin   bool
	Inherit bool
	Set     bool
}

// DefaultMembershipOptions returns the options applied when a grant command
// does not specify any: inherit and set on, admin off.
func DefaultMembershipOptions() MembershipOptions {
	return MembershipOptions{Inherit: true, Set: true}
}

// MembershipOption names a single edge option for option-only revocation.
type MembershipOption string

const (
	OptionAdmin   MembershipOption = "admin"
	OptionInherit MembershipOption = "inherit"
	OptionSet     MembershipOption = "set"
)

// GrantOptions configure GrantPrivilege.
type GrantOptions struct {
	// WithGrantOption lets the grantee re-grant the privilege to others.
	// Rejected when the grantee is PUBLIC.
	WithGrantOption bool

	// Column narrows the grant to one column of the object.
	Column string
}

// RevokePrivilegeOptions configure RevokePrivilege.
type RevokePrivilegeOptions struct {
	// OptionOnly removes only the grant-option flag, keeping the privilege.
	OptionOnly bool

	// Cascade removes dependent grants transitively instead of failing.
	Cascade bool

	// Column targets a column-level grant.
	Column string
}

// RevokeMembershipOptions configure RevokeMembership.
type RevokeMembershipOptions struct {
	// Option, when set, removes a single edge option instead of the edge.
	Option MembershipOption

	// GrantorID restricts the revoke to edges issued by this grantor.
	// Empty matches every grantor.
	GrantorID string

	// Cascade removes dependent edges transitively instead of failing.
	Cascade bool
}

// Warning is a non-fatal diagnostic surfaced by a command that proceeded
// partially, such as a grant for which only a subset of the requested
// privileges carried a grant option.
type Warning struct {
	Code      string
	Message   string
	Object    ObjectRef
	Privilege string
}

// Warning codes.
const (
	WarnPartialGrant = "partial_grant"
	WarnNotGranted   = "not_granted"
	WarnNoOption     = "no_grant_option"
)

// String returns the warning message with its code.
func (w Warning) String() string {
	return w.Code + ": " + w.Message
}
