package grantkit

import (
	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required by the SQL catalog.
// Use db.Migrate(ctx, cat.Migrations()) to run them and
// db.MigrationStatus(ctx, cat.Migrations()) to check status.
func (c *SQLCatalog) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "grantkit-001",
			Description: "Create auth_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS auth_roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL UNIQUE,
                    can_login BOOLEAN NOT NULL DEFAULT false,
                    superuser BOOLEAN NOT NULL DEFAULT false,
                    create_db BOOLEAN NOT NULL DEFAULT false,
                    create_role BOOLEAN NOT NULL DEFAULT false,
                    replication BOOLEAN NOT NULL DEFAULT false,
                    bypass_rls BOOLEAN NOT NULL DEFAULT false,
                    conn_limit INTEGER NOT NULL DEFAULT -1,
                    credential TEXT,
                    config JSONB,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "grantkit-002",
			Description: "Create role_members table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_members (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    role_id TEXT NOT NULL,
                    member_id TEXT NOT NULL,
                    grantor_id TEXT NOT NULL,
                    admin_option BOOLEAN NOT NULL DEFAULT false,
                    inherit_option BOOLEAN NOT NULL DEFAULT true,
                    set_option BOOLEAN NOT NULL DEFAULT true,
                    database_id TEXT NOT NULL DEFAULT '',
                    parent_edge_id TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (role_id, member_id, grantor_id, database_id)
                )`,
		},
		{
			ID:          "grantkit-003",
			Description: "Create role_members lookup indexes",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_role_members_member ON role_members (member_id, database_id);
                CREATE INDEX IF NOT EXISTS idx_role_members_role ON role_members (role_id, database_id);
                CREATE INDEX IF NOT EXISTS idx_role_members_parent ON role_members (parent_edge_id)`,
		},
		{
			ID:          "grantkit-004",
			Description: "Create privilege_grants table",
			SQL: `
                CREATE TABLE IF NOT EXISTS privilege_grants (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    object_class TEXT NOT NULL,
                    object_id TEXT NOT NULL,
                    privilege TEXT NOT NULL,
                    column_name TEXT NOT NULL DEFAULT '',
                    grantee_id TEXT NOT NULL,
                    grantor_id TEXT NOT NULL,
                    with_grant_option BOOLEAN NOT NULL DEFAULT false,
                    parent_grant_id TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (object_class, object_id, privilege, column_name, grantee_id, grantor_id)
                )`,
		},
		{
			ID:          "grantkit-005",
			Description: "Create privilege_grants lookup indexes",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_privilege_grants_object ON privilege_grants (object_class, object_id);
                CREATE INDEX IF NOT EXISTS idx_privilege_grants_grantee ON privilege_grants (grantee_id);
                CREATE INDEX IF NOT EXISTS idx_privilege_grants_parent ON privilege_grants (parent_grant_id)`,
		},
		{
			ID:          "grantkit-006",
			Description: "Create auth_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS auth_audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    target_role TEXT,
                    member_role TEXT,
                    object TEXT,
                    privilege TEXT,
                    grantee TEXT,
                    scope TEXT,
                    previous_state TEXT,
                    new_state TEXT,
                    warnings TEXT[],
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                )`,
		},
		{
			ID:          "grantkit-007",
			Description: "Create auth_audit_log lookup indexes",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_auth_audit_log_actor ON auth_audit_log (actor_id, timestamp);
                CREATE INDEX IF NOT EXISTS idx_auth_audit_log_target ON auth_audit_log (target_role, timestamp)`,
		},
	}
}
