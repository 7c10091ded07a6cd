package grantkit

import (
	"context"
	"fmt"

	"github.com/fernandezvara/dbkit"
)

// SQLCatalog is the PostgreSQL-backed Catalog built on dbkit/bun. Run the
// migrations from Migrations() before first use:
//
//	db, _ := dbkit.New(dbkit.Config{URL: databaseURL})
//	cat := grantkit.NewSQLCatalog(db)
//	_, _ = db.Migrate(ctx, cat.Migrations())
//	svc := grantkit.New(cat)
type SQLCatalog struct {
	db dbkit.IDB
}

// NewSQLCatalog creates a Catalog backed by the given database handle.
func NewSQLCatalog(db dbkit.IDB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

// RunInTx executes fn within a database transaction. If the catalog already
// wraps a transaction, a savepoint is used so nested calls join the outer
// transaction.
func (c *SQLCatalog) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Catalog) error) error {
	if tx, ok := c.db.(*dbkit.Tx); ok {
		return tx.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(ctx, &SQLCatalog{db: tx})
		})
	}
	if db, ok := c.db.(*dbkit.DBKit); ok {
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(ctx, &SQLCatalog{db: tx})
		})
	}
	return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
}

// ============================================================================
// ROLES
// ============================================================================

func (c *SQLCatalog) InsertRole(ctx context.Context, role *Role) error {
	result, err := c.db.NewInsert().Model(role).Exec(ctx)
	if dbkit.IsDuplicate(err) {
		return NewError(ErrRoleExists, role.Name).WithRole(role.Name)
	}
	if err = dbkit.WithErr(result, err, "InsertRole").Err(); err != nil {
		return NewError(ErrStorage, "failed to insert role").WithRole(role.Name)
	}
	return nil
}

func (c *SQLCatalog) UpdateRole(ctx context.Context, role *Role) error {
	result, err := c.db.NewUpdate().Model(role).WherePK().Exec(ctx)
	if dbkit.IsDuplicate(err) {
		return NewError(ErrRoleExists, role.Name).WithRole(role.Name)
	}
	if err = dbkit.WithErr(result, err, "UpdateRole").Err(); err != nil {
		return NewError(ErrStorage, "failed to update role").WithRole(role.Name)
	}
	return nil
}

func (c *SQLCatalog) DeleteRole(ctx context.Context, roleID string) error {
	result, err := c.db.NewDelete().Table("auth_roles").Where("id = ?", roleID).Exec(ctx)
	if err = dbkit.WithErr(result, err, "DeleteRole").Err(); err != nil {
		return NewError(ErrStorage, "failed to delete role")
	}
	return nil
}

func (c *SQLCatalog) RoleByID(ctx context.Context, roleID string) (*Role, error) {
	role := new(Role)
	err := c.db.NewSelect().Model(role).Where("id = ?", roleID).Scan(ctx)
	if dbkit.IsNotFound(err) {
		return nil, NewError(ErrRoleNotFound, roleID)
	}
	if err = dbkit.WithErr1(err, "RoleByID").Err(); err != nil {
		return nil, err
	}
	return role, nil
}

func (c *SQLCatalog) RoleByName(ctx context.Context, name string) (*Role, error) {
	role := new(Role)
	err := c.db.NewSelect().Model(role).Where("name = ?", name).Scan(ctx)
	if dbkit.IsNotFound(err) {
		return nil, NewError(ErrRoleNotFound, name).WithRole(name)
	}
	if err = dbkit.WithErr1(err, "RoleByName").Err(); err != nil {
		return nil, err
	}
	return role, nil
}

func (c *SQLCatalog) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := c.db.NewSelect().Model(&roles).Order("name ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "ListRoles").Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// ============================================================================
// MEMBERSHIP EDGES
// ============================================================================

func (c *SQLCatalog) InsertEdge(ctx context.Context, edge *MembershipEdge) error {
	result, err := c.db.NewInsert().Model(edge).Exec(ctx)
	if err = dbkit.WithErr(result, err, "InsertEdge").Err(); err != nil {
		return NewError(ErrStorage, "failed to insert membership edge")
	}
	return nil
}

func (c *SQLCatalog) UpdateEdge(ctx context.Context, edge *MembershipEdge) error {
	result, err := c.db.NewUpdate().Model(edge).WherePK().Exec(ctx)
	if err = dbkit.WithErr(result, err, "UpdateEdge").Err(); err != nil {
		return NewError(ErrStorage, "failed to update membership edge")
	}
	return nil
}

func (c *SQLCatalog) DeleteEdge(ctx context.Context, edgeID string) error {
	result, err := c.db.NewDelete().Table("role_members").Where("id = ?", edgeID).Exec(ctx)
	if err = dbkit.WithErr(result, err, "DeleteEdge").Err(); err != nil {
		return NewError(ErrStorage, "failed to delete membership edge")
	}
	return nil
}

func (c *SQLCatalog) FindEdge(ctx context.Context, roleID, memberID, grantorID, databaseID string) (*MembershipEdge, error) {
	edge := new(MembershipEdge)
	err := c.db.NewSelect().Model(edge).
		Where("role_id = ? AND member_id = ? AND grantor_id = ? AND database_id = ?",
			roleID, memberID, grantorID, databaseID).
		Scan(ctx)
	if dbkit.IsNotFound(err) {
		return nil, nil
	}
	if err = dbkit.WithErr1(err, "FindEdge").Err(); err != nil {
		return nil, err
	}
	return edge, nil
}

func (c *SQLCatalog) EdgesByMember(ctx context.Context, memberID string, scope Scope) ([]MembershipEdge, error) {
	var edges []MembershipEdge
	err := c.db.NewSelect().Model(&edges).
		Where("member_id = ? AND (database_id = '' OR database_id = ?)", memberID, scope.DatabaseID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "EdgesByMember").Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func (c *SQLCatalog) EdgesByRole(ctx context.Context, roleID string, scope Scope) ([]MembershipEdge, error) {
	var edges []MembershipEdge
	err := c.db.NewSelect().Model(&edges).
		Where("role_id = ? AND (database_id = '' OR database_id = ?)", roleID, scope.DatabaseID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "EdgesByRole").Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func (c *SQLCatalog) EdgesMatching(ctx context.Context, roleID, memberID string, scope Scope) ([]MembershipEdge, error) {
	var edges []MembershipEdge
	err := c.db.NewSelect().Model(&edges).
		Where("role_id = ? AND member_id = ? AND database_id = ?", roleID, memberID, scope.DatabaseID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "EdgesMatching").Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func (c *SQLCatalog) EdgesTouching(ctx context.Context, roleID string) ([]MembershipEdge, error) {
	var edges []MembershipEdge
	err := c.db.NewSelect().Model(&edges).
		Where("role_id = ? OR member_id = ? OR grantor_id = ?", roleID, roleID, roleID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "EdgesTouching").Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

func (c *SQLCatalog) EdgesByParent(ctx context.Context, parentEdgeID string) ([]MembershipEdge, error) {
	var edges []MembershipEdge
	err := c.db.NewSelect().Model(&edges).
		Where("parent_edge_id = ?", parentEdgeID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "EdgesByParent").Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

// ============================================================================
// PRIVILEGE GRANTS
// ============================================================================

func (c *SQLCatalog) InsertGrant(ctx context.Context, grant *PrivilegeGrant) error {
	result, err := c.db.NewInsert().Model(grant).Exec(ctx)
	if err = dbkit.WithErr(result, err, "InsertGrant").Err(); err != nil {
		return NewError(ErrStorage, "failed to insert privilege grant")
	}
	return nil
}

func (c *SQLCatalog) UpdateGrant(ctx context.Context, grant *PrivilegeGrant) error {
	result, err := c.db.NewUpdate().Model(grant).WherePK().Exec(ctx)
	if err = dbkit.WithErr(result, err, "UpdateGrant").Err(); err != nil {
		return NewError(ErrStorage, "failed to update privilege grant")
	}
	return nil
}

func (c *SQLCatalog) DeleteGrant(ctx context.Context, grantID string) error {
	result, err := c.db.NewDelete().Table("privilege_grants").Where("id = ?", grantID).Exec(ctx)
	if err = dbkit.WithErr(result, err, "DeleteGrant").Err(); err != nil {
		return NewError(ErrStorage, "failed to delete privilege grant")
	}
	return nil
}

func (c *SQLCatalog) FindGrant(ctx context.Context, obj ObjectRef, privilege, column, granteeID, grantorID string) (*PrivilegeGrant, error) {
	grant := new(PrivilegeGrant)
	err := c.db.NewSelect().Model(grant).
		Where("object_class = ? AND object_id = ? AND privilege = ? AND column_name = ? AND grantee_id = ? AND grantor_id = ?",
			obj.Class, obj.ID, privilege, column, granteeID, grantorID).
		Scan(ctx)
	if dbkit.IsNotFound(err) {
		return nil, nil
	}
	if err = dbkit.WithErr1(err, "FindGrant").Err(); err != nil {
		return nil, err
	}
	return grant, nil
}

func (c *SQLCatalog) GrantsOnObject(ctx context.Context, obj ObjectRef) ([]PrivilegeGrant, error) {
	var grants []PrivilegeGrant
	err := c.db.NewSelect().Model(&grants).
		Where("object_class = ? AND object_id = ?", obj.Class, obj.ID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "GrantsOnObject").Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (c *SQLCatalog) GrantsTouchingRole(ctx context.Context, roleID string) ([]PrivilegeGrant, error) {
	var grants []PrivilegeGrant
	err := c.db.NewSelect().Model(&grants).
		Where("grantee_id = ? OR grantor_id = ?", roleID, roleID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "GrantsTouchingRole").Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (c *SQLCatalog) GrantsByParent(ctx context.Context, parentGrantID string) ([]PrivilegeGrant, error) {
	var grants []PrivilegeGrant
	err := c.db.NewSelect().Model(&grants).
		Where("parent_grant_id = ?", parentGrantID).
		Order("id ASC").Scan(ctx)
	if err = dbkit.WithErr1(err, "GrantsByParent").Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// ============================================================================
// AUDIT LOG
// ============================================================================

func (c *SQLCatalog) AppendAudit(ctx context.Context, entry *AuthAuditLog) error {
	result, err := c.db.NewInsert().Model(entry).Exec(ctx)
	return dbkit.WithErr(result, err, "AppendAudit").Err()
}

func (c *SQLCatalog) AuditLog(ctx context.Context, filter AuditLogFilter) ([]AuthAuditLog, error) {
	var entries []AuthAuditLog
	query := c.db.NewSelect().Model(&entries)

	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.TargetRole != "" {
		query = query.Where("target_role = ?", filter.TargetRole)
	}
	if filter.Object != "" {
		query = query.Where("object = ?", filter.Object)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Scope != "" {
		query = query.Where("scope = ?", filter.Scope)
	}
	if !filter.Since.IsZero() {
		query = query.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("timestamp <= ?", filter.Until)
	}

	query = query.Order("timestamp DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	err := query.Scan(ctx)
	if err = dbkit.WithErr1(err, "AuditLog").Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ============================================================================
// HEALTH
// ============================================================================

// Health performs a comprehensive health check of the database connection.
func (c *SQLCatalog) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := c.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}
	return dbkit.HealthStatus{
		Healthy: c.Ping(ctx) == nil,
		Error:   "Limited health check - not a DBKit instance",
	}
}

// Ping performs a basic connectivity test to the database.
func (c *SQLCatalog) Ping(ctx context.Context) error {
	var result int
	return c.db.NewSelect().Model((*struct{})(nil)).ColumnExpr("1").Limit(1).Scan(ctx, &result)
}

// PoolStats returns connection pool statistics for monitoring.
// Returns zero values if the database instance doesn't expose pool statistics.
func (c *SQLCatalog) PoolStats() dbkit.PoolStats {
	if db, ok := c.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}
