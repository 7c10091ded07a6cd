package grantkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-process Catalog: mutex-guarded maps with
// snapshot-swap transactions. A RunInTx callback works on a deep copy of the
// state; the copy becomes visible atomically on success and is discarded on
// error, so readers always observe a transaction-consistent snapshot. Useful
// for tests and embedded deployments that do not need durability.
type MemoryCatalog struct {
	mu sync.RWMutex
	st *memState
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{st: newMemState()}
}

// RunInTx runs fn against a private copy of the state and swaps it in on
// success. Transactions are serialized under the catalog's writer lock.
func (m *MemoryCatalog) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Catalog) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.st.clone()
	if err := fn(ctx, &memTx{st: clone}); err != nil {
		return err
	}
	m.st = clone
	return nil
}

// memTx is the transactional view handed to RunInTx callbacks. It works on
// the cloned state directly; nested RunInTx calls join the transaction.
type memTx struct {
	st *memState
}

func (t *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Catalog) error) error {
	return fn(ctx, t)
}

// memState holds the catalog rows.
type memState struct {
	roles  map[string]*Role
	byName map[string]string // role name -> role ID
	edges  map[string]*MembershipEdge
	grants map[string]*PrivilegeGrant
	audit  []AuthAuditLog
}

func newMemState() *memState {
	return &memState{
		roles:  make(map[string]*Role),
		byName: make(map[string]string),
		edges:  make(map[string]*MembershipEdge),
		grants: make(map[string]*PrivilegeGrant),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		roles:  make(map[string]*Role, len(st.roles)),
		byName: make(map[string]string, len(st.byName)),
		edges:  make(map[string]*MembershipEdge, len(st.edges)),
		grants: make(map[string]*PrivilegeGrant, len(st.grants)),
		audit:  make([]AuthAuditLog, len(st.audit)),
	}
	for id, r := range st.roles {
		c.roles[id] = copyRole(r)
	}
	for name, id := range st.byName {
		c.byName[name] = id
	}
	for id, e := range st.edges {
		edge := *e
		c.edges[id] = &edge
	}
	for id, g := range st.grants {
		grant := *g
		c.grants[id] = &grant
	}
	copy(c.audit, st.audit)
	return c
}

func copyRole(r *Role) *Role {
	role := *r
	if r.Config != nil {
		role.Config = make(map[string]string, len(r.Config))
		for k, v := range r.Config {
			role.Config[k] = v
		}
	}
	return &role
}

// ============================================================================
// ROLES
// ============================================================================

func (st *memState) insertRole(role *Role) error {
	if _, taken := st.byName[role.Name]; taken {
		return NewError(ErrRoleExists, role.Name)
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	st.roles[role.ID] = copyRole(role)
	st.byName[role.Name] = role.ID
	return nil
}

func (st *memState) updateRole(role *Role) error {
	stored, ok := st.roles[role.ID]
	if !ok {
		return NewError(ErrRoleNotFound, role.ID)
	}
	if stored.Name != role.Name {
		if _, taken := st.byName[role.Name]; taken {
			return NewError(ErrRoleExists, role.Name)
		}
		delete(st.byName, stored.Name)
		st.byName[role.Name] = role.ID
	}
	role.UpdatedAt = time.Now()
	st.roles[role.ID] = copyRole(role)
	return nil
}

func (st *memState) deleteRole(roleID string) error {
	stored, ok := st.roles[roleID]
	if !ok {
		return NewError(ErrRoleNotFound, roleID)
	}
	delete(st.byName, stored.Name)
	delete(st.roles, roleID)
	return nil
}

func (st *memState) roleByID(roleID string) (*Role, error) {
	stored, ok := st.roles[roleID]
	if !ok {
		return nil, NewError(ErrRoleNotFound, roleID)
	}
	return copyRole(stored), nil
}

func (st *memState) roleByName(name string) (*Role, error) {
	id, ok := st.byName[name]
	if !ok {
		return nil, NewError(ErrRoleNotFound, name).WithRole(name)
	}
	return st.roleByID(id)
}

func (st *memState) listRoles() []Role {
	roles := make([]Role, 0, len(st.roles))
	for _, r := range st.roles {
		roles = append(roles, *copyRole(r))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// ============================================================================
// MEMBERSHIP EDGES
// ============================================================================

func (st *memState) insertEdge(edge *MembershipEdge) error {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	now := time.Now()
	edge.CreatedAt = now
	edge.UpdatedAt = now
	stored := *edge
	st.edges[edge.ID] = &stored
	return nil
}

func (st *memState) updateEdge(edge *MembershipEdge) error {
	if _, ok := st.edges[edge.ID]; !ok {
		return NewError(ErrStorage, "membership edge not found: "+edge.ID)
	}
	edge.UpdatedAt = time.Now()
	stored := *edge
	st.edges[edge.ID] = &stored
	return nil
}

func (st *memState) deleteEdge(edgeID string) error {
	if _, ok := st.edges[edgeID]; !ok {
		return NewError(ErrStorage, "membership edge not found: "+edgeID)
	}
	delete(st.edges, edgeID)
	return nil
}

// projected reports whether an edge is visible in a scope's projection:
// global edges always, database edges only in their own database's scope.
func projected(databaseID string, scope Scope) bool {
	return databaseID == "" || databaseID == scope.DatabaseID
}

func (st *memState) selectEdges(match func(*MembershipEdge) bool) []MembershipEdge {
	var out []MembershipEdge
	for _, e := range st.edges {
		if match(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *memState) findEdge(roleID, memberID, grantorID, databaseID string) *MembershipEdge {
	for _, e := range st.edges {
		if e.RoleID == roleID && e.MemberID == memberID && e.GrantorID == grantorID && e.DatabaseID == databaseID {
			edge := *e
			return &edge
		}
	}
	return nil
}

// ============================================================================
// PRIVILEGE GRANTS
// ============================================================================

func (st *memState) insertGrant(grant *PrivilegeGrant) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	now := time.Now()
	grant.CreatedAt = now
	grant.UpdatedAt = now
	stored := *grant
	st.grants[grant.ID] = &stored
	return nil
}

func (st *memState) updateGrant(grant *PrivilegeGrant) error {
	if _, ok := st.grants[grant.ID]; !ok {
		return NewError(ErrStorage, "privilege grant not found: "+grant.ID)
	}
	grant.UpdatedAt = time.Now()
	stored := *grant
	st.grants[grant.ID] = &stored
	return nil
}

func (st *memState) deleteGrant(grantID string) error {
	if _, ok := st.grants[grantID]; !ok {
		return NewError(ErrStorage, "privilege grant not found: "+grantID)
	}
	delete(st.grants, grantID)
	return nil
}

func (st *memState) selectGrants(match func(*PrivilegeGrant) bool) []PrivilegeGrant {
	var out []PrivilegeGrant
	for _, g := range st.grants {
		if match(g) {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================================
// CATALOG INTERFACE
// ============================================================================

func (t *memTx) InsertRole(ctx context.Context, role *Role) error { return t.st.insertRole(role) }
func (t *memTx) UpdateRole(ctx context.Context, role *Role) error { return t.st.updateRole(role) }
func (t *memTx) DeleteRole(ctx context.Context, roleID string) error {
	return t.st.deleteRole(roleID)
}
func (t *memTx) RoleByID(ctx context.Context, roleID string) (*Role, error) {
	return t.st.roleByID(roleID)
}
func (t *memTx) RoleByName(ctx context.Context, name string) (*Role, error) {
	return t.st.roleByName(name)
}
func (t *memTx) ListRoles(ctx context.Context) ([]Role, error) {
	return t.st.listRoles(), nil
}

func (t *memTx) InsertEdge(ctx context.Context, edge *MembershipEdge) error {
	return t.st.insertEdge(edge)
}
func (t *memTx) UpdateEdge(ctx context.Context, edge *MembershipEdge) error {
	return t.st.updateEdge(edge)
}
func (t *memTx) DeleteEdge(ctx context.Context, edgeID string) error {
	return t.st.deleteEdge(edgeID)
}
func (t *memTx) FindEdge(ctx context.Context, roleID, memberID, grantorID, databaseID string) (*MembershipEdge, error) {
	return t.st.findEdge(roleID, memberID, grantorID, databaseID), nil
}
func (t *memTx) EdgesByMember(ctx context.Context, memberID string, scope Scope) ([]MembershipEdge, error) {
	return t.st.selectEdges(func(e *MembershipEdge) bool {
		return e.MemberID == memberID && projected(e.DatabaseID, scope)
	}), nil
}
func (t *memTx) EdgesByRole(ctx context.Context, roleID string, scope Scope) ([]MembershipEdge, error) {
	return t.st.selectEdges(func(e *MembershipEdge) bool {
		return e.RoleID == roleID && projected(e.DatabaseID, scope)
	}), nil
}
func (t *memTx) EdgesMatching(ctx context.Context, roleID, memberID string, scope Scope) ([]MembershipEdge, error) {
	return t.st.selectEdges(func(e *MembershipEdge) bool {
		return e.RoleID == roleID && e.MemberID == memberID && e.DatabaseID == scope.DatabaseID
	}), nil
}
func (t *memTx) EdgesTouching(ctx context.Context, roleID string) ([]MembershipEdge, error) {
	return t.st.selectEdges(func(e *MembershipEdge) bool {
		return e.RoleID == roleID || e.MemberID == roleID || e.GrantorID == roleID
	}), nil
}
func (t *memTx) EdgesByParent(ctx context.Context, parentEdgeID string) ([]MembershipEdge, error) {
	return t.st.selectEdges(func(e *MembershipEdge) bool {
		return e.ParentEdgeID == parentEdgeID
	}), nil
}

func (t *memTx) InsertGrant(ctx context.Context, grant *PrivilegeGrant) error {
	return t.st.insertGrant(grant)
}
func (t *memTx) UpdateGrant(ctx context.Context, grant *PrivilegeGrant) error {
	return t.st.updateGrant(grant)
}
func (t *memTx) DeleteGrant(ctx context.Context, grantID string) error {
	return t.st.deleteGrant(grantID)
}
func (t *memTx) FindGrant(ctx context.Context, obj ObjectRef, privilege, column, granteeID, grantorID string) (*PrivilegeGrant, error) {
	for _, g := range t.st.grants {
		if g.ObjectClass == obj.Class && g.ObjectID == obj.ID && g.Privilege == privilege &&
			g.Column == column && g.GranteeID == granteeID && g.GrantorID == grantorID {
			grant := *g
			return &grant, nil
		}
	}
	return nil, nil
}
func (t *memTx) GrantsOnObject(ctx context.Context, obj ObjectRef) ([]PrivilegeGrant, error) {
	return t.st.selectGrants(func(g *PrivilegeGrant) bool {
		return g.ObjectClass == obj.Class && g.ObjectID == obj.ID
	}), nil
}
func (t *memTx) GrantsTouchingRole(ctx context.Context, roleID string) ([]PrivilegeGrant, error) {
	return t.st.selectGrants(func(g *PrivilegeGrant) bool {
		return g.GranteeID == roleID || g.GrantorID == roleID
	}), nil
}
func (t *memTx) GrantsByParent(ctx context.Context, parentGrantID string) ([]PrivilegeGrant, error) {
	return t.st.selectGrants(func(g *PrivilegeGrant) bool {
		return g.ParentGrantID == parentGrantID
	}), nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry *AuthAuditLog) error {
	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	t.st.audit = append(t.st.audit, stored)
	return nil
}
func (t *memTx) AuditLog(ctx context.Context, filter AuditLogFilter) ([]AuthAuditLog, error) {
	return t.st.auditLog(filter), nil
}

func (st *memState) auditLog(filter AuditLogFilter) []AuthAuditLog {
	var out []AuthAuditLog
	for _, e := range st.audit {
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.TargetRole != "" && e.TargetRole != filter.TargetRole {
			continue
		}
		if filter.Object != "" && e.Object != filter.Object {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Scope != "" && e.Scope != filter.Scope {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Read-only access outside a transaction takes the reader lock and serves
// the current snapshot through the same row methods.

func (m *MemoryCatalog) view() *memTx {
	return &memTx{st: m.st}
}

func (m *MemoryCatalog) InsertRole(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertRole(ctx, role)
}

func (m *MemoryCatalog) UpdateRole(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateRole(ctx, role)
}

func (m *MemoryCatalog) DeleteRole(ctx context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteRole(ctx, roleID)
}

func (m *MemoryCatalog) RoleByID(ctx context.Context, roleID string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().RoleByID(ctx, roleID)
}

func (m *MemoryCatalog) RoleByName(ctx context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().RoleByName(ctx, name)
}

func (m *MemoryCatalog) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().ListRoles(ctx)
}

func (m *MemoryCatalog) InsertEdge(ctx context.Context, edge *MembershipEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertEdge(ctx, edge)
}

func (m *MemoryCatalog) UpdateEdge(ctx context.Context, edge *MembershipEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateEdge(ctx, edge)
}

func (m *MemoryCatalog) DeleteEdge(ctx context.Context, edgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteEdge(ctx, edgeID)
}

func (m *MemoryCatalog) FindEdge(ctx context.Context, roleID, memberID, grantorID, databaseID string) (*MembershipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().FindEdge(ctx, roleID, memberID, grantorID, databaseID)
}

func (m *MemoryCatalog) EdgesByMember(ctx context.Context, memberID string, scope Scope) ([]MembershipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().EdgesByMember(ctx, memberID, scope)
}

func (m *MemoryCatalog) EdgesByRole(ctx context.Context, roleID string, scope Scope) ([]MembershipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().EdgesByRole(ctx, roleID, scope)
}

func (m *MemoryCatalog) EdgesMatching(ctx context.Context, roleID, memberID string, scope Scope) ([]MembershipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().EdgesMatching(ctx, roleID, memberID, scope)
}

func (m *MemoryCatalog) EdgesTouching(ctx context.Context, roleID string) ([]MembershipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().EdgesTouching(ctx, roleID)
}

func (m *MemoryCatalog) EdgesByParent(ctx context.Context, parentEdgeID string) ([]MembershipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().EdgesByParent(ctx, parentEdgeID)
}

func (m *MemoryCatalog) InsertGrant(ctx context.Context, grant *PrivilegeGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertGrant(ctx, grant)
}

func (m *MemoryCatalog) UpdateGrant(ctx context.Context, grant *PrivilegeGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateGrant(ctx, grant)
}

func (m *MemoryCatalog) DeleteGrant(ctx context.Context, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().DeleteGrant(ctx, grantID)
}

func (m *MemoryCatalog) FindGrant(ctx context.Context, obj ObjectRef, privilege, column, granteeID, grantorID string) (*PrivilegeGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().FindGrant(ctx, obj, privilege, column, granteeID, grantorID)
}

func (m *MemoryCatalog) GrantsOnObject(ctx context.Context, obj ObjectRef) ([]PrivilegeGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GrantsOnObject(ctx, obj)
}

func (m *MemoryCatalog) GrantsTouchingRole(ctx context.Context, roleID string) ([]PrivilegeGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GrantsTouchingRole(ctx, roleID)
}

func (m *MemoryCatalog) GrantsByParent(ctx context.Context, parentGrantID string) ([]PrivilegeGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().GrantsByParent(ctx, parentGrantID)
}

func (m *MemoryCatalog) AppendAudit(ctx context.Context, entry *AuthAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AppendAudit(ctx, entry)
}

func (m *MemoryCatalog) AuditLog(ctx context.Context, filter AuditLogFilter) ([]AuthAuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view().AuditLog(ctx, filter)
}
