package grantkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCatalogRoleCRUD(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	role := &Role{Name: "alice", CanLogin: true, ConnLimit: -1}
	require.NoError(t, cat.InsertRole(ctx, role))
	assert.NotEmpty(t, role.ID)
	assert.False(t, role.CreatedAt.IsZero())

	// Duplicate name.
	err := cat.InsertRole(ctx, &Role{Name: "alice"})
	assert.ErrorIs(t, err, ErrRoleExists)

	got, err := cat.RoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	got, err = cat.RoleByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)

	_, err = cat.RoleByName(ctx, "ghost")
	assert.True(t, IsRoleNotFound(err))
	_, err = cat.RoleByID(ctx, "ghost")
	assert.True(t, IsRoleNotFound(err))

	got.Name = "alicia"
	require.NoError(t, cat.UpdateRole(ctx, got))
	_, err = cat.RoleByName(ctx, "alice")
	assert.True(t, IsRoleNotFound(err))
	renamed, err := cat.RoleByName(ctx, "alicia")
	require.NoError(t, err)
	assert.Equal(t, role.ID, renamed.ID)

	// Rename onto an existing name.
	require.NoError(t, cat.InsertRole(ctx, &Role{Name: "bob"}))
	renamed.Name = "bob"
	assert.ErrorIs(t, cat.UpdateRole(ctx, renamed), ErrRoleExists)

	require.NoError(t, cat.DeleteRole(ctx, role.ID))
	_, err = cat.RoleByID(ctx, role.ID)
	assert.True(t, IsRoleNotFound(err))
}

func TestMemoryCatalogListRolesSorted(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	for _, name := range []string{"zoe", "alice", "mike"} {
		require.NoError(t, cat.InsertRole(ctx, &Role{Name: name}))
	}
	roles, err := cat.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, "alice", roles[0].Name)
	assert.Equal(t, "mike", roles[1].Name)
	assert.Equal(t, "zoe", roles[2].Name)
}

func TestMemoryCatalogSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	role := &Role{Name: "alice", Config: map[string]string{"search_path": "app"}}
	require.NoError(t, cat.InsertRole(ctx, role))

	// Mutating a returned row must not leak into the store.
	got, err := cat.RoleByName(ctx, "alice")
	require.NoError(t, err)
	got.Superuser = true
	got.Config["search_path"] = "evil"

	again, err := cat.RoleByName(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, again.Superuser)
	assert.Equal(t, "app", again.Config["search_path"])
}

func TestMemoryCatalogTransactionRollback(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	require.NoError(t, cat.InsertRole(ctx, &Role{Name: "keeper"}))

	boom := errors.New("boom")
	err := cat.RunInTx(ctx, func(ctx context.Context, tx Catalog) error {
		if err := tx.InsertRole(ctx, &Role{Name: "doomed"}); err != nil {
			return err
		}
		keeper, err := tx.RoleByName(ctx, "keeper")
		if err != nil {
			return err
		}
		if err := tx.DeleteRole(ctx, keeper.ID); err != nil {
			return err
		}
		// Uncommitted writes are visible inside the transaction.
		if _, err := tx.RoleByName(ctx, "doomed"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Nothing of the failed transaction survived.
	_, err = cat.RoleByName(ctx, "doomed")
	assert.True(t, IsRoleNotFound(err))
	_, err = cat.RoleByName(ctx, "keeper")
	assert.NoError(t, err)
}

func TestMemoryCatalogTransactionCommitAndNesting(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	err := cat.RunInTx(ctx, func(ctx context.Context, tx Catalog) error {
		if err := tx.InsertRole(ctx, &Role{Name: "outer"}); err != nil {
			return err
		}
		// A nested call joins the enclosing transaction.
		return tx.RunInTx(ctx, func(ctx context.Context, inner Catalog) error {
			return inner.InsertRole(ctx, &Role{Name: "inner"})
		})
	})
	require.NoError(t, err)

	for _, name := range []string{"outer", "inner"} {
		_, err := cat.RoleByName(ctx, name)
		assert.NoError(t, err, name)
	}
}

func TestMemoryCatalogEdgeProjection(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	mk := func(db string) *MembershipEdge {
		return &MembershipEdge{RoleID: "r", MemberID: "m", GrantorID: "g" + db, DatabaseID: db}
	}
	require.NoError(t, cat.InsertEdge(ctx, mk("")))
	require.NoError(t, cat.InsertEdge(ctx, mk("db1")))
	require.NoError(t, cat.InsertEdge(ctx, mk("db2")))

	edges, err := cat.EdgesByMember(ctx, "m", Global())
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	edges, err = cat.EdgesByMember(ctx, "m", InDatabase("db1"))
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	// EdgesMatching is exact, not projected.
	edges, err = cat.EdgesMatching(ctx, "r", "m", InDatabase("db1"))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "db1", edges[0].DatabaseID)

	edges, err = cat.EdgesTouching(ctx, "m")
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}

func TestMemoryCatalogFindEdge(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	edge := &MembershipEdge{RoleID: "r", MemberID: "m", GrantorID: "g", DatabaseID: "db1"}
	require.NoError(t, cat.InsertEdge(ctx, edge))
	assert.NotEmpty(t, edge.ID)

	got, err := cat.FindEdge(ctx, "r", "m", "g", "db1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, edge.ID, got.ID)

	// Any mismatched component misses.
	got, err = cat.FindEdge(ctx, "r", "m", "g", "")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = cat.FindEdge(ctx, "r", "m", "other", "db1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCatalogEdgesByParent(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	parent := &MembershipEdge{RoleID: "r", MemberID: "admin", GrantorID: "root", AdminOption: true}
	require.NoError(t, cat.InsertEdge(ctx, parent))
	child := &MembershipEdge{RoleID: "r", MemberID: "m", GrantorID: "admin", ParentEdgeID: parent.ID}
	require.NoError(t, cat.InsertEdge(ctx, child))

	deps, err := cat.EdgesByParent(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, child.ID, deps[0].ID)
}

func TestMemoryCatalogGrantLookups(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	obj := ObjectRef{Class: ClassTable, ID: "t"}

	grant := &PrivilegeGrant{
		ObjectClass: obj.Class, ObjectID: obj.ID,
		Privilege: PrivilegeSelect, GranteeID: "alice", GrantorID: "root",
	}
	require.NoError(t, cat.InsertGrant(ctx, grant))
	colGrant := &PrivilegeGrant{
		ObjectClass: obj.Class, ObjectID: obj.ID,
		Privilege: PrivilegeSelect, Column: "email", GranteeID: "alice", GrantorID: "root",
	}
	require.NoError(t, cat.InsertGrant(ctx, colGrant))

	got, err := cat.FindGrant(ctx, obj, PrivilegeSelect, "", "alice", "root")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, grant.ID, got.ID)

	got, err = cat.FindGrant(ctx, obj, PrivilegeSelect, "email", "alice", "root")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, colGrant.ID, got.ID)

	got, err = cat.FindGrant(ctx, obj, PrivilegeInsert, "", "alice", "root")
	require.NoError(t, err)
	assert.Nil(t, got)

	onObj, err := cat.GrantsOnObject(ctx, obj)
	require.NoError(t, err)
	assert.Len(t, onObj, 2)

	touching, err := cat.GrantsTouchingRole(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, touching, 2)
	touching, err = cat.GrantsTouchingRole(ctx, "root")
	require.NoError(t, err)
	assert.Len(t, touching, 2)
	touching, err = cat.GrantsTouchingRole(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, touching)

	require.NoError(t, cat.DeleteGrant(ctx, colGrant.ID))
	onObj, err = cat.GrantsOnObject(ctx, obj)
	require.NoError(t, err)
	assert.Len(t, onObj, 1)

	err = cat.DeleteGrant(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestMemoryCatalogAuditFilter(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		actor := "alice"
		if i%2 == 1 {
			actor = "bob"
		}
		require.NoError(t, cat.AppendAudit(ctx, &AuthAuditLog{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			ActorID:   actor,
			Action:    string(AuditActionGrantPrivilege),
			Object:    "table:t",
		}))
	}

	// Newest first.
	all, err := cat.AuditLog(ctx, NewAuditLogFilter())
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.After(all[i-1].Timestamp))
	}

	byActor, err := cat.AuditLog(ctx, NewAuditLogFilter().WithActor("bob"))
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	since, err := cat.AuditLog(ctx, NewAuditLogFilter().WithSince(base.Add(3*time.Minute)))
	require.NoError(t, err)
	assert.Len(t, since, 2)

	page, err := cat.AuditLog(ctx, NewAuditLogFilter().WithPagination(2, 1))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
	assert.Equal(t, all[2].ID, page[1].ID)
}
