package grantkit

import (
	"context"
)

// ============================================================================
// REVOCATION / DEPENDENCY ENGINE
// ============================================================================
//
// Every grant or edge created under someone else's grant/admin option records
// that enabling row as its parent. Dependents of a revocation are the rows
// whose parent chain passes through a removed row - and only those: the same
// right reached through an unrelated grantor has a different parent chain and
// survives. RESTRICT reports the dependents, CASCADE removes them in the same
// transaction as the roots.

// collectDependentEdges returns the membership edges whose ParentEdgeID chain
// passes through any of the root edges, excluding the roots themselves.
func collectDependentEdges(ctx context.Context, cat Catalog, roots map[string]bool) ([]MembershipEdge, error) {
	seen := make(map[string]bool, len(roots))
	frontier := make([]string, 0, len(roots))
	for id := range roots {
		seen[id] = true
		frontier = append(frontier, id)
	}

	var dependents []MembershipEdge
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		children, err := cat.EdgesByParent(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			dependents = append(dependents, child)
			frontier = append(frontier, child.ID)
		}
	}
	return dependents, nil
}

// collectDependentGrants returns the privilege grants whose ParentGrantID
// chain passes through any of the root grants, excluding the roots.
func collectDependentGrants(ctx context.Context, cat Catalog, roots map[string]bool) ([]PrivilegeGrant, error) {
	seen := make(map[string]bool, len(roots))
	frontier := make([]string, 0, len(roots))
	for id := range roots {
		seen[id] = true
		frontier = append(frontier, id)
	}

	var dependents []PrivilegeGrant
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		children, err := cat.GrantsByParent(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			dependents = append(dependents, child)
			frontier = append(frontier, child.ID)
		}
	}
	return dependents, nil
}

// edgeBlockers formats dependent edges for a DependencyError.
func edgeBlockers(edges []MembershipEdge) []string {
	blockers := make([]string, 0, len(edges))
	for _, e := range edges {
		b := "membership of " + e.MemberID + " in " + e.RoleID
		if e.DatabaseID != "" {
			b += " in database " + e.DatabaseID
		}
		blockers = append(blockers, b)
	}
	return blockers
}

// grantBlockers formats dependent grants for a DependencyError.
func grantBlockers(grants []PrivilegeGrant) []string {
	blockers := make([]string, 0, len(grants))
	for _, g := range grants {
		b := g.Privilege + " on " + g.Object().String() + " to " + g.GranteeID
		if g.Column != "" {
			b = g.Privilege + "(" + g.Column + ") on " + g.Object().String() + " to " + g.GranteeID
		}
		blockers = append(blockers, b)
	}
	return blockers
}

// objectBlockers formats owned objects blocking a DROP ROLE.
func objectBlockers(objects []ObjectRef) []string {
	blockers := make([]string, 0, len(objects))
	for _, o := range objects {
		blockers = append(blockers, "owned object "+o.String())
	}
	return blockers
}
