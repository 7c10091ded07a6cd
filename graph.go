package grantkit

import (
	"context"
	"sort"
)

// ============================================================================
// MEMBERSHIP GRAPH
// ============================================================================

// GrantMembership inserts a membership edge role -> member in the given
// scope, or updates the option flags of the existing (role, member, grantor,
// scope) edge (last-writer-wins for an explicit re-grant).
//
// The acting role needs admin authority on the role per HasAdminOption. The
// grant is rejected with ErrCycle if member already reaches role through any
// graph projection that would contain the new edge, and with
// ErrInvalidGrantee for PUBLIC members or self-grants. Nothing is mutated on
// failure.
func (s *Service) GrantMembership(ctx context.Context, sess *Session, roleName, memberName string, opts MembershipOptions, scope Scope) error {
	err := s.run(ctx, "GrantMembership", func(ctx context.Context, tx Catalog) error {
		actor, err := s.actorRole(ctx, tx, sess)
		if err != nil {
			return err
		}

		if memberName == PublicID {
			return NewError(ErrInvalidGrantee, "role membership cannot be granted to PUBLIC").
				WithRole(roleName)
		}

		role, err := tx.RoleByName(ctx, roleName)
		if err != nil {
			return err
		}
		member, err := tx.RoleByName(ctx, memberName)
		if err != nil {
			return err
		}
		if role.ID == member.ID {
			return NewError(ErrInvalidGrantee, "role cannot be a member of itself").
				WithRole(role.Name)
		}

		parent, err := s.adminAuthority(ctx, tx, actor, role.ID, scope, sess.DatabaseID())
		if err != nil {
			return err
		}

		looped, err := s.reachesThroughMembers(ctx, tx, member.ID, role.ID, scope)
		if err != nil {
			return err
		}
		if looped {
			return NewError(ErrCycle, "role "+role.Name+" is already a member of "+member.Name).
				WithRole(role.Name).
				WithMember(member.Name).
				WithScope(scope)
		}

		existing, err := tx.FindEdge(ctx, role.ID, member.ID, actor.ID, scope.DatabaseID)
		if err != nil {
			return err
		}

		var previous string
		if existing != nil {
			previous = optionState(existing.AdminOption, existing.InheritOption, existing.SetOption)
			existing.AdminOption = opts.Admin
			existing.InheritOption = opts.Inherit
			existing.SetOption = opts.Set
			if err := tx.UpdateEdge(ctx, existing); err != nil {
				return err
			}
		} else {
			edge := &MembershipEdge{
				RoleID:        role.ID,
				MemberID:      member.ID,
				GrantorID:     actor.ID,
				AdminOption:   opts.Admin,
				InheritOption: opts.Inherit,
				SetOption:     opts.Set,
				DatabaseID:    scope.DatabaseID,
			}
			if parent != nil {
				edge.ParentEdgeID = parent.ID
			}
			if err := tx.InsertEdge(ctx, edge); err != nil {
				return err
			}
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:       actor.Name,
			Action:        AuditActionGrantMembership,
			TargetRole:    role.Name,
			MemberRole:    member.Name,
			Scope:         scope.String(),
			PreviousState: previous,
			NewState:      optionState(opts.Admin, opts.Inherit, opts.Set),
		})
		return nil
	})
	if err == nil {
		s.graphVersion.Add(1)
	}
	return err
}

// RevokeMembership removes membership edges role -> member in the given
// scope, or clears a single option when opts.Option is set. Edges created
// under the removed edges' admin options are dependents: under RESTRICT the
// operation fails with ErrDependency naming them, under CASCADE they are
// removed transitively in the same transaction.
//
// Edges issued by the bootstrap sentinel can only be revoked by a superuser.
func (s *Service) RevokeMembership(ctx context.Context, sess *Session, roleName, memberName string, opts RevokeMembershipOptions, scope Scope) error {
	err := s.run(ctx, "RevokeMembership", func(ctx context.Context, tx Catalog) error {
		actor, err := s.actorRole(ctx, tx, sess)
		if err != nil {
			return err
		}

		role, err := tx.RoleByName(ctx, roleName)
		if err != nil {
			return err
		}
		member, err := tx.RoleByName(ctx, memberName)
		if err != nil {
			return err
		}

		if _, err := s.adminAuthority(ctx, tx, actor, role.ID, scope, sess.DatabaseID()); err != nil {
			return err
		}

		edges, err := tx.EdgesMatching(ctx, role.ID, member.ID, scope)
		if err != nil {
			return err
		}

		targets := make([]MembershipEdge, 0, len(edges))
		for _, e := range edges {
			if opts.GrantorID != "" && e.GrantorID != opts.GrantorID {
				continue
			}
			if e.GrantorID == BootstrapID && !actor.Superuser {
				return NewError(ErrPermissionDenied, "only a superuser can revoke a bootstrap-issued membership").
					WithRole(role.Name).
					WithMember(member.Name).
					WithActor(actor.Name)
			}
			targets = append(targets, e)
		}

		if len(targets) == 0 {
			s.logAudit(ctx, tx, &AuditEntry{
				ActorID:    actor.Name,
				Action:     AuditActionRevokeMembership,
				TargetRole: role.Name,
				MemberRole: member.Name,
				Scope:      scope.String(),
				Warnings:   []string{WarnNotGranted + ": " + member.Name + " is not a member of " + role.Name},
			})
			return nil
		}

		// Inherit/set options carry no delegation authority, so clearing
		// them never orphans anything.
		if opts.Option == OptionInherit || opts.Option == OptionSet {
			for i := range targets {
				e := targets[i]
				if opts.Option == OptionInherit {
					e.InheritOption = false
				} else {
					e.SetOption = false
				}
				if err := tx.UpdateEdge(ctx, &e); err != nil {
					return err
				}
			}
			s.logAudit(ctx, tx, &AuditEntry{
				ActorID:    actor.Name,
				Action:     AuditActionRevokeMembership,
				TargetRole: role.Name,
				MemberRole: member.Name,
				Scope:      scope.String(),
				NewState:   "option " + string(opts.Option) + " cleared",
			})
			return nil
		}

		roots := make(map[string]bool, len(targets))
		for _, e := range targets {
			roots[e.ID] = true
		}
		dependents, err := collectDependentEdges(ctx, tx, roots)
		if err != nil {
			return err
		}
		if len(dependents) > 0 && !opts.Cascade {
			return NewError(ErrDependency, "dependent memberships exist").
				WithRole(role.Name).
				WithMember(member.Name).
				WithScope(scope).
				WithBlockers(edgeBlockers(dependents))
		}

		if opts.Option == OptionAdmin {
			for i := range targets {
				e := targets[i]
				e.AdminOption = false
				if err := tx.UpdateEdge(ctx, &e); err != nil {
					return err
				}
			}
		} else {
			for _, e := range targets {
				if err := tx.DeleteEdge(ctx, e.ID); err != nil {
					return err
				}
			}
		}
		for _, e := range dependents {
			if err := tx.DeleteEdge(ctx, e.ID); err != nil {
				return err
			}
		}

		newState := "revoked"
		if opts.Option == OptionAdmin {
			newState = "option admin cleared"
		}
		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionRevokeMembership,
			TargetRole: role.Name,
			MemberRole: member.Name,
			Scope:      scope.String(),
			NewState:   newState,
		})
		return nil
	})
	if err == nil {
		s.graphVersion.Add(1)
	}
	return err
}

// ============================================================================
// TRAVERSALS
// ============================================================================

// InheritedClosure returns the roles whose privileges root uses
// automatically: root itself plus every role reachable through edges with the
// inherit option, restricted to the scope's projection (global edges plus the
// named database's edges). An edge without the inherit option blocks its own
// path, never its siblings.
func (s *Service) InheritedClosure(ctx context.Context, rootID string, scope Scope) (map[string]bool, error) {
	return s.inheritedClosure(ctx, s.cat, rootID, scope)
}

func (s *Service) inheritedClosure(ctx context.Context, cat Catalog, rootID string, scope Scope) (map[string]bool, error) {
	return s.closure(ctx, cat, rootID, scope, func(e *MembershipEdge) bool {
		return e.InheritOption
	})
}

// SetEligibleClosure returns the roles root can switch to with SET ROLE: root
// itself plus every role reachable through edges with the set option,
// restricted to the scope's projection. The inherit option plays no part.
func (s *Service) SetEligibleClosure(ctx context.Context, rootID string, scope Scope) (map[string]bool, error) {
	return s.closure(ctx, s.cat, rootID, scope, func(e *MembershipEdge) bool {
		return e.SetOption
	})
}

// closure walks upward from root (member -> granted role) over edges passing
// the filter. The graph is a DAG per scope projection, so this terminates.
func (s *Service) closure(ctx context.Context, cat Catalog, rootID string, scope Scope, follow func(*MembershipEdge) bool) (map[string]bool, error) {
	visited := map[string]bool{rootID: true}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		edges, err := cat.EdgesByMember(ctx, cur, scope)
		if err != nil {
			return nil, err
		}
		for i := range edges {
			e := edges[i]
			if !follow(&e) || visited[e.RoleID] {
				continue
			}
			visited[e.RoleID] = true
			frontier = append(frontier, e.RoleID)
		}
	}
	return visited, nil
}

// reachesThroughMembers walks downward from start (role -> its members,
// transitively, every edge regardless of options) and reports whether target
// appears in any projection that will contain the new edge. Used for the
// cycle check before inserting an edge.
//
// A database-scoped insert only shows up in its own database's projection, so
// the walk stays on global edges plus that database's. A global insert shows
// up in every projection: a path may then use global edges freely and the
// edges of at most one database, and finding target through any such path
// means some projection would gain a cycle.
func (s *Service) reachesThroughMembers(ctx context.Context, cat Catalog, startID, targetID string, scope Scope) (bool, error) {
	type node struct {
		role string
		db   string
	}
	start := node{role: startID, db: scope.DatabaseID}
	visited := map[node]bool{start: true}
	frontier := []node{start}
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		// Once a path has committed to a database its projection is fixed;
		// an uncommitted path may still branch into any database.
		var edges []MembershipEdge
		var err error
		if cur.db != "" {
			edges, err = cat.EdgesByRole(ctx, cur.role, InDatabase(cur.db))
		} else {
			edges, err = cat.EdgesTouching(ctx, cur.role)
		}
		if err != nil {
			return false, err
		}
		for i := range edges {
			e := edges[i]
			if e.RoleID != cur.role {
				continue
			}
			db := cur.db
			switch {
			case e.DatabaseID == "":
				// Global edges live in every projection.
			case db == "":
				// The path commits to this edge's database.
				db = e.DatabaseID
			case e.DatabaseID != db:
				continue
			}
			if e.MemberID == targetID {
				return true, nil
			}
			next := node{role: e.MemberID, db: db}
			if !visited[next] {
				visited[next] = true
				frontier = append(frontier, next)
			}
		}
	}
	return false, nil
}

// HasAdminOption reports whether the session's active role may grant or
// revoke membership in target for the given operation scope. A superuser
// always may. Otherwise a direct admin-option edge is required: a global
// edge authorizes any operation, while a database-scoped edge authorizes
// only operations on that database's scope issued from a session connected
// to the same database.
func (s *Service) HasAdminOption(ctx context.Context, sess *Session, targetRoleID string, scope Scope) (bool, error) {
	actor, err := s.actorRole(ctx, s.cat, sess)
	if err != nil {
		return false, err
	}
	_, err = s.adminAuthority(ctx, s.cat, actor, targetRoleID, scope, sess.DatabaseID())
	if err != nil {
		if IsPermissionDenied(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// adminAuthority checks admin authority and returns the edge justifying it,
// nil for superusers. The justifying edge becomes the parent of edges the
// actor creates, so the choice is deterministic: global edges before
// database-scoped ones, then the smallest grantor identifier.
func (s *Service) adminAuthority(ctx context.Context, cat Catalog, actor *Role, targetRoleID string, scope Scope, connectedDB string) (*MembershipEdge, error) {
	if actor.Superuser {
		return nil, nil
	}

	candidates, err := cat.EdgesMatching(ctx, targetRoleID, actor.ID, Global())
	if err != nil {
		return nil, err
	}
	// A database-local admin option only reaches operations on that same
	// database's scope, and only while connected to it.
	if !scope.IsGlobal() && scope.DatabaseID == connectedDB {
		local, err := cat.EdgesMatching(ctx, targetRoleID, actor.ID, scope)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, local...)
	}

	admins := candidates[:0]
	for _, e := range candidates {
		if e.AdminOption {
			admins = append(admins, e)
		}
	}
	if len(admins) == 0 {
		return nil, NewError(ErrPermissionDenied, "admin option on role required").
			WithActor(actor.Name).
			WithScope(scope)
	}

	sort.Slice(admins, func(i, j int) bool {
		if (admins[i].DatabaseID == "") != (admins[j].DatabaseID == "") {
			return admins[i].DatabaseID == ""
		}
		return admins[i].GrantorID < admins[j].GrantorID
	})
	edge := admins[0]
	return &edge, nil
}

func optionState(admin, inherit, set bool) string {
	state := ""
	if admin {
		state += "admin,"
	}
	if inherit {
		state += "inherit,"
	}
	if set {
		state += "set,"
	}
	if state == "" {
		return "none"
	}
	return state[:len(state)-1]
}
