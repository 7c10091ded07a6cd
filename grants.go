package grantkit

import (
	"context"
	"sort"
)

// ============================================================================
// PRIVILEGE GRANT STORE
// ============================================================================

// GrantPrivilege grants privilege kinds on an object to a grantee. The
// PrivilegeAll pseudo-kind expands to every kind valid for the object class.
//
// The acting role must hold each kind with the grant option - directly,
// through its inherited closure, or via PUBLIC - unless it is a superuser or
// a member of the object's owner (owners hold all options implicitly). When
// the actor holds no privilege on the object at all the command fails with
// ErrPermissionDenied; when it holds options for only a subset, the subset is
// granted and the rest is reported as Warnings, not as a failure.
//
// A grant option cannot be given to PUBLIC (ErrInvalidGrantee). Re-granting
// an existing (object, kind, grantee, grantor) key keeps a single row and
// only ever raises the option flag, never lowers it.
func (s *Service) GrantPrivilege(ctx context.Context, sess *Session, obj ObjectRef, kinds []string, grantee Grantee, opts GrantOptions) ([]Warning, error) {
	expanded, err := s.classes.ExpandPrivileges(obj.Class, kinds)
	if err != nil {
		return nil, err
	}
	if grantee.RoleID() == "" {
		return nil, NewError(ErrInvalidGrantee, "grantee required").WithObject(obj)
	}
	if grantee.IsPublic() && opts.WithGrantOption {
		return nil, NewError(ErrInvalidGrantee, "grant options cannot be granted to PUBLIC").
			WithObject(obj)
	}

	var warnings []Warning
	err = s.run(ctx, "GrantPrivilege", func(ctx context.Context, tx Catalog) error {
		warnings = warnings[:0]

		actor, err := s.actorRole(ctx, tx, sess)
		if err != nil {
			return err
		}
		if !grantee.IsPublic() {
			if _, err := tx.RoleByID(ctx, grantee.RoleID()); err != nil {
				return err
			}
		}

		closure, err := s.inheritedClosure(ctx, tx, actor.ID, sess.Scope())
		if err != nil {
			return err
		}
		objGrants, err := tx.GrantsOnObject(ctx, obj)
		if err != nil {
			return err
		}

		bypass, err := s.ownerOrSuperuser(ctx, actor, obj, closure)
		if err != nil {
			return err
		}

		// parents maps each authorized kind to the grant supplying the
		// actor's option, "" when the authority is implicit.
		parents := make(map[string]string, len(expanded))
		for _, kind := range expanded {
			if bypass {
				parents[kind] = ""
				continue
			}
			enabling := optionSources(objGrants, kind, closure)
			if len(enabling) == 0 {
				warnings = append(warnings, Warning{
					Code:      WarnNoOption,
					Message:   "no grant option for " + kind + " on " + obj.String(),
					Object:    obj,
					Privilege: kind,
				})
				continue
			}
			parents[kind] = enabling[0].ID
		}

		if len(parents) == 0 {
			if !holdsAnyPrivilege(objGrants, closure) {
				return NewError(ErrPermissionDenied, "no privileges on object").
					WithActor(actor.Name).
					WithObject(obj)
			}
			// Some privilege is held but no requested option: all warnings,
			// nothing granted, command still succeeds.
		} else if len(warnings) > 0 {
			skipped := make([]string, 0, len(warnings))
			for _, w := range warnings {
				skipped = append(skipped, w.Privilege)
			}
			warnings = append(warnings, Warning{
				Code:    WarnPartialGrant,
				Message: "granted a subset of the requested privileges on " + obj.String() + ", skipped " + joinKinds(skipped),
				Object:  obj,
			})
		}

		for _, kind := range expanded {
			parent, ok := parents[kind]
			if !ok {
				continue
			}
			existing, err := tx.FindGrant(ctx, obj, kind, opts.Column, grantee.RoleID(), actor.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				if opts.WithGrantOption && !existing.WithGrantOption {
					existing.WithGrantOption = true
					if err := tx.UpdateGrant(ctx, existing); err != nil {
						return err
					}
				}
				continue
			}
			grant := &PrivilegeGrant{
				ObjectClass:     obj.Class,
				ObjectID:        obj.ID,
				Privilege:       kind,
				Column:          opts.Column,
				GranteeID:       grantee.RoleID(),
				GrantorID:       actor.ID,
				WithGrantOption: opts.WithGrantOption,
				ParentGrantID:   parent,
			}
			if err := tx.InsertGrant(ctx, grant); err != nil {
				return err
			}
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:   actor.Name,
			Action:    AuditActionGrantPrivilege,
			Object:    obj.String(),
			Privilege: joinKinds(expanded),
			Grantee:   grantee.String(),
			Scope:     sess.Scope().String(),
			Warnings:  warningStrings(warnings),
		})
		return nil
	})
	return warnings, err
}

// RevokePrivilege removes privilege kinds on an object from a grantee, or
// only their grant-option flag when opts.OptionOnly is set. A non-superuser,
// non-owner revoker only touches rows it granted itself. Rows granted under
// the removed rows' options are dependents: RESTRICT fails with ErrDependency
// naming them, CASCADE removes them transitively.
//
// Revoking an object-level kind also removes the matching column-level rows
// for the same grantee and grantor; the converse does not hold.
func (s *Service) RevokePrivilege(ctx context.Context, sess *Session, obj ObjectRef, kinds []string, grantee Grantee, opts RevokePrivilegeOptions) ([]Warning, error) {
	expanded, err := s.classes.ExpandPrivileges(obj.Class, kinds)
	if err != nil {
		return nil, err
	}

	var warnings []Warning
	err = s.run(ctx, "RevokePrivilege", func(ctx context.Context, tx Catalog) error {
		warnings = warnings[:0]

		actor, err := s.actorRole(ctx, tx, sess)
		if err != nil {
			return err
		}
		closure, err := s.inheritedClosure(ctx, tx, actor.ID, sess.Scope())
		if err != nil {
			return err
		}
		bypass, err := s.ownerOrSuperuser(ctx, actor, obj, closure)
		if err != nil {
			return err
		}
		objGrants, err := tx.GrantsOnObject(ctx, obj)
		if err != nil {
			return err
		}

		var targets, columnRows []PrivilegeGrant
		for _, kind := range expanded {
			found := false
			for _, g := range objGrants {
				if g.Privilege != kind || g.GranteeID != grantee.RoleID() {
					continue
				}
				if !bypass && g.GrantorID != actor.ID {
					continue
				}
				if g.GrantorID == BootstrapID && !actor.Superuser {
					continue
				}
				switch {
				case g.Column == opts.Column:
					targets = append(targets, g)
					found = true
				case opts.Column == "" && g.Column != "":
					// Object-level revoke sweeps up column-level rows.
					columnRows = append(columnRows, g)
				}
			}
			if !found {
				warnings = append(warnings, Warning{
					Code:      WarnNotGranted,
					Message:   kind + " on " + obj.String() + " was not granted to " + grantee.String(),
					Object:    obj,
					Privilege: kind,
				})
			}
		}

		if len(targets) == 0 && len(columnRows) == 0 {
			s.logAudit(ctx, tx, &AuditEntry{
				ActorID:   actor.Name,
				Action:    AuditActionRevokePrivilege,
				Object:    obj.String(),
				Privilege: joinKinds(expanded),
				Grantee:   grantee.String(),
				Scope:     sess.Scope().String(),
				Warnings:  warningStrings(warnings),
			})
			return nil
		}

		roots := make(map[string]bool, len(targets))
		for _, g := range targets {
			roots[g.ID] = true
		}
		dependents, err := collectDependentGrants(ctx, tx, roots)
		if err != nil {
			return err
		}
		if len(dependents) > 0 && !opts.Cascade {
			return NewError(ErrDependency, "dependent grants exist").
				WithActor(actor.Name).
				WithObject(obj).
				WithBlockers(grantBlockers(dependents))
		}

		if opts.OptionOnly {
			for i := range targets {
				g := targets[i]
				if !g.WithGrantOption {
					continue
				}
				g.WithGrantOption = false
				if err := tx.UpdateGrant(ctx, &g); err != nil {
					return err
				}
			}
		} else {
			for _, g := range targets {
				if err := tx.DeleteGrant(ctx, g.ID); err != nil {
					return err
				}
			}
			for _, g := range columnRows {
				if err := tx.DeleteGrant(ctx, g.ID); err != nil {
					return err
				}
			}
		}
		for _, g := range dependents {
			if err := tx.DeleteGrant(ctx, g.ID); err != nil {
				return err
			}
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:   actor.Name,
			Action:    AuditActionRevokePrivilege,
			Object:    obj.String(),
			Privilege: joinKinds(expanded),
			Grantee:   grantee.String(),
			Scope:     sess.Scope().String(),
			Warnings:  warningStrings(warnings),
		})
		return nil
	})
	return warnings, err
}

// ============================================================================
// PRIVILEGE EVALUATION
// ============================================================================

// EffectivePrivilege reports whether the session's active role currently
// holds the privilege kind on the object: granted to the active role, to any
// role in its inherited closure, or to PUBLIC. This is the single entry point
// every collaborator calls before permitting an operation.
func (s *Service) EffectivePrivilege(ctx context.Context, sess *Session, obj ObjectRef, kind string) (bool, error) {
	active, err := s.actorRole(ctx, s.cat, sess)
	if err != nil {
		return false, err
	}
	if active.Superuser {
		return true, nil
	}

	closure, err := s.activeClosure(ctx, sess)
	if err != nil {
		return false, err
	}
	grants, err := s.cat.GrantsOnObject(ctx, obj)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Privilege == kind && g.Column == "" && granteeReaches(&g, closure) {
			return true, nil
		}
	}
	return false, nil
}

// EffectiveColumnPrivilege reports whether the active role holds the kind on
// one column, either through a column-level grant or the whole object.
func (s *Service) EffectiveColumnPrivilege(ctx context.Context, sess *Session, obj ObjectRef, column, kind string) (bool, error) {
	active, err := s.actorRole(ctx, s.cat, sess)
	if err != nil {
		return false, err
	}
	if active.Superuser {
		return true, nil
	}

	closure, err := s.activeClosure(ctx, sess)
	if err != nil {
		return false, err
	}
	grants, err := s.cat.GrantsOnObject(ctx, obj)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Privilege != kind || !granteeReaches(&g, closure) {
			continue
		}
		if g.Column == "" || g.Column == column {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePrivileges returns every privilege kind the session's active role
// holds on the object, sorted.
func (s *Service) EffectivePrivileges(ctx context.Context, sess *Session, obj ObjectRef) ([]string, error) {
	active, err := s.actorRole(ctx, s.cat, sess)
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool)
	if active.Superuser {
		class := s.classes.GetClass(obj.Class)
		if class == nil {
			return nil, NewError(ErrUnknownObjectClass, obj.Class)
		}
		for _, kind := range class.GetPrivileges() {
			held[kind] = true
		}
	} else {
		closure, err := s.activeClosure(ctx, sess)
		if err != nil {
			return nil, err
		}
		grants, err := s.cat.GrantsOnObject(ctx, obj)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			if g.Column == "" && granteeReaches(&g, closure) {
				held[g.Privilege] = true
			}
		}
	}

	kinds := make([]string, 0, len(held))
	for kind := range held {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// ownerOrSuperuser reports whether the actor may bypass grant-option checks
// on the object: superusers always, owners through their inherited closure.
func (s *Service) ownerOrSuperuser(ctx context.Context, actor *Role, obj ObjectRef, closure map[string]bool) (bool, error) {
	if actor.Superuser {
		return true, nil
	}
	owner, err := s.owners.ObjectOwner(ctx, obj)
	if err != nil {
		return false, err
	}
	return owner != "" && closure[owner], nil
}

// granteeReaches reports whether a grant's grantee covers the closure.
func granteeReaches(g *PrivilegeGrant, closure map[string]bool) bool {
	return g.GranteeID == PublicID || closure[g.GranteeID]
}

// holdsAnyPrivilege reports whether the closure holds any privilege on the
// object at all, option or not.
func holdsAnyPrivilege(grants []PrivilegeGrant, closure map[string]bool) bool {
	for i := range grants {
		if granteeReaches(&grants[i], closure) {
			return true
		}
	}
	return false
}

// optionSources returns the grants that could supply the closure's grant
// option for a kind, in deterministic order: smallest grantee identifier
// first, then smallest grantor. The first entry becomes the parent reference
// of the new grant, so the rule must be stable for dependency bookkeeping to
// be reproducible.
func optionSources(grants []PrivilegeGrant, kind string, closure map[string]bool) []PrivilegeGrant {
	var sources []PrivilegeGrant
	for _, g := range grants {
		if g.Privilege == kind && g.Column == "" && g.WithGrantOption && granteeReaches(&g, closure) {
			sources = append(sources, g)
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].GranteeID != sources[j].GranteeID {
			return sources[i].GranteeID < sources[j].GranteeID
		}
		return sources[i].GrantorID < sources[j].GrantorID
	})
	return sources
}

func joinKinds(kinds []string) string {
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}

func warningStrings(warnings []Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.String())
	}
	return out
}
