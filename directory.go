package grantkit

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// ============================================================================
// ROLE DIRECTORY
// ============================================================================

// RoleAttributes are the static attributes applied when creating a role.
type RoleAttributes struct {
	CanLogin    bool
	Superuser   bool
	CreateDB    bool
	CreateRole  bool
	Replication bool
	BypassRLS   bool

	// ConnLimit caps concurrent connections; 0 is treated as unlimited (-1).
	ConnLimit int

	// Password is hashed with bcrypt before storage; empty means none.
	Password string

	// Config seeds the per-role configuration overrides.
	Config map[string]string
}

// RoleAttributeDelta carries the attribute changes of an ALTER ROLE command.
// Nil fields are left untouched.
type RoleAttributeDelta struct {
	CanLogin    *bool
	Superuser   *bool
	CreateDB    *bool
	CreateRole  *bool
	Replication *bool
	BypassRLS   *bool
	ConnLimit   *int
	Password    *string
}

// Bootstrap creates a role outside any session, recorded against the
// bootstrap sentinel. It exists to seed the first superuser of a fresh
// catalog; everything after that goes through CreateRole.
func (s *Service) Bootstrap(ctx context.Context, name string, attrs RoleAttributes) (*Role, error) {
	var created *Role
	err := s.run(ctx, "Bootstrap", func(ctx context.Context, tx Catalog) error {
		if name == PublicID {
			return NewError(ErrInvalidName, "role name is reserved").WithRole(name)
		}
		if err := s.ensureNameFree(ctx, tx, name); err != nil {
			return err
		}
		role, err := s.newRole(name, attrs)
		if err != nil {
			return err
		}
		if err := tx.InsertRole(ctx, role); err != nil {
			return err
		}
		created = role

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    "bootstrap",
			Action:     AuditActionCreateRole,
			TargetRole: role.Name,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateRole creates a new role. The actor must be a superuser or hold the
// create-role attribute; superuser, replication and bypass-RLS attributes can
// only be given by a superuser. Reserved-prefix names and PUBLIC are rejected
// with ErrInvalidName.
//
// When a non-superuser creates a role, the graph automatically records the
// edge (new role -> creator, admin only, grantor = bootstrap sentinel), so
// the creator can administer the role but does not use or assume its
// privileges until it grants them to itself through that admin option.
func (s *Service) CreateRole(ctx context.Context, sess *Session, name string, attrs RoleAttributes) (*Role, error) {
	var created *Role
	grantBack := false
	err := s.run(ctx, "CreateRole", func(ctx context.Context, tx Catalog) error {
		grantBack = false
		actor, err := s.actorRole(ctx, tx, sess)
		if err != nil {
			return err
		}
		if !actor.Superuser && !actor.CreateRole {
			return NewError(ErrPermissionDenied, "permission denied to create role").
				WithActor(actor.Name)
		}
		if (attrs.Superuser || attrs.Replication || attrs.BypassRLS) && !actor.Superuser {
			return NewError(ErrPermissionDenied, "must be superuser to create roles with superuser, replication or bypass-RLS").
				WithActor(actor.Name).
				WithRole(name)
		}
		if name == PublicID || s.reservedName(name) {
			return NewError(ErrInvalidName, "role name is reserved").WithRole(name)
		}
		if err := s.ensureNameFree(ctx, tx, name); err != nil {
			return err
		}

		role, err := s.newRole(name, attrs)
		if err != nil {
			return err
		}
		if err := tx.InsertRole(ctx, role); err != nil {
			return err
		}
		created = role

		if !actor.Superuser {
			edge := &MembershipEdge{
				RoleID:        role.ID,
				MemberID:      actor.ID,
				GrantorID:     BootstrapID,
				AdminOption:   true,
				InheritOption: false,
				SetOption:     false,
			}
			if err := tx.InsertEdge(ctx, edge); err != nil {
				return err
			}
			grantBack = true
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionCreateRole,
			TargetRole: role.Name,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if grantBack {
		s.graphVersion.Add(1)
	}
	return created, nil
}

// AlterRole applies attribute deltas to a role. Superuser, replication and
// bypass-RLS changes, and any change to a superuser role, require a
// superuser actor; otherwise create-role plus global admin option on the
// target suffices.
func (s *Service) AlterRole(ctx context.Context, sess *Session, name string, delta RoleAttributeDelta) error {
	return s.run(ctx, "AlterRole", func(ctx context.Context, tx Catalog) error {
		actor, target, err := s.administeredRole(ctx, tx, sess, name)
		if err != nil {
			return err
		}
		if (delta.Superuser != nil || delta.Replication != nil || delta.BypassRLS != nil) && !actor.Superuser {
			return NewError(ErrPermissionDenied, "must be superuser to alter superuser, replication or bypass-RLS").
				WithActor(actor.Name).
				WithRole(target.Name)
		}

		if delta.CanLogin != nil {
			target.CanLogin = *delta.CanLogin
		}
		if delta.Superuser != nil {
			target.Superuser = *delta.Superuser
		}
		if delta.CreateDB != nil {
			target.CreateDB = *delta.CreateDB
		}
		if delta.CreateRole != nil {
			target.CreateRole = *delta.CreateRole
		}
		if delta.Replication != nil {
			target.Replication = *delta.Replication
		}
		if delta.BypassRLS != nil {
			target.BypassRLS = *delta.BypassRLS
		}
		if delta.ConnLimit != nil {
			target.ConnLimit = *delta.ConnLimit
		}
		if delta.Password != nil {
			if *delta.Password == "" {
				target.Credential = ""
			} else {
				hash, err := s.hashPassword(*delta.Password)
				if err != nil {
					return err
				}
				target.Credential = hash
			}
		}
		if err := tx.UpdateRole(ctx, target); err != nil {
			return err
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionAlterRole,
			TargetRole: target.Name,
		})
		return nil
	})
}

// RenameRole changes a role's name. The new name obeys the same reservation
// rules as CreateRole.
func (s *Service) RenameRole(ctx context.Context, sess *Session, oldName, newName string) error {
	return s.run(ctx, "RenameRole", func(ctx context.Context, tx Catalog) error {
		actor, target, err := s.administeredRole(ctx, tx, sess, oldName)
		if err != nil {
			return err
		}
		if newName == PublicID || s.reservedName(newName) {
			return NewError(ErrInvalidName, "role name is reserved").WithRole(newName)
		}
		if err := s.ensureNameFree(ctx, tx, newName); err != nil {
			return err
		}

		target.Name = newName
		if err := tx.UpdateRole(ctx, target); err != nil {
			return err
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:       actor.Name,
			Action:        AuditActionRenameRole,
			TargetRole:    newName,
			PreviousState: oldName,
			NewState:      newName,
		})
		return nil
	})
}

// SetRoleConfig records a per-role configuration override.
func (s *Service) SetRoleConfig(ctx context.Context, sess *Session, name, setting, value string) error {
	return s.run(ctx, "SetRoleConfig", func(ctx context.Context, tx Catalog) error {
		actor, target, err := s.administeredRole(ctx, tx, sess, name)
		if err != nil {
			return err
		}
		if target.Config == nil {
			target.Config = make(map[string]string)
		}
		previous := target.Config[setting]
		target.Config[setting] = value
		if err := tx.UpdateRole(ctx, target); err != nil {
			return err
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:       actor.Name,
			Action:        AuditActionSetConfig,
			TargetRole:    target.Name,
			PreviousState: setting + "=" + previous,
			NewState:      setting + "=" + value,
		})
		return nil
	})
}

// ResetRoleConfig removes a per-role configuration override, or all of them
// when setting is empty.
func (s *Service) ResetRoleConfig(ctx context.Context, sess *Session, name, setting string) error {
	return s.run(ctx, "ResetRoleConfig", func(ctx context.Context, tx Catalog) error {
		actor, target, err := s.administeredRole(ctx, tx, sess, name)
		if err != nil {
			return err
		}
		if setting == "" {
			target.Config = nil
		} else {
			delete(target.Config, setting)
		}
		if err := tx.UpdateRole(ctx, target); err != nil {
			return err
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionResetConfig,
			TargetRole: target.Name,
			NewState:   "reset " + setting,
		})
		return nil
	})
}

// DropRole removes a role. The role must own no objects (checked through the
// ownership collaborator) and must not remain the grantor of privileges held
// by others; both block with ErrDependency naming the dependents. The role's
// own membership edges (both directions) and the grants it holds as grantee
// are removed as part of the drop.
func (s *Service) DropRole(ctx context.Context, sess *Session, name string) error {
	err := s.run(ctx, "DropRole", func(ctx context.Context, tx Catalog) error {
		actor, target, err := s.administeredRole(ctx, tx, sess, name)
		if err != nil {
			return err
		}
		if target.ID == sess.LoginRoleID() || target.ID == sess.ActiveRoleID() {
			return NewError(ErrPermissionDenied, "current role cannot be dropped").
				WithRole(target.Name)
		}

		owned, err := s.owners.ObjectsOwnedBy(ctx, target.ID)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return NewError(ErrDependency, "role owns objects").
				WithRole(target.Name).
				WithBlockers(objectBlockers(owned))
		}

		grants, err := tx.GrantsTouchingRole(ctx, target.ID)
		if err != nil {
			return err
		}
		var outstanding []PrivilegeGrant
		for _, g := range grants {
			if g.GrantorID == target.ID && g.GranteeID != target.ID {
				outstanding = append(outstanding, g)
			}
		}
		if len(outstanding) > 0 {
			return NewError(ErrDependency, "role is the grantor of privileges held by others").
				WithRole(target.Name).
				WithBlockers(grantBlockers(outstanding))
		}

		edges, err := tx.EdgesTouching(ctx, target.ID)
		if err != nil {
			return err
		}
		var foreign []MembershipEdge
		for _, e := range edges {
			if e.GrantorID == target.ID && e.RoleID != target.ID && e.MemberID != target.ID {
				foreign = append(foreign, e)
			}
		}
		if len(foreign) > 0 {
			return NewError(ErrDependency, "role is the grantor of memberships between other roles").
				WithRole(target.Name).
				WithBlockers(edgeBlockers(foreign))
		}

		for _, e := range edges {
			if err := tx.DeleteEdge(ctx, e.ID); err != nil {
				return err
			}
		}
		for _, g := range grants {
			if err := tx.DeleteGrant(ctx, g.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteRole(ctx, target.ID); err != nil {
			return err
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionDropRole,
			TargetRole: target.Name,
		})
		return nil
	})
	if err == nil {
		s.graphVersion.Add(1)
	}
	return err
}

// ReassignOwned transfers every object the role owns in the scope to another
// role, through the ownership collaborator. The actor must be a superuser or
// hold admin authority over both roles. Together with DropOwned this is the
// cleanup step for a role DropRole refuses to remove.
func (s *Service) ReassignOwned(ctx context.Context, sess *Session, fromName, toName string, scope Scope) error {
	return s.run(ctx, "ReassignOwned", func(ctx context.Context, tx Catalog) error {
		actor, from, err := s.administeredRole(ctx, tx, sess, fromName)
		if err != nil {
			return err
		}
		_, to, err := s.administeredRole(ctx, tx, sess, toName)
		if err != nil {
			return err
		}
		if err := s.owners.ReassignOwnership(ctx, from.ID, to.ID, scope); err != nil {
			return err
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionReassignOwned,
			TargetRole: from.Name,
			Scope:      scope.String(),
			NewState:   "owner " + to.Name,
		})
		return nil
	})
}

// DropOwned drops every object the role owns in the scope through the
// ownership collaborator, removes the grant rows recorded on the role's
// objects, and revokes the privileges granted to the role along with their
// dependent grants.
func (s *Service) DropOwned(ctx context.Context, sess *Session, name string, scope Scope) error {
	return s.run(ctx, "DropOwned", func(ctx context.Context, tx Catalog) error {
		actor, target, err := s.administeredRole(ctx, tx, sess, name)
		if err != nil {
			return err
		}

		doomed := make(map[string]bool)
		owned, err := s.owners.ObjectsOwnedBy(ctx, target.ID)
		if err != nil {
			return err
		}
		for _, obj := range owned {
			grants, err := tx.GrantsOnObject(ctx, obj)
			if err != nil {
				return err
			}
			for _, g := range grants {
				doomed[g.ID] = true
			}
		}
		if err := s.owners.DropOwnedObjects(ctx, target.ID, scope); err != nil {
			return err
		}

		grants, err := tx.GrantsTouchingRole(ctx, target.ID)
		if err != nil {
			return err
		}
		roots := make(map[string]bool)
		for _, g := range grants {
			if g.GranteeID == target.ID {
				roots[g.ID] = true
				doomed[g.ID] = true
			}
		}
		dependents, err := collectDependentGrants(ctx, tx, roots)
		if err != nil {
			return err
		}
		for _, g := range dependents {
			doomed[g.ID] = true
		}
		for id := range doomed {
			if err := tx.DeleteGrant(ctx, id); err != nil {
				return err
			}
		}

		s.logAudit(ctx, tx, &AuditEntry{
			ActorID:    actor.Name,
			Action:     AuditActionDropOwned,
			TargetRole: target.Name,
			Scope:      scope.String(),
		})
		return nil
	})
}

// GetRole returns a role by name.
func (s *Service) GetRole(ctx context.Context, name string) (*Role, error) {
	return s.cat.RoleByName(ctx, name)
}

// ListRoles returns every role in the directory.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.cat.ListRoles(ctx)
}

// VerifyCredential checks a role's password against its stored bcrypt hash.
// Roles without a credential never verify.
func (s *Service) VerifyCredential(ctx context.Context, name, password string) (bool, error) {
	role, err := s.cat.RoleByName(ctx, name)
	if err != nil {
		return false, err
	}
	if role.Credential == "" {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(role.Credential), []byte(password))
	if err != nil {
		return false, nil
	}
	return true, nil
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func (s *Service) newRole(name string, attrs RoleAttributes) (*Role, error) {
	connLimit := attrs.ConnLimit
	if connLimit == 0 {
		connLimit = -1
	}
	role := &Role{
		Name:        name,
		CanLogin:    attrs.CanLogin,
		Superuser:   attrs.Superuser,
		CreateDB:    attrs.CreateDB,
		CreateRole:  attrs.CreateRole,
		Replication: attrs.Replication,
		BypassRLS:   attrs.BypassRLS,
		ConnLimit:   connLimit,
		Config:      attrs.Config,
	}
	if attrs.Password != "" {
		hash, err := s.hashPassword(attrs.Password)
		if err != nil {
			return nil, err
		}
		role.Credential = hash
	}
	return role, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	cost := s.bcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", NewError(ErrStorage, "failed to hash credential")
	}
	return string(hash), nil
}

func (s *Service) ensureNameFree(ctx context.Context, cat Catalog, name string) error {
	_, err := cat.RoleByName(ctx, name)
	if err == nil {
		return NewError(ErrRoleExists, "role name is taken").WithRole(name)
	}
	if !IsRoleNotFound(err) {
		return err
	}
	return nil
}

// administeredRole resolves a target role and verifies the actor may alter
// or drop it: superuser always; otherwise the create-role attribute plus a
// global admin option on the target, and never against a superuser role.
func (s *Service) administeredRole(ctx context.Context, cat Catalog, sess *Session, name string) (*Role, *Role, error) {
	actor, err := s.actorRole(ctx, cat, sess)
	if err != nil {
		return nil, nil, err
	}
	target, err := cat.RoleByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if actor.Superuser {
		return actor, target, nil
	}
	if !actor.CreateRole || target.Superuser {
		return nil, nil, NewError(ErrPermissionDenied, "permission denied to administer role").
			WithActor(actor.Name).
			WithRole(target.Name)
	}
	if actor.ID != target.ID {
		if _, err := s.adminAuthority(ctx, cat, actor, target.ID, Global(), sess.DatabaseID()); err != nil {
			return nil, nil, err
		}
	}
	return actor, target, nil
}
